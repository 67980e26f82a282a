package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CredentialStore = (*CredentialRepo)(nil)
	_ driven.CredentialTx    = (*credentialTx)(nil)
)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Only the remote-issued encrypted password is stored; plaintext never is.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ListByUser returns the user's credentials ordered by website, then id.
// The password column is not selected.
func (r *CredentialRepo) ListByUser(ctx context.Context, userID int64) ([]model.Credential, error) {
	const query = `
		SELECT id, user_id, website, username, NULL, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
		ORDER BY website ASC, id ASC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials for user %d: %w", userID, err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Get retrieves the credential scoped to (userID, id). Returns nil, nil if
// no row matches.
func (r *CredentialRepo) Get(ctx context.Context, userID, id int64) (*model.Credential, error) {
	return getCredential(ctx, r.db.Reader, userID, id)
}

// NewestUpdatedAt returns the most recent updated_at among the user's rows.
func (r *CredentialRepo) NewestUpdatedAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	const query = `SELECT MAX(updated_at) FROM credentials WHERE user_id = ?`

	var newest sql.NullString
	if err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&newest); err != nil {
		return time.Time{}, false, fmt.Errorf("newest updated_at for user %d: %w", userID, err)
	}
	if !newest.Valid {
		return time.Time{}, false, nil
	}

	t, err := parseTime(newest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse newest updated_at: %w", err)
	}
	return t, true, nil
}

// InTx runs fn inside a single writer transaction.
func (r *CredentialRepo) InTx(ctx context.Context, fn func(tx driven.CredentialTx) error) error {
	sqlTx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&credentialTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.Error("transaction rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// credentialTx implements driven.CredentialTx on an open *sql.Tx.
type credentialTx struct {
	tx *sql.Tx
}

func (t *credentialTx) Get(ctx context.Context, userID, id int64) (*model.Credential, error) {
	return getCredential(ctx, t.tx, userID, id)
}

func (t *credentialTx) FindByIdentity(ctx context.Context, userID int64, website, username string) (*model.Credential, error) {
	const query = `
		SELECT id, user_id, website, username, encrypted_password, created_at, updated_at
		FROM credentials
		WHERE user_id = ? AND website = ? AND username = ?
		LIMIT 1
	`

	cred, err := scanCredential(t.tx.QueryRowContext(ctx, query, userID, website, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential %s/%s for user %d: %w", website, username, userID, err)
	}
	return cred, nil
}

// Upsert inserts or replaces a credential by ID. Remote values win for every
// column except encrypted_password, which is kept when the incoming record
// carries none.
func (t *credentialTx) Upsert(ctx context.Context, c model.Credential) error {
	const query = `
		INSERT INTO credentials (id, user_id, website, username, encrypted_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			website = excluded.website,
			username = excluded.username,
			encrypted_password = COALESCE(excluded.encrypted_password, credentials.encrypted_password),
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`

	_, err := t.tx.ExecContext(ctx, query,
		c.ID, c.UserID, c.Website, c.Username, nullableString(c.EncryptedPassword),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert credential %d: %w", c.ID, err)
	}
	return nil
}

// Insert adds a new credential. Returns driven.ErrCredentialExists if the ID
// is already mirrored.
func (t *credentialTx) Insert(ctx context.Context, c model.Credential) error {
	const query = `
		INSERT INTO credentials (id, user_id, website, username, encrypted_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := t.tx.ExecContext(ctx, query,
		c.ID, c.UserID, c.Website, c.Username, nullableString(c.EncryptedPassword),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert credential %d: %w", c.ID, driven.ErrCredentialExists)
		}
		return fmt.Errorf("insert credential %d: %w", c.ID, err)
	}
	return nil
}

// Update writes only the supplied fields. The plaintext password in fields is
// ignored; encryptedPassword, when non-nil, replaces the stored material.
func (t *credentialTx) Update(ctx context.Context, userID, id int64, fields model.CredentialFields, encryptedPassword *string, updatedAt time.Time) (bool, error) {
	var (
		sets []string
		args []any
	)
	if fields.Website != nil {
		sets = append(sets, "website = ?")
		args = append(args, *fields.Website)
	}
	if fields.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *fields.Username)
	}
	if encryptedPassword != nil {
		sets = append(sets, "encrypted_password = ?")
		args = append(args, *encryptedPassword)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(updatedAt), userID, id)

	query := "UPDATE credentials SET " + strings.Join(sets, ", ") + " WHERE user_id = ? AND id = ?"

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update credential %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *credentialTx) Delete(ctx context.Context, userID, id int64) (bool, error) {
	const query = `DELETE FROM credentials WHERE user_id = ? AND id = ?`

	result, err := t.tx.ExecContext(ctx, query, userID, id)
	if err != nil {
		return false, fmt.Errorf("delete credential %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

func getCredential(ctx context.Context, q queryer, userID, id int64) (*model.Credential, error) {
	const query = `
		SELECT id, user_id, website, username, encrypted_password, created_at, updated_at
		FROM credentials
		WHERE user_id = ? AND id = ?
	`

	cred, err := scanCredential(q.QueryRowContext(ctx, query, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d for user %d: %w", id, userID, err)
	}
	return cred, nil
}

func scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	var encrypted sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&cred.ID, &cred.UserID, &cred.Website, &cred.Username, &encrypted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cred.EncryptedPassword = encrypted.String

	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
