package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncMarker returns the incremental sync boundary recorded for the user.
func (r *CredentialRepo) SyncMarker(ctx context.Context, userID int64) (time.Time, bool, error) {
	const query = `SELECT last_sync FROM sync_state WHERE user_id = ?`

	var lastSync string
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get sync marker for user %d: %w", userID, err)
	}

	t, err := parseTime(lastSync)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse sync marker for user %d: %w", userID, err)
	}
	return t, true, nil
}

// SetSyncMarker records the boundary inside the caller's transaction so it
// commits or rolls back together with the synced rows.
func (t *credentialTx) SetSyncMarker(ctx context.Context, userID int64, at time.Time) error {
	const query = `
		INSERT INTO sync_state (user_id, last_sync, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_sync = excluded.last_sync,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	if _, err := t.tx.ExecContext(ctx, query, userID, formatTime(at), now); err != nil {
		return fmt.Errorf("set sync marker for user %d: %w", userID, err)
	}
	return nil
}
