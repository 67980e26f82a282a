package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// ErrCredentialExists is returned by CredentialTx.Insert when a row with the
// same ID is already mirrored.
var ErrCredentialExists = errors.New("credential already exists")

// CredentialStore defines the driven port for the local credential mirror.
// Read methods use the reader pool; every mutation happens inside InTx.
type CredentialStore interface {
	// ListByUser returns the user's credentials ordered by website. Password
	// material is never returned.
	ListByUser(ctx context.Context, userID int64) ([]model.Credential, error)
	// Get returns the credential scoped to (userID, id), or nil, nil if absent.
	Get(ctx context.Context, userID, id int64) (*model.Credential, error)
	// NewestUpdatedAt returns the latest updated_at among the user's rows and
	// false if the user has none.
	NewestUpdatedAt(ctx context.Context, userID int64) (time.Time, bool, error)
	// SyncMarker returns the persisted incremental sync boundary and false if
	// none has been recorded.
	SyncMarker(ctx context.Context, userID int64) (time.Time, bool, error)

	// InTx runs fn inside one writer transaction. It commits when fn returns
	// nil and rolls back otherwise; a failed rollback is logged and never
	// replaces fn's error.
	InTx(ctx context.Context, fn func(tx CredentialTx) error) error
}

// CredentialTx is the set of statements available inside a transaction.
type CredentialTx interface {
	Get(ctx context.Context, userID, id int64) (*model.Credential, error)
	// FindByIdentity looks up a row by (userID, website, username); nil, nil if absent.
	FindByIdentity(ctx context.Context, userID int64, website, username string) (*model.Credential, error)

	// Upsert inserts the credential, replacing any row with the same ID.
	Upsert(ctx context.Context, c model.Credential) error
	// Insert adds a new row and fails if the ID is taken.
	Insert(ctx context.Context, c model.Credential) error
	// Update writes only the present fields and always sets updated_at.
	// Returns false if no row matched.
	Update(ctx context.Context, userID, id int64, fields model.CredentialFields, encryptedPassword *string, updatedAt time.Time) (bool, error)
	// Delete removes the row and returns false if none matched.
	Delete(ctx context.Context, userID, id int64) (bool, error)

	SetSyncMarker(ctx context.Context, userID int64, at time.Time) error
}
