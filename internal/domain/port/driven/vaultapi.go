package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// VaultAPI defines the driven port for the remote vault service. Every method
// returns a *model.Error on failure so callers can propagate the
// classification unchanged.
type VaultAPI interface {
	// CurrentSession resolves the identity behind the ambient session.
	CurrentSession(ctx context.Context) (model.Session, error)

	// ListVault returns the full remote vault set for the user.
	ListVault(ctx context.Context, userID int64) ([]model.Credential, error)
	// ListVaultSince returns only items changed after since.
	ListVaultSince(ctx context.Context, userID int64, since time.Time) ([]model.Credential, error)

	// CreateCredential stores a new credential remotely and returns the
	// canonical record, including the remote-issued ID and encrypted password.
	CreateCredential(ctx context.Context, userID int64, fields model.CredentialFields) (model.Credential, error)
	// UpdateCredential applies a partial update remotely.
	UpdateCredential(ctx context.Context, userID, id int64, fields model.CredentialFields) (model.Credential, error)
	DeleteCredential(ctx context.Context, userID, id int64) error
	// RevealPassword returns the decrypted password for one credential.
	RevealPassword(ctx context.Context, userID, id int64) (string, error)

	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, userID int64) ([]model.AuditEntry, error)
}
