package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
	"github.com/ericfisherdev/vaultsync/internal/metrics"
)

// CredentialService is the credential CRUD facade. Reads come from the local
// mirror; writes go to the remote vault and the mirror in a fixed order, and
// every call re-validates the session first.
type CredentialService struct {
	api       driven.VaultAPI
	store     driven.CredentialStore
	validator *SessionValidator
	audit     *AuditService
	now       func() time.Time
}

// NewCredentialService creates a new CredentialService. audit may be nil, in
// which case no activities are recorded.
func NewCredentialService(
	api driven.VaultAPI,
	store driven.CredentialStore,
	validator *SessionValidator,
	audit *AuditService,
) *CredentialService {
	return &CredentialService{
		api:       api,
		store:     store,
		validator: validator,
		audit:     audit,
		now:       time.Now,
	}
}

// List returns the user's credentials ordered by website. No password
// material is included.
func (s *CredentialService) List(ctx context.Context, userID int64) ([]model.Credential, error) {
	if userID <= 0 {
		return nil, model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return nil, err
	}

	creds, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, model.Classify(err, "failed to list credentials")
	}
	for i := range creds {
		creds[i] = creds[i].WithoutSecrets()
	}
	return creds, nil
}

// Get returns one credential with its password revealed by the remote vault.
func (s *CredentialService) Get(ctx context.Context, userID, id int64) (*model.Credential, error) {
	if userID <= 0 || id <= 0 {
		return nil, model.Errorf(model.CodeInvalidInput, "user id and credential id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return nil, err
	}

	cred, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, model.Classify(err, "failed to load credential")
	}
	if cred == nil {
		return nil, model.Errorf(model.CodeNotFound, "credential %d not found", id)
	}

	password, err := s.api.RevealPassword(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	out := cred.WithoutSecrets()
	out.Password = password
	s.recordActivity(ctx, userID, model.ActivityPasswordRevealed, id)
	return &out, nil
}

// Add creates the credential remotely, then mirrors it locally under the
// remote-issued id. A local failure after the remote create leaves an orphan
// that the next full sync repairs; it is logged and counted.
func (s *CredentialService) Add(ctx context.Context, userID int64, fields model.CredentialFields) (*model.Credential, error) {
	if userID <= 0 {
		return nil, model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	fields = fields.Trimmed()
	if err := fields.ValidateComplete(); err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return nil, err
	}

	remote, err := s.api.CreateCredential(ctx, userID, fields)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cred := model.Credential{
		ID:                remote.ID,
		UserID:            userID,
		Website:           *fields.Website,
		Username:          *fields.Username,
		EncryptedPassword: remote.EncryptedPassword,
		CreatedAt:         orNow(remote.CreatedAt, now),
		UpdatedAt:         orNow(remote.UpdatedAt, now),
	}

	err = s.store.InTx(ctx, func(tx driven.CredentialTx) error {
		dup, err := tx.FindByIdentity(ctx, userID, cred.Website, cred.Username)
		if err != nil {
			return err
		}
		if dup != nil {
			return model.Errorf(model.CodeConflict, "credential for %s/%s already exists", cred.Website, cred.Username)
		}
		return tx.Insert(ctx, cred)
	})
	if err != nil {
		metrics.DivergencesTotal.WithLabelValues("add").Inc()
		slog.Error("credential created remotely but not stored locally",
			"user_id", userID,
			"remote_id", remote.ID,
			"error", err,
		)
		return nil, model.Classify(err, "failed to store credential locally")
	}

	s.recordActivity(ctx, userID, model.ActivityCredentialAdded, cred.ID)
	out := cred.WithoutSecrets()
	return &out, nil
}

// Update applies a partial update: remote first, then only the supplied
// fields locally. updated_at is always refreshed.
func (s *CredentialService) Update(ctx context.Context, userID, id int64, fields model.CredentialFields) (*model.Credential, error) {
	if userID <= 0 || id <= 0 {
		return nil, model.Errorf(model.CodeInvalidInput, "user id and credential id must be positive")
	}
	fields = fields.Trimmed()
	if err := fields.ValidatePartial(); err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, model.Classify(err, "failed to load credential")
	}
	if existing == nil {
		return nil, model.Errorf(model.CodeNotFound, "credential %d not found", id)
	}

	remote, err := s.api.UpdateCredential(ctx, userID, id, fields)
	if err != nil {
		return nil, err
	}

	var encrypted *string
	if fields.Password != nil && remote.EncryptedPassword != "" {
		encrypted = &remote.EncryptedPassword
	}
	updatedAt := orNow(remote.UpdatedAt, s.now().UTC())

	var updated *model.Credential
	err = s.store.InTx(ctx, func(tx driven.CredentialTx) error {
		matched, err := tx.Update(ctx, userID, id, fields, encrypted, updatedAt)
		if err != nil {
			return err
		}
		if !matched {
			return model.Errorf(model.CodeNotFound, "credential %d not found", id)
		}
		updated, err = tx.Get(ctx, userID, id)
		return err
	})
	if err != nil {
		metrics.DivergencesTotal.WithLabelValues("update").Inc()
		slog.Error("credential updated remotely but not locally", "user_id", userID, "id", id, "error", err)
		return nil, model.Classify(err, "failed to update credential locally")
	}

	s.recordActivity(ctx, userID, model.ActivityCredentialUpdated, id)
	if updated == nil {
		return nil, model.Errorf(model.CodeNotFound, "credential %d not found", id)
	}
	out := updated.WithoutSecrets()
	return &out, nil
}

// Delete removes the credential locally, then remotely. A remote failure
// does not restore the local row; the divergence is logged and the remote
// error returned.
func (s *CredentialService) Delete(ctx context.Context, userID, id int64) error {
	if userID <= 0 || id <= 0 {
		return model.Errorf(model.CodeInvalidInput, "user id and credential id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx driven.CredentialTx) error {
		deleted, err := tx.Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		if !deleted {
			return model.Errorf(model.CodeNotFound, "credential %d not found", id)
		}
		return nil
	})
	if err != nil {
		return model.Classify(err, "failed to delete credential locally")
	}

	if err := s.api.DeleteCredential(ctx, userID, id); err != nil {
		metrics.DivergencesTotal.WithLabelValues("delete").Inc()
		slog.Error("credential deleted locally but not remotely", "user_id", userID, "id", id, "error", err)
		return err
	}

	s.recordActivity(ctx, userID, model.ActivityCredentialDeleted, id)
	return nil
}

// recordActivity appends to the audit trail without failing the caller.
func (s *CredentialService) recordActivity(ctx context.Context, userID int64, activity string, credentialID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.append(ctx, userID, activity, &credentialID); err != nil {
		slog.Warn("audit append failed", "user_id", userID, "activity", activity, "credential_id", credentialID, "error", err)
	}
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
