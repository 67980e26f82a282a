package application

import (
	"context"
	"strings"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
)

// AuditList is the result of AuditService.List. Message is set when the
// trail is empty.
type AuditList struct {
	Entries []model.AuditEntry
	Message string
}

// AuditService is the audit trail facade. The trail lives only on the remote
// service.
type AuditService struct {
	api       driven.VaultAPI
	validator *SessionValidator
}

// NewAuditService creates a new AuditService.
func NewAuditService(api driven.VaultAPI, validator *SessionValidator) *AuditService {
	return &AuditService{api: api, validator: validator}
}

// Append records an activity for the user. credentialID is optional.
func (s *AuditService) Append(ctx context.Context, userID int64, activityName string, credentialID *int64) error {
	if userID <= 0 {
		return model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	if strings.TrimSpace(activityName) == "" {
		return model.Errorf(model.CodeInvalidInput, "activity name is required")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return err
	}
	return s.append(ctx, userID, activityName, credentialID)
}

// append posts without validating; callers have already confirmed the session.
func (s *AuditService) append(ctx context.Context, userID int64, activityName string, credentialID *int64) error {
	return s.api.AppendAudit(ctx, model.AuditEntry{
		UserID:       userID,
		ActivityName: strings.TrimSpace(activityName),
		CredentialID: credentialID,
	})
}

// List returns the user's audit trail as the remote service orders it.
func (s *AuditService) List(ctx context.Context, userID int64) (AuditList, error) {
	if userID <= 0 {
		return AuditList{}, model.Errorf(model.CodeInvalidInput, "user id must be positive")
	}
	if _, err := s.validator.Validate(ctx, userID); err != nil {
		return AuditList{}, err
	}

	entries, err := s.api.ListAudit(ctx, userID)
	if err != nil {
		return AuditList{}, err
	}
	if len(entries) == 0 {
		return AuditList{Entries: []model.AuditEntry{}, Message: "no audit entries"}, nil
	}
	return AuditList{Entries: entries}, nil
}
