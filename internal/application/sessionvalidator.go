// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
	"github.com/ericfisherdev/vaultsync/internal/domain/port/driven"
)

// SessionValidator confirms that a claimed user id matches the identity the
// remote service currently recognizes. Nothing is cached; every call asks
// the server.
type SessionValidator struct {
	api driven.VaultAPI
}

// NewSessionValidator creates a new SessionValidator.
func NewSessionValidator(api driven.VaultAPI) *SessionValidator {
	return &SessionValidator{api: api}
}

// Validate returns the confirmed user id. Any failure to resolve an identity
// is NoSession; a resolved identity that differs from claimedUserID is
// AccessDenied.
func (v *SessionValidator) Validate(ctx context.Context, claimedUserID int64) (int64, error) {
	session, err := v.api.CurrentSession(ctx)
	if err != nil {
		slog.Warn("session lookup failed", "user_id", claimedUserID, "error", err)
		return 0, model.WrapError(model.CodeNoSession, "no valid session", err)
	}
	if session.UserID == "" {
		return 0, model.Errorf(model.CodeNoSession, "no valid session")
	}

	if model.NormalizeUserID(session.UserID) != strconv.FormatInt(claimedUserID, 10) {
		slog.Warn("session user mismatch", "claimed_user_id", claimedUserID, "session_user_id", session.UserID)
		return 0, model.Errorf(model.CodeAccessDenied, "access denied - user ID mismatch")
	}

	return claimedUserID, nil
}
