package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/application"
	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps a classified error onto an HTTP status. Unclassified
// errors are reported as 500 without their text.
func writeDomainError(w http.ResponseWriter, err error) {
	var e *model.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: string(model.CodeClientError)})
		return
	}

	message := e.Message
	if message == "" {
		message = string(e.Code)
	}
	writeJSON(w, statusForCode(e.Code), errorResponse{Error: message, Code: string(e.Code)})
}

func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.CodeInvalidInput:
		return http.StatusBadRequest
	case model.CodeNoSession:
		return http.StatusUnauthorized
	case model.CodeAccessDenied:
		return http.StatusForbidden
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeConflict:
		return http.StatusConflict
	case model.CodeInvalidResponse, model.CodeServerError:
		return http.StatusBadGateway
	case model.CodeNetworkError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CredentialResponse is the JSON representation of a credential. Password is
// present only on the single-credential endpoint.
type CredentialResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Website   string `json:"website"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuditEntryResponse is the JSON representation of one audit record.
type AuditEntryResponse struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	ActivityName string `json:"activity_name"`
	CredentialID *int64 `json:"credential_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// AuditListResponse wraps the audit list with the empty-trail message.
type AuditListResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Message string               `json:"message,omitempty"`
}

// AppendAuditRequest is the JSON body for the audit append endpoint.
type AppendAuditRequest struct {
	ActivityName string `json:"activity_name"`
	CredentialID *int64 `json:"credential_id,omitempty"`
}

// SyncResponse reports either a full or an incremental pass.
type SyncResponse struct {
	Mode     string `json:"mode"`
	Inserted int    `json:"inserted,omitempty"`
	Total    int    `json:"total,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	Synced   int    `json:"synced,omitempty"`
	LastSync string `json:"last_sync,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Website:   c.Website,
		Username:  c.Username,
		Password:  c.Password,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAuditListResponse(list application.AuditList) AuditListResponse {
	entries := make([]AuditEntryResponse, 0, len(list.Entries))
	for _, e := range list.Entries {
		entries = append(entries, AuditEntryResponse{
			ID:           e.ID,
			UserID:       e.UserID,
			ActivityName: e.ActivityName,
			CredentialID: e.CredentialID,
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return AuditListResponse{Entries: entries, Message: list.Message}
}
