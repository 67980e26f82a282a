// Package httphandler serves the local JSON API over the vault facades.
package httphandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/vaultsync/internal/application"
	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// CredentialFacade is the subset of application.CredentialService the API uses.
type CredentialFacade interface {
	List(ctx context.Context, userID int64) ([]model.Credential, error)
	Get(ctx context.Context, userID, id int64) (*model.Credential, error)
	Add(ctx context.Context, userID int64, fields model.CredentialFields) (*model.Credential, error)
	Update(ctx context.Context, userID, id int64, fields model.CredentialFields) (*model.Credential, error)
	Delete(ctx context.Context, userID, id int64) error
}

// SyncRunner is the subset of application.SyncService the API uses. Passes
// for the background loop's user are queued behind that loop.
type SyncRunner interface {
	RunFull(ctx context.Context, userID int64) (application.SyncResult, error)
	RunIncremental(ctx context.Context, userID int64) (application.IncrementalResult, error)
}

// AuditFacade is the subset of application.AuditService the API uses.
type AuditFacade interface {
	Append(ctx context.Context, userID int64, activityName string, credentialID *int64) error
	List(ctx context.Context, userID int64) (application.AuditList, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	credentials CredentialFacade
	sync        SyncRunner
	audit       AuditFacade
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	credentials CredentialFacade,
	sync SyncRunner,
	audit AuditFacade,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credentials: credentials,
		sync:        sync,
		audit:       audit,
		logger:      logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/credentials", h.ListCredentials)
			r.Post("/credentials", h.AddCredential)
			r.Get("/credentials/{id}", h.GetCredential)
			r.Patch("/credentials/{id}", h.UpdateCredential)
			r.Delete("/credentials/{id}", h.DeleteCredential)

			r.Post("/sync", h.Sync)

			r.Get("/audit", h.ListAudit)
			r.Post("/audit", h.AppendAudit)
		})
	})

	return r
}

// ListCredentials returns the user's credentials without passwords.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	creds, err := h.credentials.List(r.Context(), userID)
	if err != nil {
		h.fail(w, "failed to list credentials", err, "user_id", userID)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCredential returns one credential with its password revealed.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	cred, err := h.credentials.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, "failed to get credential", err, "user_id", userID, "id", id)
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(*cred))
}

// AddCredential creates a credential from a JSON body with website, username
// and password.
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	cred, err := h.credentials.Add(r.Context(), userID, fields)
	if err != nil {
		h.fail(w, "failed to add credential", err, "user_id", userID)
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResponse(*cred))
}

// UpdateCredential applies a partial update from a JSON body.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	cred, err := h.credentials.Update(r.Context(), userID, id, fields)
	if err != nil {
		h.fail(w, "failed to update credential", err, "user_id", userID, "id", id)
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(*cred))
}

// DeleteCredential removes a credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.credentials.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, "failed to delete credential", err, "user_id", userID, "id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Sync runs a full pass, or an incremental one with ?mode=incremental.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "full":
		result, err := h.sync.RunFull(r.Context(), userID)
		if err != nil {
			h.fail(w, "full sync failed", err, "user_id", userID)
			return
		}
		writeJSON(w, http.StatusOK, SyncResponse{
			Mode:     "full",
			Inserted: result.Inserted,
			Total:    result.Total,
			Skipped:  result.Skipped,
		})
	case "incremental":
		result, err := h.sync.RunIncremental(r.Context(), userID)
		if err != nil {
			h.fail(w, "incremental sync failed", err, "user_id", userID)
			return
		}
		writeJSON(w, http.StatusOK, SyncResponse{
			Mode:     "incremental",
			Synced:   result.Synced,
			LastSync: result.LastSync.UTC().Format(time.RFC3339Nano),
		})
	default:
		writeError(w, http.StatusBadRequest, "mode must be full or incremental")
	}
}

// ListAudit returns the user's audit trail.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	list, err := h.audit.List(r.Context(), userID)
	if err != nil {
		h.fail(w, "failed to list audit trail", err, "user_id", userID)
		return
	}

	writeJSON(w, http.StatusOK, toAuditListResponse(list))
}

// AppendAudit records an activity from a JSON body.
func (h *Handler) AppendAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	var req AppendAuditRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.audit.Append(r.Context(), userID, req.ActivityName, req.CredentialID); err != nil {
		h.fail(w, "failed to append audit entry", err, "user_id", userID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// fail logs unexpected failures and writes the mapped error response.
// Input and authorization errors are expected and logged at debug.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "code", string(model.CodeOf(err)))
	switch model.CodeOf(err) {
	case model.CodeInvalidInput, model.CodeNotFound, model.CodeConflict, model.CodeNoSession, model.CodeAccessDenied:
		h.logger.Debug(msg, attrs...)
	default:
		h.logger.Error(msg, attrs...)
	}
	writeDomainError(w, err)
}

// pathID parses a positive integer URL parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// decodeFields reads a credential body, rejecting unknown and empty fields.
func decodeFields(w http.ResponseWriter, r *http.Request) (model.CredentialFields, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return model.CredentialFields{}, false
	}

	fields, err := model.DecodeCredentialFields(body)
	if err != nil {
		writeDomainError(w, err)
		return model.CredentialFields{}, false
	}
	return fields, true
}
