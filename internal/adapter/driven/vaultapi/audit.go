package vaultapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// AppendAudit records one activity in the remote audit trail.
func (c *Client) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	out := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/audit-trail",
		endpoint: "audit_append",
		body: auditBody{
			UserID:       entry.UserID,
			CredID:       entry.CredentialID,
			ActivityName: entry.ActivityName,
		},
		userID: entry.UserID,
	})
	return out.AsError()
}

// ListAudit fetches the user's audit trail, newest first as the server
// returns it.
func (c *Client) ListAudit(ctx context.Context, userID int64) ([]model.AuditEntry, error) {
	out := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/audit-trail",
		endpoint: "audit_list",
		query:    url.Values{"user_id": {strconv.FormatInt(userID, 10)}},
		userID:   userID,
		noStore:  true,
	})
	if err := out.AsError(); err != nil {
		return nil, err
	}

	var dtos []auditDTO
	if err := decodeJSON(out, &dtos); err != nil {
		return nil, err
	}

	entries := make([]model.AuditEntry, 0, len(dtos))
	for _, d := range dtos {
		entries = append(entries, d.toModel())
	}
	return entries, nil
}
