package vaultapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// CurrentSession resolves the identity behind the session cookie. An empty
// Session with a nil error means the server answered without an identity.
func (c *Client) CurrentSession(ctx context.Context) (model.Session, error) {
	out := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/user/session",
		endpoint: "session",
		noStore:  true,
	})
	if err := out.AsError(); err != nil {
		return model.Session{}, err
	}

	var dto sessionDTO
	if err := decodeJSON(out, &dto); err != nil {
		return model.Session{}, err
	}
	return model.Session{UserID: dto.userID()}, nil
}

// ListVault fetches the full vault for the user.
func (c *Client) ListVault(ctx context.Context, userID int64) ([]model.Credential, error) {
	return c.listCredentials(ctx, call{
		method:   http.MethodGet,
		path:     "/api/vault",
		endpoint: "vault_list",
		query:    url.Values{"user_id": {strconv.FormatInt(userID, 10)}},
		userID:   userID,
	})
}

// ListVaultSince fetches only items changed after since.
func (c *Client) ListVaultSince(ctx context.Context, userID int64, since time.Time) ([]model.Credential, error) {
	return c.listCredentials(ctx, call{
		method:   http.MethodGet,
		path:     "/api/vault/sync",
		endpoint: "vault_sync",
		query: url.Values{
			"user_id": {strconv.FormatInt(userID, 10)},
			"since":   {since.UTC().Format(time.RFC3339Nano)},
		},
		userID: userID,
	})
}

func (c *Client) listCredentials(ctx context.Context, cl call) ([]model.Credential, error) {
	out := c.do(ctx, cl)
	if err := out.AsError(); err != nil {
		return nil, err
	}

	var dtos []credentialDTO
	if err := decodeJSON(out, &dtos); err != nil {
		return nil, err
	}

	creds := make([]model.Credential, 0, len(dtos))
	for _, d := range dtos {
		creds = append(creds, d.toModel())
	}
	return creds, nil
}

// CreateCredential stores a new credential and returns the server's record.
func (c *Client) CreateCredential(ctx context.Context, userID int64, fields model.CredentialFields) (model.Credential, error) {
	out := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/vault",
		endpoint: "vault_create",
		body:     newCredentialBody(userID, fields),
		userID:   userID,
		noStore:  true,
	})
	return credentialFromOutcome(out)
}

// UpdateCredential applies a partial update and returns the server's record.
func (c *Client) UpdateCredential(ctx context.Context, userID, id int64, fields model.CredentialFields) (model.Credential, error) {
	out := c.do(ctx, call{
		method:   http.MethodPatch,
		path:     "/api/vault/" + strconv.FormatInt(id, 10),
		endpoint: "vault_update",
		body:     newCredentialBody(userID, fields),
		userID:   userID,
		noStore:  true,
	})
	return credentialFromOutcome(out)
}

func (c *Client) DeleteCredential(ctx context.Context, userID, id int64) error {
	out := c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/vault/" + strconv.FormatInt(id, 10),
		endpoint: "vault_delete",
		query:    url.Values{"user_id": {strconv.FormatInt(userID, 10)}},
		userID:   userID,
	})
	return out.AsError()
}

// RevealPassword fetches the decrypted password. The payload is either a
// bare JSON string or an object with a password field.
func (c *Client) RevealPassword(ctx context.Context, userID, id int64) (string, error) {
	out := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/vault/" + strconv.FormatInt(id, 10) + "/password",
		endpoint: "vault_reveal",
		query:    url.Values{"user_id": {strconv.FormatInt(userID, 10)}},
		userID:   userID,
		noStore:  true,
	})
	if err := out.AsError(); err != nil {
		return "", err
	}
	if !present(out.Data) {
		return "", model.Errorf(model.CodeInvalidResponse, "invalid response from server")
	}

	var plain string
	if err := json.Unmarshal(out.Data, &plain); err == nil {
		return plain, nil
	}

	var obj struct {
		Password *string `json:"password"`
	}
	if err := decodeJSON(out, &obj); err != nil {
		return "", err
	}
	if obj.Password == nil {
		return "", model.Errorf(model.CodeInvalidResponse, "invalid response from server")
	}
	return *obj.Password, nil
}

// credentialFromOutcome decodes a single-item response. A record without an
// ID cannot be mirrored and is reported as an invalid response.
func credentialFromOutcome(out TransportOutcome) (model.Credential, error) {
	if err := out.AsError(); err != nil {
		return model.Credential{}, err
	}

	var dto credentialDTO
	if err := decodeJSON(out, &dto); err != nil {
		return model.Credential{}, err
	}
	if dto.ID <= 0 {
		return model.Credential{}, model.Errorf(model.CodeInvalidResponse, "invalid response from server: missing credential id")
	}
	return dto.toModel(), nil
}
