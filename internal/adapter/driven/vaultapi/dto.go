package vaultapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// flexInt decodes an integer sent either as a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse integer %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", n, err)
	}
	*f = flexInt(v)
	return nil
}

// credentialDTO is the remote vault item. The prefixed field names are
// canonical; website and username are accepted from older servers.
type credentialDTO struct {
	ID                 flexInt `json:"id"`
	UserID             flexInt `json:"user_id"`
	CredentialWebsite  string  `json:"credential_website"`
	Website            string  `json:"website"`
	CredentialUsername string  `json:"credential_username"`
	Username           string  `json:"username"`
	CredentialPassword string  `json:"credential_password"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// toModel maps the DTO without trimming; sync decides what is valid.
func (d credentialDTO) toModel() model.Credential {
	return model.Credential{
		ID:                int64(d.ID),
		UserID:            int64(d.UserID),
		Website:           firstNonEmpty(d.CredentialWebsite, d.Website),
		Username:          firstNonEmpty(d.CredentialUsername, d.Username),
		EncryptedPassword: d.CredentialPassword,
		CreatedAt:         parseRemoteTime(d.CreatedAt),
		UpdatedAt:         parseRemoteTime(d.UpdatedAt),
	}
}

// credentialBody is the create/update request body. Omitted fields are left
// unchanged by the server on update.
type credentialBody struct {
	UserID             int64   `json:"user_id"`
	CredentialWebsite  *string `json:"credential_website,omitempty"`
	CredentialUsername *string `json:"credential_username,omitempty"`
	CredentialPassword *string `json:"credential_password,omitempty"`
}

func newCredentialBody(userID int64, fields model.CredentialFields) credentialBody {
	return credentialBody{
		UserID:             userID,
		CredentialWebsite:  fields.Website,
		CredentialUsername: fields.Username,
		CredentialPassword: fields.Password,
	}
}

type auditDTO struct {
	ID           flexInt  `json:"id"`
	UserID       flexInt  `json:"user_id"`
	ActivityName string   `json:"activity_name"`
	CredentialID *flexInt `json:"credential_id"`
	CreatedAt    string   `json:"created_at"`
	Timestamp    string   `json:"timestamp"`
}

func (d auditDTO) toModel() model.AuditEntry {
	entry := model.AuditEntry{
		ID:           int64(d.ID),
		UserID:       int64(d.UserID),
		ActivityName: d.ActivityName,
		CreatedAt:    parseRemoteTime(firstNonEmpty(d.CreatedAt, d.Timestamp)),
	}
	if d.CredentialID != nil && *d.CredentialID != 0 {
		id := int64(*d.CredentialID)
		entry.CredentialID = &id
	}
	return entry
}

// auditBody is the audit append request body.
type auditBody struct {
	UserID       int64  `json:"userId"`
	CredID       *int64 `json:"credId,omitempty"`
	ActivityName string `json:"activityName"`
}

type sessionDTO struct {
	UserID json.RawMessage `json:"user_id"`
}

// userID renders user_id as text whether it was sent as a number or a string.
func (d sessionDTO) userID() string {
	if !present(d.UserID) {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.UserID, &s); err == nil {
		return model.NormalizeUserID(s)
	}
	var n json.Number
	if err := json.Unmarshal(d.UserID, &n); err == nil {
		return model.NormalizeUserID(n.String())
	}
	return ""
}

// remoteTimeLayouts are tried in order. The server emits RFC 3339; SQL-style
// timestamps are treated as UTC.
var remoteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseRemoteTime returns the zero time for missing or unparseable values.
func parseRemoteTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range remoteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
