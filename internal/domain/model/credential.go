package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Credential is one stored secret. ID is issued by the remote vault and
// mirrored verbatim in the local store.
type Credential struct {
	ID       int64
	UserID   int64
	Website  string
	Username string

	// EncryptedPassword is the at-rest material returned by the remote vault.
	// It is the only password form the local mirror ever holds.
	EncryptedPassword string

	// Password is plaintext revealed on demand. Transient, never persisted.
	Password string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trimmed returns a copy with whitespace removed from the text fields.
func (c Credential) Trimmed() Credential {
	c.Website = strings.TrimSpace(c.Website)
	c.Username = strings.TrimSpace(c.Username)
	return c
}

// HasIdentity reports whether the website and username labels are both set.
// Items without them cannot be mirrored.
func (c Credential) HasIdentity() bool {
	return strings.TrimSpace(c.Website) != "" && strings.TrimSpace(c.Username) != ""
}

// WithoutSecrets strips both password forms.
func (c Credential) WithoutSecrets() Credential {
	c.Password = ""
	c.EncryptedPassword = ""
	return c
}

// CredentialFields is the closed set of user-editable credential fields.
// A nil pointer means the field was not supplied.
type CredentialFields struct {
	Website  *string `json:"website,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// IsEmpty reports whether no field was supplied.
func (f CredentialFields) IsEmpty() bool {
	return f.Website == nil && f.Username == nil && f.Password == nil
}

// Trimmed returns a copy with whitespace removed from website and username.
// The password is left as supplied.
func (f CredentialFields) Trimmed() CredentialFields {
	if f.Website != nil {
		w := strings.TrimSpace(*f.Website)
		f.Website = &w
	}
	if f.Username != nil {
		u := strings.TrimSpace(*f.Username)
		f.Username = &u
	}
	return f
}

// ValidateComplete checks the fields required to create a credential.
func (f CredentialFields) ValidateComplete() error {
	if f.IsEmpty() {
		return Errorf(CodeInvalidInput, "credential fields are required")
	}
	if isBlank(f.Website) {
		return Errorf(CodeInvalidInput, "website is required")
	}
	if isBlank(f.Username) {
		return Errorf(CodeInvalidInput, "username is required")
	}
	if f.Password == nil || *f.Password == "" {
		return Errorf(CodeInvalidInput, "password is required")
	}
	return nil
}

// ValidatePartial checks fields for a partial update: at least one field must
// be present and present text fields must not be blank.
func (f CredentialFields) ValidatePartial() error {
	if f.IsEmpty() {
		return Errorf(CodeInvalidInput, "at least one of website, username or password is required")
	}
	if f.Website != nil && isBlank(f.Website) {
		return Errorf(CodeInvalidInput, "website must not be blank")
	}
	if f.Username != nil && isBlank(f.Username) {
		return Errorf(CodeInvalidInput, "username must not be blank")
	}
	if f.Password != nil && *f.Password == "" {
		return Errorf(CodeInvalidInput, "password must not be blank")
	}
	return nil
}

// DecodeCredentialFields parses a JSON object into CredentialFields. Unknown
// keys, non-object bodies and empty objects are rejected with InvalidInput.
func DecodeCredentialFields(data []byte) (CredentialFields, error) {
	var fields CredentialFields

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fields, Errorf(CodeInvalidInput, "credential fields must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return CredentialFields{}, WrapError(CodeInvalidInput, "invalid credential fields", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return CredentialFields{}, Errorf(CodeInvalidInput, "unexpected data after credential fields")
	}

	if fields.IsEmpty() {
		return fields, Errorf(CodeInvalidInput, "credential fields are required")
	}

	return fields, nil
}

// String never includes password material.
func (f CredentialFields) String() string {
	var parts []string
	if f.Website != nil {
		parts = append(parts, fmt.Sprintf("website=%q", *f.Website))
	}
	if f.Username != nil {
		parts = append(parts, fmt.Sprintf("username=%q", *f.Username))
	}
	if f.Password != nil {
		parts = append(parts, "password=<redacted>")
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
