package model

import "time"

// AuditEntry is one append-only activity record held by the remote service.
// It is never mirrored locally.
type AuditEntry struct {
	ID           int64
	UserID       int64
	ActivityName string
	CredentialID *int64 // Nil for activities not tied to a credential.
	CreatedAt    time.Time
}
