package model

// ErrorCode classifies a failure surfaced by the vault facades.
type ErrorCode string

const (
	CodeNoSession       ErrorCode = "NO_SESSION"       // No signed-in identity could be resolved.
	CodeAccessDenied    ErrorCode = "ACCESS_DENIED"    // Resolved identity differs from the claimed one.
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"    // Rejected before any I/O.
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE" // Remote replied without a success envelope.
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeNetworkError    ErrorCode = "NETWORK_ERROR" // No response received.
	CodeServerError     ErrorCode = "SERVER_ERROR"  // Unclassified error status.
	CodeClientError     ErrorCode = "CLIENT_ERROR"
)

// Activity names recorded in the remote audit trail.
const (
	ActivityCredentialAdded   = "credential_added"
	ActivityCredentialUpdated = "credential_updated"
	ActivityCredentialDeleted = "credential_deleted"
	ActivityPasswordRevealed  = "password_revealed"
)
