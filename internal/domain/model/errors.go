package model

import (
	"errors"
	"fmt"
)

// Error is the classified failure surfaced to callers of the vault facades.
// Message is the caller-facing text; Err carries the underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Sentinels for errors.Is matching by code.
var (
	ErrNoSession       = &Error{Code: CodeNoSession}
	ErrAccessDenied    = &Error{Code: CodeAccessDenied}
	ErrInvalidInput    = &Error{Code: CodeInvalidInput}
	ErrInvalidResponse = &Error{Code: CodeInvalidResponse}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrNetwork         = &Error{Code: CodeNetworkError}
	ErrServer          = &Error{Code: CodeServerError}
	ErrClient          = &Error{Code: CodeClientError}
)

// Errorf builds a classified error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a classified error around a cause.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, ClientError for
// unclassified errors, and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeClientError
}

// Classify returns err unchanged when it already carries a code, otherwise it
// wraps it as a ClientError with the given message.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return WrapError(CodeClientError, message, err)
}
