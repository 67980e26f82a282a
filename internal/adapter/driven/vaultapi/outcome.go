package vaultapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ericfisherdev/vaultsync/internal/domain/model"
)

// OutcomeKind tags a TransportOutcome.
type OutcomeKind int

const (
	// OutcomeOK is a 2xx response whose envelope reported success.
	OutcomeOK OutcomeKind = iota
	// OutcomeRejected is a 2xx response without a success envelope.
	OutcomeRejected
	// OutcomeHTTPError is a non-2xx status.
	OutcomeHTTPError
	// OutcomeNoResponse means the request left but nothing usable came back.
	OutcomeNoResponse
	// OutcomeLocalFailure means the request could not be built.
	OutcomeLocalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeNoResponse:
		return "no_response"
	case OutcomeLocalFailure:
		return "local_failure"
	default:
		return "unknown"
	}
}

// TransportOutcome is the single decoded result of one remote call. Data is
// set only for OutcomeOK; Message carries the remote error text when the
// server supplied one.
type TransportOutcome struct {
	Kind    OutcomeKind
	Status  int
	Data    json.RawMessage
	Message string
	Cause   error
}

// AsError maps the outcome onto the domain error taxonomy. It returns nil
// for OutcomeOK.
func (o TransportOutcome) AsError() error {
	switch o.Kind {
	case OutcomeOK:
		return nil
	case OutcomeRejected:
		return model.WrapError(model.CodeInvalidResponse, orDefault(o.Message, "invalid response from server"), o.Cause)
	case OutcomeHTTPError:
		cause := fmt.Errorf("status %d", o.Status)
		switch o.Status {
		case http.StatusUnauthorized:
			return model.WrapError(model.CodeNoSession, "authentication required", cause)
		case http.StatusForbidden:
			return model.WrapError(model.CodeAccessDenied, "access denied", cause)
		case http.StatusNotFound:
			return model.WrapError(model.CodeNotFound, orDefault(o.Message, "not found"), cause)
		case http.StatusConflict:
			return model.WrapError(model.CodeConflict, orDefault(o.Message, "conflict"), cause)
		default:
			return model.WrapError(model.CodeServerError, orDefault(o.Message, "server error"), cause)
		}
	case OutcomeNoResponse:
		return model.WrapError(model.CodeNetworkError, "network error - server unreachable", o.Cause)
	default:
		return model.WrapError(model.CodeClientError, "client error", o.Cause)
	}
}

// envelope is the fixed response wrapper used by every endpoint.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// payload returns data, falling back to result.
func (e envelope) payload() json.RawMessage {
	if present(e.Data) {
		return e.Data
	}
	if present(e.Result) {
		return e.Result
	}
	return nil
}

// errorText extracts the remote error. The error field may be a string or an
// object with a message; message is the fallback.
func (e envelope) errorText() string {
	if present(e.Error) {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return strings.TrimSpace(obj.Message)
		}
	}
	return strings.TrimSpace(e.Message)
}

func decodeOutcome(status int, raw []byte) TransportOutcome {
	if status < 200 || status >= 300 {
		out := TransportOutcome{Kind: OutcomeHTTPError, Status: status}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			out.Message = env.errorText()
		}
		return out
	}

	if status == http.StatusNoContent {
		return TransportOutcome{Kind: OutcomeOK, Status: status}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return rejected(status, errors.New("empty response body"))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return rejected(status, fmt.Errorf("decode envelope: %w", err))
	}
	if env.Success == nil {
		return rejected(status, errors.New("envelope missing success flag"))
	}
	if !*env.Success {
		out := rejected(status, errors.New("envelope reported failure"))
		out.Message = env.errorText()
		return out
	}

	return TransportOutcome{Kind: OutcomeOK, Status: status, Data: env.payload()}
}

func rejected(status int, cause error) TransportOutcome {
	return TransportOutcome{Kind: OutcomeRejected, Status: status, Cause: cause}
}

func noResponse(cause error) TransportOutcome {
	return TransportOutcome{Kind: OutcomeNoResponse, Cause: cause}
}

func localFailure(cause error) TransportOutcome {
	return TransportOutcome{Kind: OutcomeLocalFailure, Cause: cause}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
