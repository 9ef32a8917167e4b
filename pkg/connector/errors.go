package connector

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrReplyTargetRequired is wrapped by the ArgumentError returned when a reply
// is attempted without a ReplyToID.
var ErrReplyTargetRequired = errors.New("connector: reply target id is required")

// ============================================================================
// ArgumentError
// ============================================================================

// ArgumentError reports a missing required argument. It is always raised
// before any request is sent, so it indicates a caller bug rather than a
// backend failure.
type ArgumentError struct {
	// Operation is the diagnostic scope name, e.g. "UserTokenClient.GetUserToken".
	Operation string

	// Param is the name of the missing argument.
	Param string

	// Err optionally carries a more specific sentinel.
	Err error
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Param, e.Err)
	}
	return fmt.Sprintf("%s: %s is required", e.Operation, e.Param)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ArgumentError) Unwrap() error { return e.Err }

// ============================================================================
// RequestFailedError
// ============================================================================

// RequestFailedError is returned when a backend answers with a status the
// operation does not accept. The raw body is kept for diagnostics; Code and
// Message are filled in when the body is a connector ErrorResponse.
type RequestFailedError struct {
	StatusCode int
	Body       []byte
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *RequestFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed with status %d: (%s) %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// newRequestFailedError builds a RequestFailedError, parsing the connector
// error envelope when the body carries one.
func newRequestFailedError(status int, body []byte) *RequestFailedError {
	rerr := &RequestFailedError{
		StatusCode: status,
		Body:       body,
	}

	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		rerr.Code = envelope.Error.Code
		rerr.Message = envelope.Error.Message
	}

	return rerr
}

// IsStatus reports whether err is a RequestFailedError with the given status.
func IsStatus(err error, status int) bool {
	var rerr *RequestFailedError
	if errors.As(err, &rerr) {
		return rerr.StatusCode == status
	}
	return false
}

// ============================================================================
// ExchangeError
// ============================================================================

// ExchangeError is returned when the token service answers a token exchange
// with an error-shaped body. It is never treated as "no token".
type ExchangeError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("unable to exchange token: (%s) %s", e.Code, e.Message)
}
