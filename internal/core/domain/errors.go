package domain

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrorCode categorizes failures. The codes are stable and suitable for
// programmatic handling.
type ErrorCode string

const (
	// ErrCodeConfig marks fatal, non-retryable configuration problems:
	// missing metadata sources, unusable key material, bad allow-lists.
	ErrCodeConfig ErrorCode = "config_error"

	// ErrCodeAuthFailed marks a per-attempt authentication failure. The
	// error always carries a redirect hint back to the application entry
	// point or return URI.
	ErrCodeAuthFailed ErrorCode = "auth_failed"

	// ErrCodeProtocolViolation marks a malformed or tampered response.
	// Handled like an authentication failure but logged at a higher
	// severity, since it may indicate an attack.
	ErrCodeProtocolViolation ErrorCode = "protocol_violation"

	// ErrCodeTransient marks recoverable infrastructure failures such as
	// a metadata fetch timeout. Retried on the next resolve call.
	ErrCodeTransient ErrorCode = "transient"

	// ErrCodeInvalidToken is the single opaque failure for session token
	// decoding. Decrypt, signature, and deserialization failures are
	// never distinguished to the caller.
	ErrCodeInvalidToken ErrorCode = "invalid_token"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeAuthFailed, ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrCodeProtocolViolation:
		return http.StatusBadRequest
	case ErrCodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a structured error with code, message, optional cause, and
// an optional redirect hint for browser-facing failures. The Message is
// safe to surface to a user agent; diagnostic detail stays in Cause and
// is only ever logged server-side.
type AppError struct {
	Code     ErrorCode
	Message  string
	Cause    error
	Location *url.URL
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithLocation returns a copy of the error annotated with a redirect hint.
func (e *AppError) WithLocation(location *url.URL) *AppError {
	annotated := *e
	annotated.Location = location
	return &annotated
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeConfig, Message: message, Cause: cause}
}

// AuthError creates an authentication failure with optional cause.
func AuthError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeAuthFailed, Message: message, Cause: cause}
}

// ProtocolError creates a protocol violation error.
func ProtocolError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeProtocolViolation, Message: message, Cause: cause}
}

// TransientError creates a transient error.
func TransientError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message, Cause: cause}
}

// ErrInvalidToken is the only error surfaced by session token decoding.
var ErrInvalidToken = &AppError{Code: ErrCodeInvalidToken, Message: "invalid session token"}

// CodeOf extracts the ErrorCode from an error chain, or "" if the chain
// contains no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// LocationOf extracts the redirect hint from an error chain, or nil.
func LocationOf(err error) *url.URL {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Location
	}
	return nil
}

// AsAuthFailure coerces any error into an AuthenticationFailure routed to
// the given location. AppErrors keep their code; unknown errors are
// wrapped so internal detail never reaches the user-facing message.
func AsAuthFailure(err error, location *url.URL) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.WithLocation(location)
	}
	return &AppError{
		Code:     ErrCodeAuthFailed,
		Message:  "SAML authentication failed",
		Cause:    fmt.Errorf("authentication: %w", err),
		Location: location,
	}
}
