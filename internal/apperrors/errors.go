package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies conversion failures for HTTP mapping and monitoring.
type Kind string

const (
	KindBadInput         Kind = "bad_input"
	KindTooLarge         Kind = "too_large"
	KindInvalidSource    Kind = "invalid_source"
	KindSecurityRejected Kind = "security_rejected"
	KindSourceTooSmall   Kind = "source_too_small"
	KindRenderFailed     Kind = "render_failed"
	KindEncodeFailed     Kind = "encode_failed"
	KindTooComplex       Kind = "too_complex"
	KindBusy             Kind = "busy"
	KindTimeout          Kind = "timeout"
	KindWorkerCrashed    Kind = "worker_crashed"
	KindRateLimited      Kind = "rate_limited"
	KindUnauthorized     Kind = "unauthorized"
	KindShuttingDown     Kind = "shutting_down"
	KindInternal         Kind = "internal"
)

// ConversionError is the structured error type used throughout the module.
// Message is safe to show to clients; Err carries the internal cause and
// goes to logs only.
type ConversionError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// New creates a ConversionError with a client-safe message.
func New(kind Kind, message string) *ConversionError {
	return &ConversionError{Kind: kind, Message: message}
}

// Newf creates a ConversionError with a formatted client-safe message.
func Newf(kind Kind, format string, args ...interface{}) *ConversionError {
	return &ConversionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an internal cause to a ConversionError.
func Wrap(kind Kind, message string, err error) *ConversionError {
	return &ConversionError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or KindInternal if err is not a
// ConversionError.
func KindOf(err error) Kind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// Is reports whether err is a ConversionError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage returns the client-safe message for err. Internal errors get
// a generic message so library text never leaks to clients.
func UserMessage(err error) string {
	var ce *ConversionError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return "Unexpected error; please retry"
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadInput, KindInvalidSource, KindSecurityRejected, KindSourceTooSmall,
		KindRenderFailed, KindEncodeFailed, KindTooComplex, KindTimeout:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBusy:
		return http.StatusServiceUnavailable
	case KindShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
