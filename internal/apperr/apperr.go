// Package apperr defines the typed error taxonomy used across the service.
// Handlers map an Error's Kind to an HTTP status; everywhere else code
// should construct one of these instead of a bare fmt.Errorf so the
// boundary mapping stays correct.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a coarse error category independent of any particular transport.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindInternal      Kind = "internal"
)

// Error is an application error carrying a Kind for transport mapping and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return new_(KindValidation, fmt.Sprintf(format, args...), nil)
}

func Authorization(format string, args ...any) *Error {
	return new_(KindAuthorization, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...any) *Error {
	return new_(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func Upstream(cause error, format string, args ...any) *Error {
	return new_(KindUpstream, fmt.Sprintf(format, args...), cause)
}

func QuotaExceeded(format string, args ...any) *Error {
	return new_(KindQuotaExceeded, fmt.Sprintf(format, args...), nil)
}

func Internal(cause error, format string, args ...any) *Error {
	return new_(KindInternal, fmt.Sprintf(format, args...), cause)
}

// HTTPStatus maps an error to a status code. Errors that are not *Error are
// treated as internal.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
