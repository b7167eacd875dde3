// Package apperr is the error taxonomy shared by the authorization, session
// and notification layers. Boundary code maps Kind to a transport status.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"osutourney.org/internal/obs"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindUnexpected   Kind = "unexpected"
)

// Error is the {kind, message} shape surfaced to callers. Op and Err are for
// server-side logs only.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return newf(KindBadRequest, format, args...)
}

// Unexpected wraps an unclassified failure with the operation that was being
// attempted, e.g. "getting the staff member". The cause is logged here and
// kept on the error; the message stays generic. Errors that already carry a
// kind are returned untouched.
func Unexpected(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	obs.From(ctx).Error("unexpected error", obs.Op(op), zap.Error(err))
	return &Error{
		Kind:    KindUnexpected,
		Message: "An unexpected error occurred while " + op,
		Op:      op,
		Err:     err,
	}
}

// KindOf extracts the kind of err; unclassified errors are unexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Public returns the kind and caller-safe message for err.
func Public(err error) (Kind, string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == KindUnexpected && appErr.Message == "" {
			return KindUnexpected, "An unexpected error occurred"
		}
		return appErr.Kind, appErr.Message
	}
	return KindUnexpected, "An unexpected error occurred"
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
