package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error kinds returned by services. The HTTP layer maps each kind to a
// status code; match them with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is a client-facing failure of a given kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the client-facing message carried by err, if any.
func Message(err error) (string, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message, true
	}
	return "", false
}

// InvalidArgument builds an ErrInvalidArgument failure for request
// parameters that are well-formed but contradictory.
func InvalidArgument(message string) error {
	return newError(ErrInvalidArgument, "%s", message)
}

// Validation builds an ErrValidation failure.
func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
