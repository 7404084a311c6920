package app

import (
	"errors"
	"fmt"
)

// Error kinds returned by the service. Callers match them with errors.Is.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("conflict")
)

// Error carries a kind plus a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrAuthenticationRequired, ErrAuthorizationDenied, ErrNotFound, ErrValidation, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
