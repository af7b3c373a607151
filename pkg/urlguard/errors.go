package urlguard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNavigation is wrapped by every guard failure.
	ErrInvalidNavigation = errors.New("urlguard: invalid navigation")

	// ErrUnknownRoute is returned by BuildFromRoute for an unregistered name.
	ErrUnknownRoute = errors.New("urlguard: unknown route")

	// ErrURLAlreadyMutated is returned by the second EnforceSingleUse call
	// of a response.
	ErrURLAlreadyMutated = errors.New("urlguard: url already mutated in this response")

	// ErrCrossOrigin is returned for an absolute URL on a foreign host.
	ErrCrossOrigin = errors.New("urlguard: cross-origin target")
)

// Error describes a rejected navigation.
type Error struct {
	URL    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidNavigation, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %q", ErrInvalidNavigation, e.Reason, e.URL)
}

// Unwrap exposes ErrInvalidNavigation and the specific cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidNavigation}
	}
	return []error{ErrInvalidNavigation, e.Err}
}

// Code returns the diagnostic error code.
func (e *Error) Code() string {
	switch {
	case errors.Is(e.Err, ErrUnknownRoute):
		return "DS011"
	case errors.Is(e.Err, ErrURLAlreadyMutated):
		return "DS012"
	default:
		return "DS010"
	}
}

func invalid(u, reason string, err error) *Error {
	return &Error{URL: u, Reason: reason, Err: err}
}
