package signals

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTamperedSignal means a submitted locked value differs from the
	// stored one, or the stored record failed to decrypt.
	ErrTamperedSignal = errors.New("signals: locked signal tampered")

	// ErrUnexpectedLockedSignal means the client submitted a locked signal
	// the server never set.
	ErrUnexpectedLockedSignal = errors.New("signals: unexpected locked signal")

	// ErrNoEncrypter is returned when locked signals are used without an
	// Encrypter.
	ErrNoEncrypter = errors.New("signals: no encrypter configured")

	// ErrNoSession is returned when locked signals are used without a
	// session.
	ErrNoSession = errors.New("signals: no session")

	// ErrNotLocked is returned by UpdateLocked for a name without the
	// locked suffix.
	ErrNotLocked = errors.New("signals: not a locked signal")
)

// TamperError reports a failed locked-signal check.
type TamperError struct {
	// Name is the offending signal; empty when the record itself is bad.
	Name   string
	Reason string
	Err    error
}

func (e *TamperError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Name, e.Reason)
}

func (e *TamperError) Unwrap() error {
	return e.Err
}

// Code returns the diagnostic error code.
func (e *TamperError) Code() string {
	if errors.Is(e.Err, ErrUnexpectedLockedSignal) {
		return "DS002"
	}
	return "DS001"
}

// ValidationError carries per-signal messages from Validate. Callers
// usually push Fields back to the client as the "errors" signal.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "signals: validation failed: " + strings.Join(names, ", ")
}

// Code returns the diagnostic error code.
func (e *ValidationError) Code() string {
	return "DS020"
}
