package errors

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Category groups error codes.
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryNavigation Category = "navigation"
	CategoryValidation Category = "validation"
	CategoryProtocol   Category = "protocol"
	CategoryStream     Category = "stream"
	CategoryConfig     Category = "config"
)

// Error is a structured error with an explanation and a fix hint.
type Error struct {
	// Code is the registered identifier, e.g. "DS001".
	Code string

	// Category is the error group.
	Category Category

	// Message is a short description.
	Message string

	// Detail is a longer explanation.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Stack holds goroutine stack lines for recovered panics.
	Stack []string

	// Wrapped is the underlying error.
	Wrapped error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Wrapped != nil && e.Wrapped.Error() != e.Message {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail sets the explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSuggestion sets the hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithStack records the current goroutine stack.
func (e *Error) WithStack() *Error {
	e.Stack = strings.Split(strings.TrimSpace(string(debug.Stack())), "\n")
	return e
}

// Wrap sets the underlying error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{Code: code, Message: "Unknown error"}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an uncoded Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// coder is implemented by package errors that know their code.
type coder interface {
	Code() string
}

// From converts err into an *Error. Errors in the chain that report a
// registered code through a Code() string method take that code; anything
// else becomes DS099.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	var c coder
	if stderrors.As(err, &c) {
		if _, ok := registry[c.Code()]; ok {
			return New(c.Code()).Wrap(err)
		}
	}
	return New("DS099").Wrap(err)
}

// Panic converts a recovered value into a DS032 error with a stack.
func Panic(v any) *Error {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}
	return New("DS032").Wrap(err).WithStack()
}
