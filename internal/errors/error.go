package errors

import "fmt"

// Category groups errors by where they come from.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
	CategoryValidation Category = "validation"
)

// Error carries what went wrong plus enough context to fix it. Builder
// methods fill the optional fields and return the receiver for chaining.
type Error struct {
	// Code identifies the failure in a stable, grep-able way,
	// "config_missing" style. Optional.
	Code string

	// Category says which subsystem produced the error.
	Category Category

	// Message is the one-line summary.
	Message string

	// Detail expands on the message. Rendered wrapped, so it can be long.
	Detail string

	// Suggestion tells the user what to do about it.
	Suggestion string

	// Wrapped preserves the underlying cause for errors.Is/As.
	Wrapped error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithCode sets Code, chainable.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail sets Detail, chainable.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSuggestion sets Suggestion, chainable.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap records err as the cause, chainable.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New starts a structured error with a category and summary line.
func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

// Newf is New with Sprintf-style message construction.
func Newf(category Category, format string, args ...any) *Error {
	return New(category, fmt.Sprintf(format, args...))
}

// FromError lifts a plain error into a structured one. Nil stays nil and
// an *Error passes through untouched.
func FromError(err error, category Category) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(category, err.Error()).Wrap(err)
}
