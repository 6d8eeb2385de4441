// Package apperr defines the error kinds returned by request-path operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

// Error kinds
const (
	KindValidation  Kind = "validation_error"
	KindConflict    Kind = "conflict"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindComputation Kind = "computation_error"
	KindInternal    Kind = "internal_error"
)

// Error is an application error carrying its kind and, for validation failures, the offending field.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or out-of-domain input in field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Conflict reports an operation rejected by the current state.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Forbidden reports an operation the actor may not perform.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound reports an unknown record.
func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", what, id)}
}

// Computation reports a derived value that could not be computed.
func Computation(field string, err error) *Error {
	return &Error{Kind: KindComputation, Field: field, Message: "could not be computed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
