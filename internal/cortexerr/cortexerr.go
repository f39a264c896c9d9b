// Package cortexerr defines the error taxonomy shared by every core
// component: a closed set of kinds plus a wrapped-cause error type that
// plays along with errors.Is and errors.As.
package cortexerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the component contracts.
type Kind string

const (
	DimensionMismatch  Kind = "dimension_mismatch"
	CapacityExceeded   Kind = "capacity_exceeded"
	DuplicateDocument  Kind = "duplicate_document"
	NodeNotFound       Kind = "node_not_found"
	InvalidWeights     Kind = "invalid_weights"
	PersistenceError   Kind = "persistence_error"
	QueryProcessingErr Kind = "query_processing_error"
)

// Error wraps a Kind with a message and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that carries cause as its wrapped error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
