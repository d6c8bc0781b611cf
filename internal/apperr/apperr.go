// Package apperr classifies failures so the outer call boundary can turn any
// error into a structured result.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class reported to callers.
type Kind string

const (
	// KindNotFound means an appointment, patient or provider did not resolve.
	KindNotFound Kind = "NOT_FOUND"

	// KindInvalidInput covers malformed or past timestamps and bad dates.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindUnavailable is the algorithmic "no" when a write needs a free slot.
	KindUnavailable Kind = "UNAVAILABLE"

	// KindPreconditionFailed means the record is not in a state that allows the change.
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"

	// KindInternal is everything else, store outages included.
	KindInternal Kind = "INTERNAL"
)

// Error carries a kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

func InvalidInput(message string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Err: err}
}

func Unavailable(message string) *Error {
	return &Error{Kind: KindUnavailable, Message: message}
}

func PreconditionFailed(message string) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fmt.Sprintf("An error occurred: %v", err)
}
