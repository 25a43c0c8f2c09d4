// Package apperr defines the business error taxonomy returned by the access
// and transfer packages. Every error kind maps to a connect code.
package apperr

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// Kind classifies an error.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Code returns the connect code for the kind. Conflicts are failed
// preconditions, which the connect protocol sends as HTTP 400.
func (k Kind) Code() connect.Code {
	switch k {
	case KindValidation:
		return connect.CodeInvalidArgument
	case KindConflict:
		return connect.CodeFailedPrecondition
	case KindNotFound:
		return connect.CodeNotFound
	case KindForbidden:
		return connect.CodePermissionDenied
	default:
		return connect.CodeInternal
	}
}

// Error is a classified error. Message is safe to show to callers; Err is the
// optional underlying cause and is never rendered.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the connect code for the error.
func (e *Error) Code() connect.Code { return e.Kind.Code() }

// Validation returns an error for malformed input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns an error for a missing transfer or organization.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns an error for a caller without the required access.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns an error for a request that is invalid in the current state.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure, typically from storage.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// CodeOf returns the connect code for any error.
func CodeOf(err error) connect.Code {
	return KindOf(err).Code()
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
