package core

// core/errors.go — machine-readable error kinds shared by every subsystem.
// Local validation failures never reach the wire; transport and server
// failures are folded into CONNECTION / REMOTE / PROTOCOL.

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a class of failure in a machine-readable way.
type ErrorKind string

const (
	ErrValidation       ErrorKind = "VALIDATION_FAILED"
	ErrSchemaMismatch   ErrorKind = "SCHEMA_MISMATCH"
	ErrNotImplemented   ErrorKind = "NOT_IMPLEMENTED"
	ErrConnection       ErrorKind = "CONNECTION"
	ErrRemote           ErrorKind = "REMOTE"
	ErrProtocol         ErrorKind = "PROTOCOL"
	ErrUnsupportedValue ErrorKind = "UNSUPPORTED_VALUE"
)

// Error carries an ErrorKind alongside a human-readable message. It is the
// only error type returned across the public API; invariant violations panic
// instead of surfacing as recoverable errors.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Errf builds an Error of the given kind with a formatted message.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr builds an Error of the given kind wrapping an underlying cause.
func WrapErr(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf("%s: %v", message, err), cause: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
