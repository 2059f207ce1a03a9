// Package errs implements the error taxonomy handlers and the executor use
// to classify failures: a kind plus a human diagnostic, never an exception
// hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why a node or poll iteration failed.
type Kind string

const (
	KindConfigError            Kind = "ConfigError"
	KindUpstreamError          Kind = "UpstreamError"
	KindUnknownNodeType        Kind = "UnknownNodeType"
	KindCycleDetected          Kind = "CycleDetected"
	KindPollerError            Kind = "PollerError"
	KindCredentialRefreshError Kind = "CredentialRefreshError"
)

// Error pairs a Kind with a diagnostic message and optional cause.
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

// New builds a kinded error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kinded error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
