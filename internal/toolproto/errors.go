package toolproto

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a tool invocation failure.
type ErrorKind string

const (
	// ErrorTimeout indicates the call (or its retries) exceeded the deadline.
	ErrorTimeout ErrorKind = "timeout"

	// ErrorUnreachable indicates the provider could not be reached, or the
	// breaker is open and the call was short-circuited without I/O.
	ErrorUnreachable ErrorKind = "unreachable"

	// ErrorRejected indicates the provider refused the operation. Never retried.
	ErrorRejected ErrorKind = "rejected"

	// ErrorInvalidOperation indicates the operation is not advertised by the
	// provider. Never retried; detected before any I/O.
	ErrorInvalidOperation ErrorKind = "invalid_operation"
)

// Transient reports whether failures of this kind are retried locally.
func (k ErrorKind) Transient() bool {
	return k == ErrorTimeout || k == ErrorUnreachable
}

// ToolError is the typed failure surfaced by Client.Invoke.
type ToolError struct {
	Provider  string
	Operation string
	Kind      ErrorKind
	Reason    string
	Attempts  int
	cause     error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool call %s/%s failed: %s", e.Provider, e.Operation, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.cause
}

// AsToolError extracts a *ToolError from err, or returns nil.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return nil
}

// ErrUnknownProvider indicates an invocation against an unregistered provider.
var ErrUnknownProvider = errors.New("unknown tool provider")
