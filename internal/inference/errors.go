package inference

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an inference failure.
type ErrorKind string

const (
	// ErrorRateLimited indicates the model endpoint throttled the call.
	// Transient; retried by the tool client.
	ErrorRateLimited ErrorKind = "rate_limited"

	// ErrorUnavailable indicates the model endpoint could not be reached
	// or returned a server error. Transient.
	ErrorUnavailable ErrorKind = "unavailable"

	// ErrorInvalidResponse indicates the model returned output that could
	// not be parsed as the expected structure. Never retried.
	ErrorInvalidResponse ErrorKind = "invalid_response"
)

// InferenceError is the typed failure surfaced by Client.Infer.
type InferenceError struct {
	Kind   ErrorKind
	Reason string
	cause  error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("inference failed: %s", e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InferenceError) Unwrap() error {
	return e.cause
}

// AsInferenceError extracts an *InferenceError from err, or returns nil.
func AsInferenceError(err error) *InferenceError {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}

// errRateLimited marks a transport failure caused by throttling so the
// caller can distinguish it from plain unreachability.
var errRateLimited = errors.New("inference endpoint rate limited")
