package plan

import (
	"errors"
	"fmt"
)

// ValidationKind classifies a plan validation failure.
type ValidationKind string

const (
	ValidationCyclicDependency    ValidationKind = "cyclic_dependency"
	ValidationIrreversibleMidPlan ValidationKind = "irreversible_mid_plan"
)

// ValidationError reports a structurally invalid plan. Never retried.
type ValidationError struct {
	Kind   ValidationKind
	PlanID string
	StepID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan %s invalid (%s) at step %s: %s", e.PlanID, e.Kind, e.StepID, e.Reason)
}

// AsValidationError extracts a *ValidationError from err, or returns nil.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// ExecErrorKind classifies an execution failure.
type ExecErrorKind string

const (
	ExecStepFailed     ExecErrorKind = "step_failed"
	ExecLockContention ExecErrorKind = "lock_contention"
)

// ExecutionError reports a plan execution failure.
type ExecutionError struct {
	Kind   ExecErrorKind
	PlanID string
	StepID string
	cause  error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("plan %s execution failed: %s", e.PlanID, e.Kind)
	if e.StepID != "" {
		msg += fmt.Sprintf(" (step %s)", e.StepID)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.cause
}

// AsExecutionError extracts an *ExecutionError from err, or returns nil.
func AsExecutionError(err error) *ExecutionError {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}
