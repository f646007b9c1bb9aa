package plan

import "time"

// FinalState is the terminal outcome of a plan execution.
type FinalState string

const (
	StateSucceeded       FinalState = "succeeded"
	StateRolledBack      FinalState = "rolledBack"
	StatePartiallyFailed FinalState = "partiallyFailed"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepCompleted   StepStatus = "completed"
	StepFailed      StepStatus = "failed"
	StepCompensated StepStatus = "compensated"
)

// StepOutcome records one step attempt for the execution log.
type StepOutcome struct {
	StepID      string         `json:"step_id"`
	Kind        StepKind       `json:"kind"`
	Status      StepStatus     `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Result reports how a plan execution ended. On partial failure the
// still-applied steps are listed so a human or follow-up run can reconcile;
// a partially applied plan is never silently dropped.
type Result struct {
	PlanID     string        `json:"plan_id"`
	FinalState FinalState    `json:"final_state"`
	Completed  []StepOutcome `json:"completed_steps"`

	// FailedStep identifies the step whose failure ended execution.
	FailedStep *StepOutcome `json:"failed_step,omitempty"`

	// AppliedSteps lists IDs of steps whose effects remain in place
	// (partiallyFailed only).
	AppliedSteps []string `json:"applied_steps,omitempty"`

	// RollbackErrors records compensations that themselves failed.
	RollbackErrors []string `json:"rollback_errors,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
