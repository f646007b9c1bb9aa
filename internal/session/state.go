package session

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/weaver/internal/analysis"
	"github.com/fyrsmithlabs/weaver/internal/plan"
)

// State is a resource's lifecycle position.
type State string

const (
	StateDiscovered   State = "Discovered"
	StateAnalyzing    State = "Analyzing"
	StateAnalyzed     State = "Analyzed"
	StatePlanAccepted State = "PlanAccepted"
	StateExecuting    State = "Executing"
	StateCompleted    State = "Completed"
	StateFailed       State = "Failed"
	StateRolledBack   State = "RolledBack"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRolledBack:
		return true
	}
	return false
}

// allowedTransitions encodes the lifecycle graph. No transition is
// reversible; RolledBack is terminal.
var allowedTransitions = map[State][]State{
	StateDiscovered:   {StateAnalyzing},
	StateAnalyzing:    {StateAnalyzed},
	StateAnalyzed:     {StatePlanAccepted, StateFailed},
	StatePlanAccepted: {StateExecuting},
	StateExecuting:    {StateCompleted, StateRolledBack, StateFailed},
}

func transitionAllowed(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one lifecycle move with its timestamp.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Decision is the human confirmation input for an analyzed resource.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Valid reports whether the decision is one of the known values.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Snapshot is the committed view of one resource's orchestration state.
type Snapshot struct {
	ResourceID  string           `json:"resource_id"`
	State       State            `json:"state"`
	Transitions []Transition     `json:"transitions"`
	Record      *analysis.Record `json:"analysis,omitempty"`
	Result      *plan.Result     `json:"execution,omitempty"`
}

// ErrUnknownResource indicates a query or confirmation for an untracked
// resource ID.
type ErrUnknownResource struct {
	ResourceID string
}

func (e *ErrUnknownResource) Error() string {
	return fmt.Sprintf("unknown resource: %s", e.ResourceID)
}
