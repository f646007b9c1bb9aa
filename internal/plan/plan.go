package plan

import (
	"fmt"

	"github.com/google/uuid"
)

// StepKind categorizes a plan step.
type StepKind string

const (
	StepInstallDependency StepKind = "installDependency"
	StepGenerateCode      StepKind = "generateCode"
	StepModifyFile        StepKind = "modifyFile"
	StepGenerateTests     StepKind = "generateTests"
	StepCreateBranch      StepKind = "createBranch"
)

// Valid reports whether the kind is one of the known values.
func (k StepKind) Valid() bool {
	switch k {
	case StepInstallDependency, StepGenerateCode, StepModifyFile, StepGenerateTests, StepCreateBranch:
		return true
	}
	return false
}

// Compensation describes the action that undoes a reversible step.
type Compensation struct {
	Provider   string         `json:"provider"`
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// SafeAfterIrreversible declares that running this compensation is
	// still valid after a later irreversible step has executed.
	SafeAfterIrreversible bool `json:"safe_after_irreversible,omitempty"`
}

// Step is a single side-effecting plan step. Provider and Operation name
// the tool call the executor issues for it.
type Step struct {
	ID           string         `json:"id"`
	Kind         StepKind       `json:"kind"`
	Provider     string         `json:"provider"`
	Operation    string         `json:"operation,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Reversible   bool           `json:"reversible"`
	Compensation *Compensation  `json:"compensation,omitempty"`

	// DependsOn lists IDs of steps this step requires. The plan creator
	// resolves ordering; the executor never infers it. Validation only
	// checks the declared order satisfies these edges.
	DependsOn []string `json:"depends_on,omitempty"`
}

// OperationName returns the tool operation for the step, defaulting to the
// step kind.
func (s Step) OperationName() string {
	if s.Operation != "" {
		return s.Operation
	}
	return string(s.Kind)
}

// Plan is a DAG collapsed to a total order at creation time.
type Plan struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Steps      []Step    `json:"steps"`
	Risk       RiskLevel `json:"risk"`

	// Project keys the executor's exclusive lock. Two plans with the same
	// project never execute concurrently.
	Project string `json:"project"`
}

// New creates an empty plan for a resource and project.
func New(resourceID, project string) *Plan {
	return &Plan{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Project:    project,
	}
}

// Validate checks the plan's structural invariants:
//
//   - every step has a valid kind, a provider, and a unique ID
//   - a reversible step carries a compensation, an irreversible one does not
//   - declared dependencies reference earlier steps only (forward or
//     unknown references mean the creator failed to collapse the DAG)
//   - an irreversible step appears only as the last step, unless every
//     earlier reversible step's compensation is declared safe to run after
//     it
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s has no steps", p.ID)
	}

	position := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d has no ID", i)
		}
		if _, dup := position[step.ID]; dup {
			return &ValidationError{
				Kind:   ValidationCyclicDependency,
				PlanID: p.ID,
				StepID: step.ID,
				Reason: "duplicate step ID",
			}
		}
		position[step.ID] = i

		if !step.Kind.Valid() {
			return fmt.Errorf("step %s has invalid kind %q", step.ID, step.Kind)
		}
		if step.Provider == "" {
			return fmt.Errorf("step %s has no provider", step.ID)
		}
		if step.Reversible && step.Compensation == nil {
			return fmt.Errorf("reversible step %s has no compensation", step.ID)
		}
		if !step.Reversible && step.Compensation != nil {
			return fmt.Errorf("irreversible step %s declares a compensation", step.ID)
		}
	}

	for i, step := range p.Steps {
		for _, dep := range step.DependsOn {
			depPos, ok := position[dep]
			if !ok || depPos >= i {
				return &ValidationError{
					Kind:   ValidationCyclicDependency,
					PlanID: p.ID,
					StepID: step.ID,
					Reason: fmt.Sprintf("dependency %q does not precede step", dep),
				}
			}
		}
	}

	for i, step := range p.Steps {
		if step.Reversible || i == len(p.Steps)-1 {
			continue
		}
		// Irreversible step mid-plan: every earlier compensation must
		// survive it, or rollback past this point would be unsafe.
		for j := 0; j < i; j++ {
			prior := p.Steps[j]
			if prior.Reversible && !prior.Compensation.SafeAfterIrreversible {
				return &ValidationError{
					Kind:   ValidationIrreversibleMidPlan,
					PlanID: p.ID,
					StepID: step.ID,
					Reason: fmt.Sprintf("irreversible step precedes reversible step %s whose compensation it invalidates", prior.ID),
				}
			}
		}
	}

	return nil
}
