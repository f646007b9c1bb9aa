package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/weaver/internal/inference"
	"github.com/fyrsmithlabs/weaver/internal/plan"
)

// ProviderMap routes each step kind to the tool provider that executes it.
type ProviderMap map[plan.StepKind]string

// PlanStage turns research facts into an ordered implementation plan. The
// model proposes steps; this stage resolves providers, reversibility
// defaults, and ordering, then validates the plan before it can be
// accepted. The executor never infers ordering, so a plan that fails
// validation here is terminal for the resource.
type PlanStage struct {
	infer     inference.Client
	providers ProviderMap
}

// NewPlanStage creates the plan stage with the given provider routing.
func NewPlanStage(infer inference.Client, providers ProviderMap) *PlanStage {
	return &PlanStage{infer: infer, providers: providers}
}

func (s *PlanStage) Name() string { return "plan" }

// compensationOps maps a step kind to the operation that undoes it.
var compensationOps = map[plan.StepKind]string{
	plan.StepInstallDependency: "uninstallDependency",
	plan.StepGenerateCode:      "removeGeneratedFiles",
	plan.StepModifyFile:        "restoreFile",
	plan.StepGenerateTests:     "removeGeneratedFiles",
	plan.StepCreateBranch:      "deleteBranch",
}

// Run implements Stage.
func (s *PlanStage) Run(ctx context.Context, rec *Record) error {
	prompt := fmt.Sprintf(
		"Produce an implementation plan integrating %q into the target "+
			"project. Return a JSON object {\"steps\": [{\"kind\": one of "+
			"installDependency|generateCode|modifyFile|generateTests|createBranch, "+
			"\"parameters\": object, \"reversible\": bool}]}. Order steps so "+
			"every step's prerequisites precede it.",
		rec.Resource.Locator,
	)

	result, err := s.infer.Infer(ctx, prompt, map[string]any{
		"research_facts": rec.ResearchFacts,
		"user_intent":    rec.UserIntent,
	})
	if err != nil {
		return fmt.Errorf("plan inference: %w", err)
	}

	p, err := s.buildPlan(rec, result)
	if err != nil {
		return fmt.Errorf("building plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating plan: %w", err)
	}

	rec.Plan = p
	return nil
}

// buildPlan converts the model's step proposals into a validated plan.
func (s *PlanStage) buildPlan(rec *Record, result map[string]any) (*plan.Plan, error) {
	rawSteps, ok := result["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return nil, fmt.Errorf("model returned no steps")
	}

	p := plan.New(rec.Resource.ID, rec.Project)
	for i, raw := range rawSteps {
		stepMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %d is not an object", i)
		}

		kind := plan.StepKind(stringField(stepMap, "kind"))
		if !kind.Valid() {
			return nil, fmt.Errorf("step %d has invalid kind %q", i, kind)
		}

		provider, ok := s.providers[kind]
		if !ok {
			return nil, fmt.Errorf("no provider routes step kind %q", kind)
		}

		params, _ := stepMap["parameters"].(map[string]any)
		reversible := true
		if v, ok := stepMap["reversible"].(bool); ok {
			reversible = v
		}

		step := plan.Step{
			ID:         uuid.NewString(),
			Kind:       kind,
			Provider:   provider,
			Parameters: params,
			Reversible: reversible,
		}
		if reversible {
			step.Compensation = &plan.Compensation{
				Provider:   provider,
				Operation:  compensationOps[kind],
				Parameters: params,
			}
		}
		p.Steps = append(p.Steps, step)
	}

	p.Risk = plan.AssessRisk(p.Steps)
	return p, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
