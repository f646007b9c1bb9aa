package analysis

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/weaver/internal/inference"
)

// ResearchStage gathers facts about a resource (language, test coverage,
// API surface) through the inference capability. Its output feeds the plan
// stage, so it always runs first.
type ResearchStage struct {
	infer inference.Client
}

// NewResearchStage creates the research stage.
func NewResearchStage(infer inference.Client) *ResearchStage {
	return &ResearchStage{infer: infer}
}

func (s *ResearchStage) Name() string { return "research" }

// Run implements Stage.
func (s *ResearchStage) Run(ctx context.Context, rec *Record) error {
	prompt := fmt.Sprintf(
		"Research the %s at %q for integration into the target project. "+
			"Return a JSON object of repository facts: language, license, "+
			"hasTests (bool), maturity, and notable APIs.",
		rec.Resource.Kind, rec.Resource.Locator,
	)

	inferCtx := map[string]any{
		"resource_id": rec.Resource.ID,
		"user_intent": rec.UserIntent,
	}
	for k, v := range rec.ProjectContext {
		inferCtx[k] = v
	}

	facts, err := s.infer.Infer(ctx, prompt, inferCtx)
	if err != nil {
		return fmt.Errorf("research inference: %w", err)
	}

	rec.ResearchFacts = facts
	return nil
}
