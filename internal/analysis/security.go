package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/weaver/internal/inference"
)

// SecurityStage validates the proposed plan. A rejected verdict is a
// normal outcome, not an error: the record completes with the verdict and
// its reasons attached.
type SecurityStage struct {
	infer inference.Client
}

// NewSecurityStage creates the security stage.
func NewSecurityStage(infer inference.Client) *SecurityStage {
	return &SecurityStage{infer: infer}
}

func (s *SecurityStage) Name() string { return "security" }

// Run implements Stage.
func (s *SecurityStage) Run(ctx context.Context, rec *Record) error {
	if rec.Plan == nil {
		return fmt.Errorf("security stage requires a plan")
	}

	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}

	prompt := "Review this implementation plan for security concerns: " +
		"supply-chain risk, unvetted dependencies, destructive file " +
		"operations. Return a JSON object {\"verdict\": " +
		"\"approved\"|\"rejected\"|\"needsReview\", \"reasons\": [string]}."

	result, err := s.infer.Infer(ctx, prompt, map[string]any{
		"plan":           json.RawMessage(planJSON),
		"research_facts": rec.ResearchFacts,
	})
	if err != nil {
		return fmt.Errorf("security inference: %w", err)
	}

	verdict := Verdict(stringField(result, "verdict"))
	switch verdict {
	case VerdictApproved, VerdictRejected, VerdictNeedsReview:
	default:
		return fmt.Errorf("model returned invalid verdict %q", verdict)
	}

	rec.Verdict = verdict
	if reasons, ok := result["reasons"].([]any); ok {
		for _, r := range reasons {
			if str, ok := r.(string); ok {
				rec.RejectionReasons = append(rec.RejectionReasons, str)
			}
		}
	}
	return nil
}
