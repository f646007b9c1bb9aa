package analysis

import (
	"github.com/fyrsmithlabs/weaver/internal/plan"
	"github.com/fyrsmithlabs/weaver/internal/resource"
)

// Verdict is the security stage's judgement of a plan.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictRejected    Verdict = "rejected"
	VerdictNeedsReview Verdict = "needsReview"
)

// Record is the per-resource analysis output, built incrementally by the
// stages. Once a resource reaches a terminal analysis state the record is
// no longer mutated.
type Record struct {
	Resource       resource.Resource `json:"resource"`
	UserIntent     string            `json:"user_intent,omitempty"`
	ProjectContext map[string]any    `json:"project_context,omitempty"`

	// Project keys plan execution; taken from the project context.
	Project string `json:"project,omitempty"`

	ResearchFacts map[string]any `json:"research_facts,omitempty"`
	Plan          *plan.Plan     `json:"plan,omitempty"`

	Verdict          Verdict  `json:"verdict,omitempty"`
	RejectionReasons []string `json:"rejection_reasons,omitempty"`

	// ResearchFailed marks the record terminal before planning: the
	// remaining stages were short-circuited for this resource.
	ResearchFailed bool   `json:"research_failed,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

// Terminal reports whether analysis of this record is finished.
func (r *Record) Terminal() bool {
	return r.ResearchFailed || r.Verdict != ""
}
