package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/weaver/internal/inference"
	"github.com/fyrsmithlabs/weaver/internal/plan"
	"github.com/fyrsmithlabs/weaver/internal/resource"
)

// cannedInference returns a fixed structured result per call.
type cannedInference struct {
	results []map[string]any
	err     error
	calls   int
	prompts []string
}

func (c *cannedInference) Infer(_ context.Context, prompt string, _ map[string]any) (map[string]any, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return nil, c.err
	}
	result := c.results[c.calls%len(c.results)]
	c.calls++
	return result, nil
}

var _ inference.Client = (*cannedInference)(nil)

func testProviders() ProviderMap {
	return ProviderMap{
		plan.StepCreateBranch:      "git",
		plan.StepInstallDependency: "workspace",
		plan.StepGenerateCode:      "workspace",
		plan.StepModifyFile:        "workspace",
		plan.StepGenerateTests:     "workspace",
	}
}

func newRecord(t *testing.T) *Record {
	t.Helper()
	res, err := resource.New(resource.KindRepository, "github.com/acme/widgets", nil)
	require.NoError(t, err)
	return &Record{Resource: res, UserIntent: "add caching", Project: "acme/api"}
}

func TestResearchStagePopulatesFacts(t *testing.T) {
	infer := &cannedInference{results: []map[string]any{
		{"language": "go", "hasTests": true},
	}}
	rec := newRecord(t)

	require.NoError(t, NewResearchStage(infer).Run(context.Background(), rec))
	assert.Equal(t, "go", rec.ResearchFacts["language"])
	require.Len(t, infer.prompts, 1)
	assert.Contains(t, infer.prompts[0], "github.com/acme/widgets")
}

func TestPlanStageBuildsValidatedPlan(t *testing.T) {
	infer := &cannedInference{results: []map[string]any{
		{"steps": []any{
			map[string]any{"kind": "createBranch", "parameters": map[string]any{"branch": "integrate-widgets"}},
			map[string]any{"kind": "installDependency", "parameters": map[string]any{"module": "github.com/acme/widgets"}},
			map[string]any{"kind": "modifyFile", "reversible": false},
		}},
	}}
	rec := newRecord(t)
	rec.ResearchFacts = map[string]any{"language": "go"}

	require.NoError(t, NewPlanStage(infer, testProviders()).Run(context.Background(), rec))
	require.NotNil(t, rec.Plan)
	require.Len(t, rec.Plan.Steps, 3)

	assert.Equal(t, rec.Resource.ID, rec.Plan.ResourceID)
	assert.Equal(t, "acme/api", rec.Plan.Project)

	s1 := rec.Plan.Steps[0]
	assert.Equal(t, "git", s1.Provider)
	assert.True(t, s1.Reversible)
	require.NotNil(t, s1.Compensation)
	assert.Equal(t, "deleteBranch", s1.Compensation.Operation)

	s3 := rec.Plan.Steps[2]
	assert.False(t, s3.Reversible)
	assert.Nil(t, s3.Compensation)

	assert.NotEmpty(t, rec.Plan.Risk)
}

func TestPlanStageRejectsUnroutedKind(t *testing.T) {
	infer := &cannedInference{results: []map[string]any{
		{"steps": []any{map[string]any{"kind": "createBranch"}}},
	}}
	rec := newRecord(t)

	err := NewPlanStage(infer, ProviderMap{}).Run(context.Background(), rec)
	require.Error(t, err)
	assert.Nil(t, rec.Plan)
}

func TestPlanStageRejectsEmptyOrMalformedSteps(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
	}{
		{"no steps key", map[string]any{}},
		{"empty steps", map[string]any{"steps": []any{}}},
		{"step not an object", map[string]any{"steps": []any{"createBranch"}}},
		{"invalid kind", map[string]any{"steps": []any{map[string]any{"kind": "formatDisk"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infer := &cannedInference{results: []map[string]any{tt.result}}
			err := NewPlanStage(infer, testProviders()).Run(context.Background(), newRecord(t))
			assert.Error(t, err)
		})
	}
}

func TestSecurityStageVerdicts(t *testing.T) {
	tests := []struct {
		verdict     string
		wantVerdict Verdict
	}{
		{"approved", VerdictApproved},
		{"rejected", VerdictRejected},
		{"needsReview", VerdictNeedsReview},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			infer := &cannedInference{results: []map[string]any{
				{"verdict": tt.verdict, "reasons": []any{"unvetted dependency"}},
			}}
			rec := newRecord(t)
			rec.Plan = plan.New(rec.Resource.ID, rec.Project)
			rec.Plan.Steps = []plan.Step{{
				ID: "s1", Kind: plan.StepCreateBranch, Provider: "git", Reversible: true,
				Compensation: &plan.Compensation{Provider: "git", Operation: "deleteBranch"},
			}}

			require.NoError(t, NewSecurityStage(infer).Run(context.Background(), rec))
			assert.Equal(t, tt.wantVerdict, rec.Verdict)
			assert.Equal(t, []string{"unvetted dependency"}, rec.RejectionReasons)
		})
	}
}

func TestSecurityStageRejectsInvalidVerdict(t *testing.T) {
	infer := &cannedInference{results: []map[string]any{{"verdict": "maybe"}}}
	rec := newRecord(t)
	rec.Plan = plan.New(rec.Resource.ID, rec.Project)
	rec.Plan.Steps = []plan.Step{{
		ID: "s1", Kind: plan.StepCreateBranch, Provider: "git", Reversible: true,
		Compensation: &plan.Compensation{Provider: "git", Operation: "deleteBranch"},
	}}

	err := NewSecurityStage(infer).Run(context.Background(), rec)
	require.Error(t, err)
	assert.Empty(t, rec.Verdict)
}

func TestSecurityStageRequiresPlan(t *testing.T) {
	infer := &cannedInference{results: []map[string]any{{"verdict": "approved"}}}
	err := NewSecurityStage(infer).Run(context.Background(), newRecord(t))
	assert.Error(t, err)
}
