package plan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

// scriptedTransport records operations in order and fails the ones listed
// in failOps with a permanent rejection.
type scriptedTransport struct {
	mu      sync.Mutex
	ops     []string
	failOps map[string]bool
	block   map[string]chan struct{}
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		failOps: make(map[string]bool),
		block:   make(map[string]chan struct{}),
	}
}

func (s *scriptedTransport) RoundTrip(ctx context.Context, _ *toolproto.Provider, req toolproto.Request) (toolproto.Response, error) {
	s.mu.Lock()
	s.ops = append(s.ops, req.Operation)
	blockCh := s.block[req.Operation]
	fail := s.failOps[req.Operation]
	s.mu.Unlock()

	if blockCh != nil {
		select {
		case <-blockCh:
		case <-ctx.Done():
			return toolproto.Response{}, ctx.Err()
		}
	}
	if fail {
		return toolproto.Response{
			Status:  toolproto.StatusError,
			Kind:    string(toolproto.ErrorRejected),
			Message: "provider refused",
		}, nil
	}
	return toolproto.Response{Status: toolproto.StatusOK, Result: map[string]any{"ok": true}}, nil
}

func (s *scriptedTransport) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ops))
	copy(out, s.ops)
	return out
}

func newTestExecutor(t *testing.T, transport toolproto.Transport) *Executor {
	t.Helper()
	registry := toolproto.NewRegistry()
	require.NoError(t, registry.Register(toolproto.NewProvider("workspace", "local",
		"createBranch", "installDependency", "generateCode", "modifyFile", "generateTests",
		"deleteBranch", "uninstallDependency", "removeGeneratedFiles", "restoreFile",
	)))

	tools := toolproto.NewClient(config.ToolClientConfig{
		MaxAttempts:      2,
		InitialBackoff:   config.Duration(time.Millisecond),
		MaxBackoff:       config.Duration(5 * time.Millisecond),
		CallTimeout:      config.Duration(time.Second),
		DegradeThreshold: 10,
		UnreachableGrace: config.Duration(time.Minute),
		ProbeInterval:    config.Duration(time.Minute),
	}, registry, transport)

	return NewExecutor(config.ExecutorConfig{
		StepTimeout: config.Duration(time.Second),
		LockWait:    config.Duration(50 * time.Millisecond),
	}, tools)
}

func compensated(op string) *Compensation {
	return &Compensation{Provider: "workspace", Operation: op}
}

func threeStepPlan() *Plan {
	p := New("res-1", "acme/api")
	p.Steps = []Step{
		{ID: "s1", Kind: StepCreateBranch, Provider: "workspace", Reversible: true,
			Compensation: compensated("deleteBranch")},
		{ID: "s2", Kind: StepInstallDependency, Provider: "workspace", Reversible: true,
			Compensation: compensated("uninstallDependency")},
		{ID: "s3", Kind: StepModifyFile, Provider: "workspace", Reversible: true,
			Compensation: compensated("restoreFile")},
	}
	return p
}

func TestExecuteSucceeds(t *testing.T) {
	transport := newScriptedTransport()
	exec := newTestExecutor(t, transport)

	result, err := exec.Execute(context.Background(), threeStepPlan())
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, result.FinalState)
	require.Len(t, result.Completed, 3)
	for _, outcome := range result.Completed {
		assert.Equal(t, StepCompleted, outcome.Status)
	}
	assert.Equal(t, []string{"createBranch", "installDependency", "modifyFile"}, transport.operations())
	assert.Nil(t, result.FailedStep)
	assert.Empty(t, result.AppliedSteps)
}

func TestExecuteRollsBackOnReversibleFailure(t *testing.T) {
	transport := newScriptedTransport()
	transport.failOps["modifyFile"] = true
	exec := newTestExecutor(t, transport)

	result, err := exec.Execute(context.Background(), threeStepPlan())
	require.NoError(t, err, "rollback is a reported outcome, not an error")

	assert.Equal(t, StateRolledBack, result.FinalState)
	require.NotNil(t, result.FailedStep)
	assert.Equal(t, "s3", result.FailedStep.StepID)
	assert.Empty(t, result.RollbackErrors)

	// Compensations run in reverse completion order.
	assert.Equal(t, []string{
		"createBranch", "installDependency", "modifyFile",
		"uninstallDependency", "deleteBranch",
	}, transport.operations())

	for _, outcome := range result.Completed {
		assert.Equal(t, StepCompensated, outcome.Status)
	}
}

func TestExecuteRecordsFailedCompensations(t *testing.T) {
	transport := newScriptedTransport()
	transport.failOps["modifyFile"] = true
	transport.failOps["deleteBranch"] = true
	exec := newTestExecutor(t, transport)

	result, err := exec.Execute(context.Background(), threeStepPlan())
	require.NoError(t, err)

	assert.Equal(t, StateRolledBack, result.FinalState)
	require.Len(t, result.RollbackErrors, 1)
	assert.Equal(t, []string{"s1"}, result.AppliedSteps, "steps whose compensation failed stay applied")
}

func TestExecutePartialFailureOnIrreversibleStep(t *testing.T) {
	transport := newScriptedTransport()
	transport.failOps["modifyFile"] = true
	exec := newTestExecutor(t, transport)

	p := New("res-1", "acme/api")
	p.Steps = []Step{
		{ID: "s1", Kind: StepCreateBranch, Provider: "workspace", Reversible: true,
			Compensation: compensated("deleteBranch")},
		{ID: "s2", Kind: StepModifyFile, Provider: "workspace"},
	}

	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StatePartiallyFailed, result.FinalState)
	require.NotNil(t, result.FailedStep)
	assert.Equal(t, "s2", result.FailedStep.StepID)
	assert.Equal(t, []string{"s1"}, result.AppliedSteps, "completed steps are reported, never silently dropped")

	// No compensation runs on partial failure.
	assert.NotContains(t, transport.operations(), "deleteBranch")
}

func TestExecuteRejectsInvalidPlan(t *testing.T) {
	exec := newTestExecutor(t, newScriptedTransport())

	p := New("res-1", "acme/api")
	_, err := exec.Execute(context.Background(), p)
	assert.Error(t, err)
}

func TestExecuteSerializesPerProject(t *testing.T) {
	transport := newScriptedTransport()
	release := make(chan struct{})
	transport.block["createBranch"] = release
	exec := newTestExecutor(t, transport)

	p1 := New("res-1", "acme/api")
	p1.Steps = []Step{{ID: "s1", Kind: StepCreateBranch, Provider: "workspace", Reversible: true,
		Compensation: compensated("deleteBranch")}}

	started := make(chan struct{})
	done := make(chan *Result, 1)
	go func() {
		close(started)
		result, _ := exec.Execute(context.Background(), p1)
		done <- result
	}()

	<-started
	time.Sleep(10 * time.Millisecond) // let the first execution take the lock

	p2 := New("res-2", "acme/api")
	p2.Steps = []Step{{ID: "s1", Kind: StepGenerateTests, Provider: "workspace", Reversible: true,
		Compensation: compensated("removeGeneratedFiles")}}

	_, err := exec.Execute(context.Background(), p2)
	ee := AsExecutionError(err)
	require.NotNil(t, ee, "queued execution past the wait fails with contention")
	assert.Equal(t, ExecLockContention, ee.Kind)
	assert.Equal(t, p2.ID, ee.PlanID)

	close(release)
	result := <-done
	assert.Equal(t, StateSucceeded, result.FinalState)

	// A different project is not serialized against acme/api.
	p3 := New("res-3", "acme/web")
	p3.Steps = p2.Steps
	result, err = exec.Execute(context.Background(), p3)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, result.FinalState)
}

func TestExecuteCancellationRollsBack(t *testing.T) {
	transport := newScriptedTransport()
	blocker := make(chan struct{})
	transport.block["installDependency"] = blocker
	exec := newTestExecutor(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := exec.Execute(ctx, threeStepPlan())
	require.NoError(t, err)

	// The first step completed and must be compensated; the interrupted
	// step counts as failed.
	assert.Equal(t, StateRolledBack, result.FinalState)
	assert.Contains(t, transport.operations(), "deleteBranch")
}
