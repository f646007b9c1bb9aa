package plan

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/logging"
	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

// Executor applies a plan's steps in declared order, one at a time. Steps
// route through the tool client and inherit its retry policy; a step only
// counts as failed once that budget is exhausted.
//
// Execution per target project is exclusive: a second plan queues on the
// project lock up to the configured wait.
type Executor struct {
	cfg    config.ExecutorConfig
	tools  *toolproto.Client
	locks  *projectLocks
	logger *logging.Logger
	tracer trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithExecutorTracer sets the tracer for plan and step spans.
func WithExecutorTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an Executor over the given tool client.
func NewExecutor(cfg config.ExecutorConfig, tools *toolproto.Client, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:    cfg,
		tools:  tools,
		locks:  newProjectLocks(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates and applies the plan, returning the execution result.
// The three terminal states (succeeded, rolledBack, partiallyFailed) are
// reported in the result, not as errors; only validation failures and lock
// contention return an error.
func (e *Executor) Execute(ctx context.Context, p *Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ctx = logging.WithPlan(ctx, p.ID)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "plan.execute",
			trace.WithAttributes(
				attribute.String("plan.id", p.ID),
				attribute.String("plan.resource_id", p.ResourceID),
				attribute.Int("plan.steps", len(p.Steps)),
			),
		)
		defer span.End()
	}

	if err := e.locks.acquire(ctx, p.Project, e.cfg.LockWait.Duration()); err != nil {
		if ee := AsExecutionError(err); ee != nil {
			ee.PlanID = p.ID
		}
		return nil, err
	}
	defer e.locks.release(p.Project)

	e.logger.Info(ctx, "starting plan execution",
		zap.String("project", p.Project),
		zap.Int("steps", len(p.Steps)),
		zap.String("risk", string(p.Risk)),
	)

	result := &Result{
		PlanID:    p.ID,
		StartedAt: time.Now(),
	}

	for i := range p.Steps {
		step := p.Steps[i]

		// Cancellation between steps behaves like a reversible-step
		// failure: roll back what completed.
		if ctx.Err() != nil {
			return e.rollBack(ctx, p, result, nil, "execution cancelled"), nil
		}

		outcome := e.runStep(ctx, step)
		if outcome.Status == StepCompleted {
			result.Completed = append(result.Completed, outcome)
			continue
		}

		if step.Reversible {
			return e.rollBack(ctx, p, result, &outcome, outcome.Error), nil
		}

		// Irreversible step failed: stop and report what remains applied.
		result.FailedStep = &outcome
		result.FinalState = StatePartiallyFailed
		for _, done := range result.Completed {
			result.AppliedSteps = append(result.AppliedSteps, done.StepID)
		}
		result.CompletedAt = time.Now()
		e.logger.Error(ctx, "plan partially failed",
			zap.String("failed_step", outcome.StepID),
			zap.Strings("applied_steps", result.AppliedSteps),
		)
		return result, nil
	}

	result.FinalState = StateSucceeded
	result.CompletedAt = time.Now()
	e.logger.Info(ctx, "plan execution succeeded", zap.Int("steps", len(result.Completed)))
	return result, nil
}

// runStep issues one step through the tool client. Irreversible steps run
// detached from cancellation so an abort cannot interrupt them mid-flight;
// cancellation takes effect once the step resolves.
func (e *Executor) runStep(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{
		StepID:    step.ID,
		Kind:      step.Kind,
		StartedAt: time.Now(),
	}

	stepCtx := ctx
	if !step.Reversible {
		stepCtx = context.WithoutCancel(ctx)
	}
	if e.tracer != nil {
		var span trace.Span
		stepCtx, span = e.tracer.Start(stepCtx, "plan.step",
			trace.WithAttributes(
				attribute.String("step.id", step.ID),
				attribute.String("step.kind", string(step.Kind)),
				attribute.Bool("step.reversible", step.Reversible),
			),
		)
		defer span.End()
	}

	output, err := e.tools.Invoke(stepCtx, step.Provider, step.OperationName(), step.Parameters, e.cfg.StepTimeout.Duration())
	outcome.CompletedAt = time.Now()
	if err != nil {
		outcome.Status = StepFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = StepCompleted
	outcome.Output = output
	return outcome
}

// rollBack runs the compensations of completed steps in reverse order and
// returns the rolled-back result. Compensations run detached from the
// (possibly cancelled) parent context. Completed irreversible steps have
// no compensation and stay applied; they are reported as such.
func (e *Executor) rollBack(ctx context.Context, p *Plan, result *Result, failed *StepOutcome, reason string) *Result {
	e.logger.Warn(ctx, "rolling back plan",
		zap.String("reason", reason),
		zap.Int("completed_steps", len(result.Completed)),
	)

	compCtx := context.WithoutCancel(ctx)
	stepsByID := make(map[string]Step, len(p.Steps))
	for _, s := range p.Steps {
		stepsByID[s.ID] = s
	}

	for i := len(result.Completed) - 1; i >= 0; i-- {
		done := &result.Completed[i]
		step := stepsByID[done.StepID]
		if step.Compensation == nil {
			result.AppliedSteps = append(result.AppliedSteps, done.StepID)
			continue
		}

		comp := step.Compensation
		_, err := e.tools.Invoke(compCtx, comp.Provider, comp.Operation, comp.Parameters, e.cfg.StepTimeout.Duration())
		if err != nil {
			result.RollbackErrors = append(result.RollbackErrors, err.Error())
			result.AppliedSteps = append(result.AppliedSteps, done.StepID)
			e.logger.Error(compCtx, "compensation failed",
				zap.String("step", done.StepID),
				zap.Error(err),
			)
			continue
		}
		done.Status = StepCompensated
	}

	result.FailedStep = failed
	result.FinalState = StateRolledBack
	result.CompletedAt = time.Now()
	return result
}
