package analysis

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/inference"
	"github.com/fyrsmithlabs/weaver/internal/logging"
	"github.com/fyrsmithlabs/weaver/internal/resource"
)

// Coordinator runs the analysis pipeline per resource with a bounded
// number of in-flight resources. Research must complete before Plan, and
// Plan before Security, so stages run in order within a resource; across
// resources no ordering is guaranteed.
//
// At most one pipeline runs per resource ID at a time: a second Analyze
// call for the same resource attaches to the in-flight result instead of
// starting a new pipeline.
type Coordinator struct {
	cfg    config.CoordinatorConfig
	stages []Stage
	logger *logging.Logger
	tracer trace.Tracer

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

// inflightCall lets duplicate submissions share one pipeline's outcome.
type inflightCall struct {
	done   chan struct{}
	record *Record
	err    error
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithCoordinatorTracer sets the tracer for stage spans.
func WithCoordinatorTracer(t trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = t }
}

// NewCoordinator creates a Coordinator running the given stages in order.
func NewCoordinator(cfg config.CoordinatorConfig, stages []Stage, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		stages:   stages,
		logger:   logging.NewNop(),
		sem:      make(chan struct{}, cfg.MaxConcurrentResources),
		inflight: make(map[string]*inflightCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze drives the resource through all stages and returns its record.
// Stage failures (tool or inference errors) mark the record rather than
// returning an error; the error return is reserved for cancellation while
// waiting. Failure of one resource never affects another.
func (c *Coordinator) Analyze(ctx context.Context, res resource.Resource, userIntent string, projectContext map[string]any) (*Record, error) {
	c.mu.Lock()
	if call, ok := c.inflight[res.ID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.record, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[res.ID] = call
	c.mu.Unlock()

	call.record, call.err = c.run(ctx, res, userIntent, projectContext)
	close(call.done)

	c.mu.Lock()
	delete(c.inflight, res.ID)
	c.mu.Unlock()

	return call.record, call.err
}

// run executes the pipeline for one resource under the concurrency bound.
func (c *Coordinator) run(ctx context.Context, res resource.Resource, userIntent string, projectContext map[string]any) (*Record, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	ctx = logging.WithResource(ctx, res.ID)

	rec := &Record{
		Resource:       res,
		UserIntent:     userIntent,
		ProjectContext: projectContext,
	}
	if project, ok := projectContext["project"].(string); ok {
		rec.Project = project
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "analysis.pipeline",
			trace.WithAttributes(
				attribute.String("resource.id", res.ID),
				attribute.String("resource.kind", string(res.Kind)),
			),
		)
		defer span.End()
	}

	for i, stage := range c.stages {
		if err := c.runStage(ctx, stage, rec); err != nil {
			// A failed stage is terminal for this resource only. The
			// record carries the failure; other resources proceed.
			if i == 0 {
				rec.ResearchFailed = true
			}
			rec.FailureReason = err.Error()
			if rec.Verdict == "" && i > 0 {
				rec.Verdict = VerdictRejected
				rec.RejectionReasons = append(rec.RejectionReasons, err.Error())
			}
			c.logger.Warn(ctx, "analysis stage failed",
				zap.String("stage", stage.Name()),
				zap.Error(err),
			)
			return rec, nil
		}
		c.logger.Debug(ctx, "analysis stage completed", zap.String("stage", stage.Name()))
	}

	return rec, nil
}

// runStage bounds one stage with the configured timeout.
func (c *Coordinator) runStage(ctx context.Context, stage Stage, rec *Record) error {
	stageCtx := ctx
	if timeout := c.cfg.StageTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.tracer != nil {
		var span trace.Span
		stageCtx, span = c.tracer.Start(stageCtx, "analysis."+stage.Name())
		defer span.End()
	}

	return stage.Run(stageCtx, rec)
}

// DefaultStages wires the standard Research -> Plan -> Security pipeline.
func DefaultStages(infer inference.Client, providers ProviderMap) []Stage {
	return []Stage{
		NewResearchStage(infer),
		NewPlanStage(infer, providers),
		NewSecurityStage(infer),
	}
}
