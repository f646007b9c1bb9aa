package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/weaver/internal/analysis"
	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/logging"
	"github.com/fyrsmithlabs/weaver/internal/plan"
	"github.com/fyrsmithlabs/weaver/internal/resource"
)

// entry is one resource's mutable orchestration state. The pipeline
// goroutine for the resource is its single writer; readers take snapshots
// under the session lock.
type entry struct {
	resource    resource.Resource
	state       State
	transitions []Transition
	record      *analysis.Record
	result      *plan.Result
	confirm     chan Decision
}

// Session tracks every discovered resource through the lifecycle and
// drives the analyze -> confirm -> execute pipeline for each one.
type Session struct {
	cfg         config.SessionConfig
	coordinator *analysis.Coordinator
	executor    *plan.Executor
	logger      *logging.Logger
	tracer      trace.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	wg sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracer sets the tracer for per-resource pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// New creates a Session over the given coordinator and executor.
func New(cfg config.SessionConfig, coordinator *analysis.Coordinator, executor *plan.Executor, opts ...Option) *Session {
	s := &Session{
		cfg:         cfg,
		coordinator: coordinator,
		executor:    executor,
		logger:      logging.NewNop(),
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track registers a discovered resource. A resource whose previous run
// reached a terminal state may be tracked again, restarting its lifecycle
// from Discovered; tracking an in-flight ID or tracking after Close is an
// error.
func (s *Session) Track(res resource.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	if existing, ok := s.entries[res.ID]; ok && !existing.state.Terminal() {
		return fmt.Errorf("resource %s is already tracked", res.ID)
	}
	s.entries[res.ID] = &entry{
		resource: res,
		state:    StateDiscovered,
		confirm:  make(chan Decision, 1),
	}
	return nil
}

// GetState returns the committed state of one resource.
func (s *Session) GetState(resourceID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[resourceID]
	if !ok {
		return Snapshot{}, &ErrUnknownResource{ResourceID: resourceID}
	}
	return s.snapshotLocked(e), nil
}

// Snapshots returns the committed state of every tracked resource.
func (s *Session) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.snapshotLocked(e))
	}
	return out
}

func (s *Session) snapshotLocked(e *entry) Snapshot {
	transitions := make([]Transition, len(e.transitions))
	copy(transitions, e.transitions)
	return Snapshot{
		ResourceID:  e.resource.ID,
		State:       e.state,
		Transitions: transitions,
		Record:      e.record,
		Result:      e.result,
	}
}

// Confirm delivers the human decision for an analyzed resource. It is
// valid only while the resource is awaiting confirmation; a second call
// for the same resource is rejected.
func (s *Session) Confirm(resourceID string, decision Decision) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision %q", decision)
	}

	s.mu.RLock()
	e, ok := s.entries[resourceID]
	var state State
	if ok {
		state = e.state
	}
	s.mu.RUnlock()
	if !ok {
		return &ErrUnknownResource{ResourceID: resourceID}
	}
	if state != StateAnalyzed {
		return fmt.Errorf("resource %s is %s, not awaiting confirmation", resourceID, state)
	}

	select {
	case e.confirm <- decision:
		return nil
	default:
		return fmt.Errorf("resource %s already has a pending decision", resourceID)
	}
}

// Run consumes the discovery stream until it closes, driving the full
// pipeline for each resource concurrently. It returns once every consumed
// resource has reached a terminal state, or when ctx is cancelled.
func (s *Session) Run(ctx context.Context, src *resource.Source, userIntent string, projectContext map[string]any) error {
	for {
		res, ok, err := src.Next(ctx)
		if err != nil {
			s.wg.Wait()
			return err
		}
		if !ok {
			break
		}

		if err := s.Track(res); err != nil {
			s.logger.Warn(ctx, "skipping resource", zap.String("resource_id", res.ID), zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(ctx, res, userIntent, projectContext)
		}()
	}

	s.wg.Wait()
	return nil
}

// Drain waits for all in-flight pipelines to reach a terminal state.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session accepting new resources. In-flight pipelines
// run to completion; use Drain to wait for them.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// process drives one resource from Discovered to a terminal state. It is
// the only writer for the resource's entry.
func (s *Session) process(ctx context.Context, res resource.Resource, userIntent string, projectContext map[string]any) {
	ctx = logging.WithResource(ctx, res.ID)
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "session.resource",
			trace.WithAttributes(attribute.String("resource.id", res.ID)),
		)
		defer span.End()
	}

	s.transition(ctx, res.ID, StateAnalyzing, "")

	rec, err := s.coordinator.Analyze(ctx, res, userIntent, projectContext)
	if err != nil {
		// Only cancellation reaches here; stage failures come back in
		// the record.
		s.transition(ctx, res.ID, StateAnalyzed, "analysis cancelled")
		s.transition(ctx, res.ID, StateFailed, err.Error())
		return
	}

	s.setRecord(res.ID, rec)
	s.transition(ctx, res.ID, StateAnalyzed, "")

	if rec.ResearchFailed {
		s.transition(ctx, res.ID, StateFailed, "research failed: "+rec.FailureReason)
		return
	}
	if rec.Verdict == analysis.VerdictRejected {
		s.transition(ctx, res.ID, StateFailed, "plan rejected by security review")
		return
	}

	decision, reason := s.awaitDecision(ctx, res.ID, rec)
	if decision != DecisionAccept {
		s.transition(ctx, res.ID, StateFailed, reason)
		return
	}

	s.transition(ctx, res.ID, StatePlanAccepted, reason)
	s.transition(ctx, res.ID, StateExecuting, "")

	result, err := s.executor.Execute(ctx, rec.Plan)
	if err != nil {
		s.transition(ctx, res.ID, StateFailed, err.Error())
		return
	}

	s.setResult(res.ID, result)
	switch result.FinalState {
	case plan.StateSucceeded:
		s.transition(ctx, res.ID, StateCompleted, "")
	case plan.StateRolledBack:
		s.transition(ctx, res.ID, StateRolledBack, "")
	default:
		s.transition(ctx, res.ID, StateFailed, "execution partially failed")
	}
}

// awaitDecision resolves the human gate for an analyzed resource. Approved
// plans auto-confirm when configured; plans needing review always wait.
func (s *Session) awaitDecision(ctx context.Context, resourceID string, rec *analysis.Record) (Decision, string) {
	if s.cfg.AutoConfirm && rec.Verdict == analysis.VerdictApproved {
		return DecisionAccept, "auto-confirmed"
	}

	s.mu.RLock()
	e, ok := s.entries[resourceID]
	s.mu.RUnlock()
	if !ok {
		return DecisionReject, "resource not tracked"
	}

	var timeout <-chan time.Time
	if wait := s.cfg.ConfirmWait.Duration(); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-e.confirm:
		if d == DecisionAccept {
			return DecisionAccept, "confirmed"
		}
		return DecisionReject, "rejected by operator"
	case <-timeout:
		return DecisionReject, "confirmation timed out"
	case <-ctx.Done():
		return DecisionReject, "cancelled while awaiting confirmation"
	}
}

// transition commits one lifecycle move. Invalid moves indicate a pipeline
// bug and are logged, never applied.
func (s *Session) transition(ctx context.Context, resourceID string, to State, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[resourceID]
	if !ok {
		return
	}
	if !transitionAllowed(e.state, to) {
		s.logger.Error(ctx, "invalid state transition",
			zap.String("resource_id", resourceID),
			zap.String("from", string(e.state)),
			zap.String("to", string(to)),
		)
		return
	}

	e.transitions = append(e.transitions, Transition{
		From: e.state,
		To:   to,
		At:   time.Now(),
		Note: note,
	})
	e.state = to

	s.logger.Info(ctx, "state transition",
		zap.String("resource_id", resourceID),
		zap.String("to", string(to)),
	)
}

func (s *Session) setRecord(resourceID string, rec *analysis.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[resourceID]; ok {
		e.record = rec
	}
}

func (s *Session) setResult(resourceID string, result *plan.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[resourceID]; ok {
		e.result = result
	}
}
