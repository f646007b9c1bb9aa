package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/resource"
)

// fakeStage runs a function and records the resources it saw.
type fakeStage struct {
	name string
	run  func(ctx context.Context, rec *Record) error

	mu   sync.Mutex
	seen []string
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Run(ctx context.Context, rec *Record) error {
	f.mu.Lock()
	f.seen = append(f.seen, rec.Resource.ID)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, rec)
	}
	return nil
}

func coordinatorConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		MaxConcurrentResources: 2,
		StageTimeout:           config.Duration(time.Second),
	}
}

func mustResource(t *testing.T, locator string) resource.Resource {
	t.Helper()
	res, err := resource.New(resource.KindRepository, locator, nil)
	require.NoError(t, err)
	return res
}

func TestAnalyzeRunsStagesInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	mark := func(name string) func(context.Context, *Record) error {
		return func(context.Context, *Record) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c := NewCoordinator(coordinatorConfig(), []Stage{
		&fakeStage{name: "research", run: mark("research")},
		&fakeStage{name: "plan", run: mark("plan")},
		&fakeStage{name: "security", run: mark("security")},
	})

	rec, err := c.Analyze(context.Background(), mustResource(t, "github.com/acme/widgets"), "add caching", map[string]any{"project": "acme/api"})
	require.NoError(t, err)

	assert.Equal(t, []string{"research", "plan", "security"}, order)
	assert.Equal(t, "acme/api", rec.Project)
	assert.False(t, rec.ResearchFailed)
}

func TestAnalyzeResearchFailureIsTerminalForResourceOnly(t *testing.T) {
	c := NewCoordinator(coordinatorConfig(), []Stage{
		&fakeStage{name: "research", run: func(_ context.Context, rec *Record) error {
			if rec.Resource.Locator == "github.com/acme/broken" {
				return errors.New("endpoint unreachable")
			}
			return nil
		}},
		&fakeStage{name: "plan"},
		&fakeStage{name: "security", run: func(_ context.Context, rec *Record) error {
			rec.Verdict = VerdictApproved
			return nil
		}},
	})

	broken, err := c.Analyze(context.Background(), mustResource(t, "github.com/acme/broken"), "", nil)
	require.NoError(t, err, "stage failure marks the record, not the error return")
	assert.True(t, broken.ResearchFailed)
	assert.True(t, broken.Terminal())

	// A sibling resource is unaffected.
	healthy, err := c.Analyze(context.Background(), mustResource(t, "github.com/acme/widgets"), "", nil)
	require.NoError(t, err)
	assert.False(t, healthy.ResearchFailed)
	assert.Equal(t, VerdictApproved, healthy.Verdict)
}

func TestAnalyzeLaterStageFailureRejectsRecord(t *testing.T) {
	c := NewCoordinator(coordinatorConfig(), []Stage{
		&fakeStage{name: "research"},
		&fakeStage{name: "plan", run: func(context.Context, *Record) error {
			return errors.New("model returned no steps")
		}},
		&fakeStage{name: "security"},
	})

	rec, err := c.Analyze(context.Background(), mustResource(t, "github.com/acme/widgets"), "", nil)
	require.NoError(t, err)

	assert.False(t, rec.ResearchFailed)
	assert.Equal(t, VerdictRejected, rec.Verdict)
	assert.NotEmpty(t, rec.RejectionReasons)
}

func TestAnalyzeDeduplicatesInflightResource(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})

	c := NewCoordinator(coordinatorConfig(), []Stage{
		&fakeStage{name: "research", run: func(ctx context.Context, _ *Record) error {
			started.Add(1)
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	})

	res := mustResource(t, "github.com/acme/widgets")

	var wg sync.WaitGroup
	records := make([]*Record, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := c.Analyze(context.Background(), res, "", nil)
			assert.NoError(t, err)
			records[i] = rec
		}(i)
	}

	// Both callers are in flight; only one pipeline may have started.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), started.Load(), "duplicate submission attaches to the in-flight pipeline")
	assert.Same(t, records[0], records[1])

	// After completion the same resource may be analyzed again.
	_, err := c.Analyze(context.Background(), res, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), started.Load())
}

func TestAnalyzeBoundsConcurrency(t *testing.T) {
	var inFlight atomic.Int32
	var peak atomic.Int32
	release := make(chan struct{})

	c := NewCoordinator(coordinatorConfig(), []Stage{
		&fakeStage{name: "research", run: func(ctx context.Context, _ *Record) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer inFlight.Add(-1)
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := mustResource(t, "github.com/acme/widgets")
			_, err := c.Analyze(context.Background(), res, "", nil)
			assert.NoError(t, err)
		}(i)
	}

	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAnalyzeHonorsCancellationWhileQueued(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := NewCoordinator(config.CoordinatorConfig{MaxConcurrentResources: 1}, []Stage{
		&fakeStage{name: "research", run: func(ctx context.Context, _ *Record) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	})

	go func() {
		_, _ = c.Analyze(context.Background(), mustResource(t, "github.com/acme/first"), "", nil)
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Analyze(ctx, mustResource(t, "github.com/acme/second"), "", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
