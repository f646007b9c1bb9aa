package plan

import (
	"context"
	"sync"
	"time"
)

// projectLocks serializes plan execution per target project. A second
// execution request queues on the lock up to the configured wait, then
// fails with lock contention.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]chan struct{})}
}

func (l *projectLocks) semFor(project string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[project]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[project] = sem
	}
	return sem
}

// acquire blocks until the project lock is free, the wait elapses, or the
// context is cancelled.
func (l *projectLocks) acquire(ctx context.Context, project string, wait time.Duration) error {
	sem := l.semFor(project)

	select {
	case sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return &ExecutionError{Kind: ExecLockContention}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *projectLocks) release(project string) {
	<-l.semFor(project)
}
