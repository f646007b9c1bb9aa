package resource

import (
	"context"
	"sync"
)

// Source is an append-only stream of discovered resources. The scanner
// appends; the orchestration core consumes each record at most once unless
// it is explicitly requeued.
//
// End of stream is signalled out of band so producers blocked on a full
// buffer unblock with ErrSourceClosed rather than racing a channel close.
type Source struct {
	mu   sync.Mutex
	ch   chan Resource
	done chan struct{}
	seen map[string]bool
}

// NewSource creates a Source with the given buffer size.
func NewSource(buffer int) *Source {
	if buffer < 1 {
		buffer = 1
	}
	return &Source{
		ch:   make(chan Resource, buffer),
		done: make(chan struct{}),
		seen: make(map[string]bool),
	}
}

// Append adds a resource to the stream. Duplicate IDs are dropped so each
// resource is processed at most once.
func (s *Source) Append(ctx context.Context, r Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrSourceClosed
	default:
	}
	if s.seen[r.ID] {
		s.mu.Unlock()
		return nil
	}
	s.seen[r.ID] = true
	s.mu.Unlock()

	return s.send(ctx, r)
}

// Requeue puts a previously consumed resource back on the stream. Unlike
// Append, it bypasses the at-most-once dedupe.
func (s *Source) Requeue(ctx context.Context, r Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrSourceClosed
	default:
	}
	s.seen[r.ID] = true
	s.mu.Unlock()

	return s.send(ctx, r)
}

func (s *Source) send(ctx context.Context, r Resource) error {
	select {
	case s.ch <- r:
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next resource, blocking until one is available, the
// source is closed and drained (ok=false), or the context is cancelled.
func (s *Source) Next(ctx context.Context) (Resource, bool, error) {
	// Drain buffered resources before honoring close.
	select {
	case r := <-s.ch:
		return r, true, nil
	default:
	}

	select {
	case r := <-s.ch:
		return r, true, nil
	case <-s.done:
		select {
		case r := <-s.ch:
			return r, true, nil
		default:
			return Resource{}, false, nil
		}
	case <-ctx.Done():
		return Resource{}, false, ctx.Err()
	}
}

// Close marks the end of the stream. Pending resources remain readable;
// producers blocked on a full buffer return ErrSourceClosed.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
