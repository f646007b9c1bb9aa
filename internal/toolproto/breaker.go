package toolproto

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/weaver/internal/config"
)

// breaker tracks per-provider failure history and drives health transitions.
// One breaker exists per provider; the Client is its only caller.
type breaker struct {
	mu sync.Mutex

	consecutiveFailures int
	lastSuccess         time.Time
	degradedAt          time.Time
	lastProbe           time.Time
}

// allow reports whether a call may proceed given the provider's health.
// When the breaker is open (provider unreachable) only one probe per
// probe interval is let through; everything else short-circuits.
func (b *breaker) allow(p *Provider, cfg config.ToolClientConfig, now time.Time) bool {
	if p.Health() != HealthUnreachable {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastProbe.IsZero() || now.Sub(b.lastProbe) >= cfg.ProbeInterval.Duration() {
		b.lastProbe = now
		return true
	}
	return false
}

// recordFailure notes a failed attempt and advances health:
// healthy -> degraded after the configured consecutive-failure threshold,
// degraded -> unreachable after the grace period passes with no success.
func (b *breaker) recordFailure(p *Provider, cfg config.ToolClientConfig, now time.Time) Health {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch p.Health() {
	case HealthHealthy:
		if b.consecutiveFailures >= cfg.DegradeThreshold {
			b.degradedAt = now
			p.setHealth(HealthDegraded)
		}
	case HealthDegraded:
		if now.Sub(b.degradedAt) >= cfg.UnreachableGrace.Duration() {
			p.setHealth(HealthUnreachable)
		}
	}
	return p.Health()
}

// recordSuccess resets failure history. A single success recovers the
// provider to healthy regardless of prior state.
func (b *breaker) recordSuccess(p *Provider, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.lastSuccess = now
	b.degradedAt = time.Time{}
	b.lastProbe = time.Time{}
	p.setHealth(HealthHealthy)
}
