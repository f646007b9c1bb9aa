package toolproto

import (
	"fmt"
	"sort"
	"sync"
)

// Health is the observed health of a tool provider.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnreachable Health = "unreachable"
)

// Provider describes a registered tool provider. Health is mutated only by
// the Client based on observed call outcomes.
type Provider struct {
	Name       string
	Operations map[string]bool
	Endpoint   string

	mu     sync.RWMutex
	health Health
}

// NewProvider creates a provider advertising the given operation names.
func NewProvider(name, endpoint string, operations ...string) *Provider {
	ops := make(map[string]bool, len(operations))
	for _, op := range operations {
		ops[op] = true
	}
	return &Provider{
		Name:       name,
		Operations: ops,
		Endpoint:   endpoint,
		health:     HealthHealthy,
	}
}

// Supports reports whether the provider advertises the operation.
func (p *Provider) Supports(operation string) bool {
	return p.Operations[operation]
}

// Health returns the current health state.
func (p *Provider) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// setHealth is the single mutation path, called by the Client.
func (p *Provider) setHealth(h Health) {
	p.mu.Lock()
	p.health = h
	p.mu.Unlock()
}

// OperationNames returns the advertised operations, sorted.
func (p *Provider) OperationNames() []string {
	names := make([]string, 0, len(p.Operations))
	for op := range p.Operations {
		names = append(names, op)
	}
	sort.Strings(names)
	return names
}

// Registry holds the providers registered at startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register adds a provider. Registering the same name twice is an error;
// providers are registered once at startup.
func (r *Registry) Register(p *Provider) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("provider must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name]; exists {
		return fmt.Errorf("provider %q already registered", p.Name)
	}
	r.providers[p.Name] = p
	return nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
