package toolproto

import (
	"context"
	"fmt"
	"sync"
)

// TransportMux routes round trips to per-provider transports. Providers
// without a dedicated transport use the fallback, typically the MCP
// transport for remote tool servers.
type TransportMux struct {
	mu         sync.RWMutex
	byProvider map[string]Transport
	fallback   Transport
}

// NewTransportMux creates a mux with the given fallback transport. A nil
// fallback is allowed; round trips to unrouted providers then fail.
func NewTransportMux(fallback Transport) *TransportMux {
	return &TransportMux{
		byProvider: make(map[string]Transport),
		fallback:   fallback,
	}
}

// Handle routes the named provider's calls to the given transport.
func (m *TransportMux) Handle(providerName string, t Transport) {
	m.mu.Lock()
	m.byProvider[providerName] = t
	m.mu.Unlock()
}

// RoundTrip implements Transport.
func (m *TransportMux) RoundTrip(ctx context.Context, provider *Provider, req Request) (Response, error) {
	m.mu.RLock()
	t, ok := m.byProvider[provider.Name]
	if !ok {
		t = m.fallback
	}
	m.mu.RUnlock()

	if t == nil {
		return Response{}, fmt.Errorf("no transport routes provider %q", provider.Name)
	}
	return t.RoundTrip(ctx, provider, req)
}
