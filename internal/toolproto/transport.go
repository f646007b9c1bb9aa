package toolproto

import "context"

// Transport performs a single round trip to a provider. Implementations do
// not retry; retry and circuit-breaking policy belongs to the Client.
//
// A returned error means a transport-level failure (connection refused,
// deadline exceeded). Provider-level refusals travel in the Response with
// Status "error".
type Transport interface {
	RoundTrip(ctx context.Context, provider *Provider, req Request) (Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, provider *Provider, req Request) (Response, error)

// RoundTrip implements Transport.
func (f TransportFunc) RoundTrip(ctx context.Context, provider *Provider, req Request) (Response, error) {
	return f(ctx, provider, req)
}
