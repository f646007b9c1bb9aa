package toolproto

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/logging"
)

// Client invokes operations on registered tool providers with retry,
// timeout, and circuit-breaking policy. It is safe for concurrent use and
// is the only component that mutates provider health.
//
// The client does not deduplicate calls; idempotency of mutating operations
// is the caller's responsibility.
type Client struct {
	cfg       config.ToolClientConfig
	registry  *Registry
	transport Transport
	logger    *logging.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	breakers map[string]*breaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = t }
}

// NewClient creates a Client over the given registry and transport.
func NewClient(cfg config.ToolClientConfig, registry *Registry, transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		cfg:       cfg,
		registry:  registry,
		transport: transport,
		logger:    logging.NewNop(),
		breakers:  make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke calls the named operation on the named provider and returns the
// provider result. Transient failures (timeout, unreachable) are retried
// with exponential backoff and jitter up to the configured attempt budget;
// rejections and invalid operations surface immediately.
//
// A zero timeout uses the configured default per-call deadline.
func (c *Client) Invoke(ctx context.Context, providerName, operation string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	provider, ok := c.registry.Get(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "toolproto.invoke",
			trace.WithAttributes(
				attribute.String("tool.provider", providerName),
				attribute.String("tool.operation", operation),
			),
		)
		defer span.End()
	}

	if !provider.Supports(operation) {
		err := &ToolError{
			Provider:  providerName,
			Operation: operation,
			Kind:      ErrorInvalidOperation,
			Reason:    "operation not advertised by provider",
			Attempts:  0,
		}
		CallsTotal.WithLabelValues(providerName, string(ErrorInvalidOperation)).Inc()
		return nil, err
	}

	br := c.breakerFor(providerName)
	if !br.allow(provider, c.cfg, time.Now()) {
		err := &ToolError{
			Provider:  providerName,
			Operation: operation,
			Kind:      ErrorUnreachable,
			Reason:    "circuit open, call short-circuited",
			Attempts:  0,
		}
		CallsTotal.WithLabelValues(providerName, string(ErrorUnreachable)).Inc()
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.cfg.CallTimeout.Duration()
	}

	start := time.Now()
	attempts := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff.Duration()
	bo.MaxInterval = c.cfg.MaxBackoff.Duration()

	operationFn := func() (Response, error) {
		attempts++
		if attempts > 1 {
			RetriesTotal.WithLabelValues(providerName).Inc()
		}

		resp, err := c.attempt(ctx, provider, operation, params, timeout)
		if err != nil {
			kind := classifyTransportError(err)
			health := br.recordFailure(provider, c.cfg, time.Now())
			recordHealthMetric(providerName, health)
			c.logger.Warn(ctx, "tool call attempt failed",
				zap.String("provider", providerName),
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)

			te := &ToolError{Provider: providerName, Operation: operation, Kind: kind, Reason: err.Error(), cause: err}
			if !kind.Transient() {
				return Response{}, backoff.Permanent(te)
			}
			// Parent cancellation is not worth retrying against.
			if ctx.Err() != nil {
				return Response{}, backoff.Permanent(te)
			}
			return Response{}, te
		}

		if !resp.OK() {
			kind := resp.ErrorKind()
			health := br.recordFailure(provider, c.cfg, time.Now())
			recordHealthMetric(providerName, health)

			te := &ToolError{Provider: providerName, Operation: operation, Kind: kind, Reason: resp.Message}
			if !kind.Transient() {
				return Response{}, backoff.Permanent(te)
			}
			return Response{}, te
		}

		br.recordSuccess(provider, time.Now())
		recordHealthMetric(providerName, HealthHealthy)
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operationFn,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
	)

	CallDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		te := AsToolError(err)
		if te == nil {
			// Context cancellation surfaced by the retry loop itself.
			te = &ToolError{Provider: providerName, Operation: operation, Kind: ErrorTimeout, Reason: err.Error(), cause: err}
		}
		te.Attempts = attempts
		CallsTotal.WithLabelValues(providerName, string(te.Kind)).Inc()
		return nil, te
	}

	CallsTotal.WithLabelValues(providerName, "ok").Inc()
	c.logger.Debug(ctx, "tool call succeeded",
		zap.String("provider", providerName),
		zap.String("operation", operation),
		zap.Int("attempts", attempts),
	)
	return resp.Result, nil
}

// attempt performs one transport round trip under its own deadline.
func (c *Client) attempt(ctx context.Context, provider *Provider, operation string, params map[string]any, timeout time.Duration) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.transport.RoundTrip(attemptCtx, provider, Request{
		Operation:  operation,
		Parameters: params,
	})
}

// breakerFor returns the breaker for a provider, creating it on first use.
func (c *Client) breakerFor(name string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[name]
	if !ok {
		br = &breaker{}
		c.breakers[name] = br
	}
	return br
}

// classifyTransportError maps transport failures onto the error taxonomy.
// Deadline expiry is a timeout; everything else means the provider could
// not be reached.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTimeout
	}
	return ErrorUnreachable
}
