package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

const (
	// ProviderName is the pseudo-provider the inference capability is
	// registered under.
	ProviderName = "inference"

	// OperationInfer is the single operation the provider advertises.
	OperationInfer = "infer"
)

// RegisterProvider registers the inference pseudo-provider so calls route
// through the tool client's retry and circuit-breaking policy.
func RegisterProvider(registry *toolproto.Registry, cfg config.InferenceConfig) error {
	return registry.Register(toolproto.NewProvider(ProviderName, cfg.BaseURL, OperationInfer))
}

// Transport adapts a model backend to the tool-provider wire contract.
// Throttling and server errors surface as transport errors so the tool
// client retries them; unparseable model output is a permanent rejection.
type Transport struct {
	backend backend
	limiter *rate.Limiter
}

// NewTransport creates the inference transport from config.
func NewTransport(cfg config.InferenceConfig) (*Transport, error) {
	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Transport{
		backend: b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}, nil
}

// NewTransportWithBackend is a constructor for tests.
func NewTransportWithBackend(b backend, limiter *rate.Limiter) *Transport {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Transport{backend: b, limiter: limiter}
}

// RoundTrip implements toolproto.Transport.
func (t *Transport) RoundTrip(ctx context.Context, _ *toolproto.Provider, req toolproto.Request) (toolproto.Response, error) {
	if req.Operation != OperationInfer {
		return toolproto.Response{
			Status:  toolproto.StatusError,
			Kind:    string(toolproto.ErrorInvalidOperation),
			Message: fmt.Sprintf("unsupported operation: %s", req.Operation),
		}, nil
	}

	prompt, _ := req.Parameters["prompt"].(string)
	if prompt == "" {
		return toolproto.Response{
			Status:  toolproto.StatusError,
			Kind:    string(toolproto.ErrorRejected),
			Message: "prompt is required",
		}, nil
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return toolproto.Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	fullPrompt := prompt
	if inferCtx, ok := req.Parameters["context"].(map[string]any); ok && len(inferCtx) > 0 {
		ctxJSON, err := json.Marshal(inferCtx)
		if err == nil {
			fullPrompt = prompt + "\n\nContext:\n" + string(ctxJSON)
		}
	}

	raw, err := t.backend.Complete(ctx, fullPrompt)
	if err != nil {
		return toolproto.Response{}, err
	}

	structured, err := parseStructured(raw)
	if err != nil {
		return toolproto.Response{
			Status:  toolproto.StatusError,
			Kind:    string(toolproto.ErrorRejected),
			Message: fmt.Sprintf("invalid model response: %v", err),
		}, nil
	}

	return toolproto.Response{Status: toolproto.StatusOK, Result: structured}, nil
}

// parseStructured extracts a JSON object from the model output, tolerating
// a fenced code block around it.
func parseStructured(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Fall back to the outermost object when the model wrapped it in prose.
	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object found")
		}
		text = text[start : end+1]
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	return result, nil
}
