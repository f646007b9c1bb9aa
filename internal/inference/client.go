package inference

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

// Client is the inference capability handed to analysis stages.
type Client interface {
	// Infer sends a prompt plus structured context and returns the model's
	// structured result, or an *InferenceError.
	Infer(ctx context.Context, prompt string, inferCtx map[string]any) (map[string]any, error)
}

// ToolClient routes inference through the tool-protocol client so calls
// share its retry and circuit-breaking policy.
type ToolClient struct {
	tools   *toolproto.Client
	timeout time.Duration
}

// NewClient creates the default inference client over the tool client.
// The inference provider must already be registered (see RegisterProvider).
func NewClient(tools *toolproto.Client, timeout time.Duration) *ToolClient {
	return &ToolClient{tools: tools, timeout: timeout}
}

var _ Client = (*ToolClient)(nil)

// Infer implements Client.
func (c *ToolClient) Infer(ctx context.Context, prompt string, inferCtx map[string]any) (map[string]any, error) {
	params := map[string]any{"prompt": prompt}
	if len(inferCtx) > 0 {
		params["context"] = inferCtx
	}

	result, err := c.tools.Invoke(ctx, ProviderName, OperationInfer, params, c.timeout)
	if err != nil {
		return nil, translateToolError(err)
	}
	return result, nil
}

// translateToolError maps the tool-client taxonomy onto inference kinds.
func translateToolError(err error) error {
	te := toolproto.AsToolError(err)
	if te == nil {
		return &InferenceError{Kind: ErrorUnavailable, Reason: err.Error(), cause: err}
	}

	kind := ErrorUnavailable
	switch {
	case errors.Is(err, errRateLimited):
		kind = ErrorRateLimited
	case te.Kind == toolproto.ErrorRejected || te.Kind == toolproto.ErrorInvalidOperation:
		kind = ErrorInvalidResponse
	case te.Kind == toolproto.ErrorTimeout || te.Kind == toolproto.ErrorUnreachable:
		kind = ErrorUnavailable
	}

	return &InferenceError{Kind: kind, Reason: te.Reason, cause: err}
}
