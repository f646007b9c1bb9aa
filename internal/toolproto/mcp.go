package toolproto

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPTransport speaks the Model Context Protocol to providers over
// streamable HTTP. Each provider endpoint gets one lazily established
// session, reused across calls.
type MCPTransport struct {
	impl *mcp.Implementation

	mu       sync.Mutex
	sessions map[string]*mcp.ClientSession
}

// NewMCPTransport creates an MCP transport identifying as the given
// client name and version.
func NewMCPTransport(name, version string) *MCPTransport {
	return &MCPTransport{
		impl:     &mcp.Implementation{Name: name, Version: version},
		sessions: make(map[string]*mcp.ClientSession),
	}
}

// RoundTrip implements Transport. The request operation maps to an MCP tool
// name and the parameters to the tool arguments.
func (t *MCPTransport) RoundTrip(ctx context.Context, provider *Provider, req Request) (Response, error) {
	session, err := t.session(ctx, provider)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to provider %s: %w", provider.Name, err)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      req.Operation,
		Arguments: req.Parameters,
	})
	if err != nil {
		// The session may be stale; drop it so the next attempt reconnects.
		t.evict(provider.Endpoint, session)
		return Response{}, err
	}

	if result.IsError {
		return Response{
			Status:  StatusError,
			Kind:    string(ErrorRejected),
			Message: textContent(result),
		}, nil
	}

	return Response{
		Status: StatusOK,
		Result: resultPayload(result),
	}, nil
}

// Close shuts down all cached sessions.
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for endpoint, session := range t.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.sessions, endpoint)
	}
	return firstErr
}

func (t *MCPTransport) session(ctx context.Context, provider *Provider) (*mcp.ClientSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if session, ok := t.sessions[provider.Endpoint]; ok {
		return session, nil
	}

	client := mcp.NewClient(t.impl, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: provider.Endpoint}, nil)
	if err != nil {
		return nil, err
	}
	t.sessions[provider.Endpoint] = session
	return session, nil
}

func (t *MCPTransport) evict(endpoint string, session *mcp.ClientSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions[endpoint] == session {
		delete(t.sessions, endpoint)
		_ = session.Close()
	}
}

// textContent flattens the textual content blocks of a tool result.
func textContent(result *mcp.CallToolResult) string {
	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text
}

// resultPayload extracts the structured result, falling back to the text
// content under a "text" key.
func resultPayload(result *mcp.CallToolResult) map[string]any {
	if sc, ok := result.StructuredContent.(map[string]any); ok {
		return sc
	}
	if text := textContent(result); text != "" {
		return map[string]any{"text": text}
	}
	return map[string]any{}
}
