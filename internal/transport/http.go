package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"goblin/internal/config"
	"goblin/pkg/logging"
)

// HTTPTransport speaks streamable-HTTP (POST + SSE notification channel) to
// a remote backend. A stateful backend's session id is tracked by the
// underlying mcp-go client across the initialize handshake; a stateless
// backend simply never receives one.
type HTTPTransport struct {
	backendName string
	url         string
	headers     map[string]string
	mode        config.BackendMode
	log         *logging.Logger

	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
	notify    NotificationHandler
}

// NewHTTPTransport builds a streamable-HTTP transport for one backend.
func NewHTTPTransport(backendName, url string, headers map[string]string, mode config.BackendMode, log *logging.Logger) *HTTPTransport {
	return &HTTPTransport{
		backendName: backendName,
		url:         url,
		headers:     headers,
		mode:        mode,
		log:         log.With("transport.http"),
	}
}

func (t *HTTPTransport) OnNotification(handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = handler
}

func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	var opts []transport.StreamableHTTPCOption
	if len(t.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(t.headers))
	}

	t.log.Debug("dialing backend", "backend", t.backendName, "url", t.url)

	mcpClient, err := client.NewStreamableHttpClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("dial backend %s: %w", t.backendName, err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	_, err = mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "goblin",
				Version: "0.1.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("initialize backend %s: %w", t.backendName, err)
	}

	if t.notify != nil {
		mcpClient.OnNotification(t.notify)
	}

	t.client = mcpClient
	t.connected = true
	t.log.Info("backend connected", "backend", t.backendName, "mode", t.mode)
	return nil
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.connected = false
	t.client = nil
	return err
}

func (t *HTTPTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *HTTPTransport) checkConnected() error {
	if !t.connected || t.client == nil {
		return ErrNotConnected
	}
	return nil
}

func (t *HTTPTransport) ListTools(ctx context.Context, cursor string) (Page[mcp.Tool], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return Page[mcp.Tool]{}, err
	}
	req := mcp.ListToolsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)
	result, err := t.client.ListTools(ctx, req)
	if err != nil {
		if isMethodNotFound(err) {
			return Page[mcp.Tool]{}, ErrMethodNotSupported
		}
		return Page[mcp.Tool]{}, wrapBackendError("tools/list", t.backendName, err)
	}
	return Page[mcp.Tool]{Items: result.Tools, NextCursor: string(result.NextCursor)}, nil
}

func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return nil, err
	}
	result, err := t.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, wrapBackendError(fmt.Sprintf("tools/call %s", name), t.backendName, err)
	}
	return result, nil
}

func (t *HTTPTransport) ListPrompts(ctx context.Context, cursor string) (Page[mcp.Prompt], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return Page[mcp.Prompt]{}, err
	}
	req := mcp.ListPromptsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)
	result, err := t.client.ListPrompts(ctx, req)
	if err != nil {
		if isMethodNotFound(err) {
			return Page[mcp.Prompt]{}, ErrMethodNotSupported
		}
		return Page[mcp.Prompt]{}, wrapBackendError("prompts/list", t.backendName, err)
	}
	return Page[mcp.Prompt]{Items: result.Prompts, NextCursor: string(result.NextCursor)}, nil
}

func (t *HTTPTransport) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return nil, err
	}
	result, err := t.client.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, wrapBackendError(fmt.Sprintf("prompts/get %s", name), t.backendName, err)
	}
	return result, nil
}

func (t *HTTPTransport) ListResources(ctx context.Context, cursor string) (Page[mcp.Resource], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return Page[mcp.Resource]{}, err
	}
	req := mcp.ListResourcesRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)
	result, err := t.client.ListResources(ctx, req)
	if err != nil {
		if isMethodNotFound(err) {
			return Page[mcp.Resource]{}, ErrMethodNotSupported
		}
		return Page[mcp.Resource]{}, wrapBackendError("resources/list", t.backendName, err)
	}
	return Page[mcp.Resource]{Items: result.Resources, NextCursor: string(result.NextCursor)}, nil
}

func (t *HTTPTransport) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return nil, err
	}
	result, err := t.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	})
	if err != nil {
		return nil, wrapBackendError(fmt.Sprintf("resources/read %s", uri), t.backendName, err)
	}
	return result, nil
}

func (t *HTTPTransport) ListResourceTemplates(ctx context.Context, cursor string) (Page[mcp.ResourceTemplate], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return Page[mcp.ResourceTemplate]{}, err
	}
	req := mcp.ListResourceTemplatesRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)
	result, err := t.client.ListResourceTemplates(ctx, req)
	if err != nil {
		if isMethodNotFound(err) {
			return Page[mcp.ResourceTemplate]{}, ErrMethodNotSupported
		}
		return Page[mcp.ResourceTemplate]{}, wrapBackendError("resources/templates/list", t.backendName, err)
	}
	return Page[mcp.ResourceTemplate]{Items: result.ResourceTemplates, NextCursor: string(result.NextCursor)}, nil
}

func (t *HTTPTransport) SubscribeResource(ctx context.Context, uri string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return err
	}
	err := t.client.Subscribe(ctx, mcp.SubscribeRequest{
		Params: struct {
			URI string `json:"uri"`
		}{URI: uri},
	})
	if err != nil {
		if isMethodNotFound(err) {
			return ErrMethodNotSupported
		}
		return wrapBackendError(fmt.Sprintf("resources/subscribe %s", uri), t.backendName, err)
	}
	return nil
}

func (t *HTTPTransport) UnsubscribeResource(ctx context.Context, uri string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return err
	}
	err := t.client.Unsubscribe(ctx, mcp.UnsubscribeRequest{
		Params: struct {
			URI string `json:"uri"`
		}{URI: uri},
	})
	if err != nil {
		if isMethodNotFound(err) {
			return ErrMethodNotSupported
		}
		return wrapBackendError(fmt.Sprintf("resources/unsubscribe %s", uri), t.backendName, err)
	}
	return nil
}

func (t *HTTPTransport) Ping(ctx context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkConnected(); err != nil {
		return err
	}
	return t.client.Ping(ctx)
}

var _ Transport = (*HTTPTransport)(nil)
