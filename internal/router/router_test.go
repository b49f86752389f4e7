package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goblin/internal/config"
	"goblin/internal/gwerr"
	"goblin/internal/metatool"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/internal/transport"
	"goblin/pkg/logging"
)

// fakeTransport is a scriptable transport.Transport stub for exercising the
// Router's dispatch, error-mapping and breaker-recording paths.
type fakeTransport struct {
	connected      bool
	callToolErr    error
	callToolResult *mcp.CallToolResult
	getPromptErr   error
	readResourceErr error
	subscribeErr   error
	unsubscribeErr error
}

func (f *fakeTransport) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Close() error                  { f.connected = false; return nil }
func (f *fakeTransport) Connected() bool                { return f.connected }
func (f *fakeTransport) ListTools(context.Context, string) (transport.Page[mcp.Tool], error) {
	return transport.Page[mcp.Tool]{}, nil
}
func (f *fakeTransport) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	if f.callToolErr != nil {
		return nil, f.callToolErr
	}
	if f.callToolResult != nil {
		return f.callToolResult, nil
	}
	return mcp.NewToolResultText("ok"), nil
}
func (f *fakeTransport) ListPrompts(context.Context, string) (transport.Page[mcp.Prompt], error) {
	return transport.Page[mcp.Prompt]{}, nil
}
func (f *fakeTransport) GetPrompt(context.Context, string, map[string]string) (*mcp.GetPromptResult, error) {
	if f.getPromptErr != nil {
		return nil, f.getPromptErr
	}
	return &mcp.GetPromptResult{}, nil
}
func (f *fakeTransport) ListResources(context.Context, string) (transport.Page[mcp.Resource], error) {
	return transport.Page[mcp.Resource]{}, nil
}
func (f *fakeTransport) ReadResource(context.Context, string) (*mcp.ReadResourceResult, error) {
	if f.readResourceErr != nil {
		return nil, f.readResourceErr
	}
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeTransport) ListResourceTemplates(context.Context, string) (transport.Page[mcp.ResourceTemplate], error) {
	return transport.Page[mcp.ResourceTemplate]{}, nil
}
func (f *fakeTransport) SubscribeResource(context.Context, string) error   { return f.subscribeErr }
func (f *fakeTransport) UnsubscribeResource(context.Context, string) error { return f.unsubscribeErr }
func (f *fakeTransport) Ping(context.Context) error                       { return nil }
func (f *fakeTransport) OnNotification(transport.NotificationHandler)     {}

var _ transport.Transport = (*fakeTransport)(nil)

type testHarness struct {
	reg *registry.Registry
	rt  *Router
	tr  *fakeTransport
}

func newHarness(t *testing.T, cfg config.BackendConfig) *testHarness {
	t.Helper()
	reg := registry.New(logging.Nop(), nil)
	p := pool.New(logging.Nop(), nil)
	tr := &fakeTransport{}
	p.SetTransportFactory(func(config.BackendConfig, *logging.Logger) (transport.Transport, error) { return tr, nil })

	meta := metatool.New(reg, p, func() []config.BackendConfig { return []config.BackendConfig{cfg} }, logging.Nop(), time.Now())
	require.NoError(t, meta.Register())

	backends := func(name string) (config.BackendConfig, bool) {
		if name == cfg.Name {
			return cfg, true
		}
		return config.BackendConfig{}, false
	}
	policies := func() config.PoliciesConfig { return config.PoliciesConfig{DefaultTimeoutMs: 5000} }

	rt := New(reg, p, meta, backends, policies, logging.Nop())
	return &testHarness{reg: reg, rt: rt, tr: tr}
}

func TestCallToolNotFoundReturnsToolNotFound(t *testing.T) {
	h := newHarness(t, config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"})

	_, err := h.rt.CallTool(context.Background(), "alpha_missing", nil)
	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindToolNotFound, gwErr.Kind)
}

func TestCallToolDispatchesLocalMetaToolInProcess(t *testing.T) {
	h := newHarness(t, config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"})

	result, err := h.rt.CallTool(context.Background(), "health", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCallToolBackendSuccess(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{tools: []mcp.Tool{{Name: "frobnicate"}}})

	result, err := h.rt.CallTool(context.Background(), "alpha_frobnicate", map[string]any{"path": `C:\data`})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCallToolPeerErrorPreservesCode(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{tools: []mcp.Tool{{Name: "frobnicate"}}})
	h.tr.callToolErr = &transport.PeerError{Code: -32099, Message: "bad args"}

	_, err := h.rt.CallTool(context.Background(), "alpha_frobnicate", nil)
	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindToolExecutionError, gwErr.Kind)
	assert.Equal(t, -32099, gwErr.Code)
}

func TestCallToolInfrastructuralErrorMapsToConnectionError(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{tools: []mcp.Tool{{Name: "frobnicate"}}})
	h.tr.callToolErr = errors.New("connection reset by peer")

	_, err := h.rt.CallTool(context.Background(), "alpha_frobnicate", nil)
	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindConnectionError, gwErr.Kind)
}

func TestReadResourceRejectsTemplateOnlyMatch(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{templates: []mcp.ResourceTemplate{{URITemplate: "file:///logs/{id}"}}})

	_, err := h.rt.ReadResource(context.Background(), "alpha_file:///logs/42")
	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindResourceNotFound, gwErr.Kind)
}

func TestReadResourceSucceedsForConcreteResource(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{resourceSupported: true, resources: []mcp.Resource{{URI: "file:///etc/hosts"}}})

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	result, err := h.rt.ReadResource(context.Background(), nsURI)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestResolveResourceBackendThenSubscribe(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	syncBackend(t, h.reg, cfg.Name, &fakeSyncTransport{resourceSupported: true, resources: []mcp.Resource{{URI: "file:///etc/hosts"}}})

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	gotCfg, entry, err := h.rt.ResolveResourceBackend(nsURI)
	require.NoError(t, err)
	assert.Equal(t, "alpha", gotCfg.Name)

	require.NoError(t, h.rt.SubscribeBackend(context.Background(), gotCfg, entry.OriginalURI))
}

func TestSubscribeBackendMethodNotSupported(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	h := newHarness(t, cfg)
	h.tr.subscribeErr = transport.ErrMethodNotSupported

	err := h.rt.SubscribeBackend(context.Background(), cfg, "file:///etc/hosts")
	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindMethodNotSupported, gwErr.Kind)
}

// fakeSyncTransport is used solely to populate the Registry via Sync before
// a Router test exercises the real fakeTransport for the call path.
type fakeSyncTransport struct {
	tools             []mcp.Tool
	resources         []mcp.Resource
	templates         []mcp.ResourceTemplate
	resourceSupported bool
}

func (f *fakeSyncTransport) Connect(context.Context) error { return nil }
func (f *fakeSyncTransport) Close() error                  { return nil }
func (f *fakeSyncTransport) Connected() bool                { return true }
func (f *fakeSyncTransport) ListTools(context.Context, string) (transport.Page[mcp.Tool], error) {
	return transport.Page[mcp.Tool]{Items: f.tools}, nil
}
func (f *fakeSyncTransport) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeSyncTransport) ListPrompts(context.Context, string) (transport.Page[mcp.Prompt], error) {
	return transport.Page[mcp.Prompt]{}, transport.ErrMethodNotSupported
}
func (f *fakeSyncTransport) GetPrompt(context.Context, string, map[string]string) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (f *fakeSyncTransport) ListResources(context.Context, string) (transport.Page[mcp.Resource], error) {
	if !f.resourceSupported {
		return transport.Page[mcp.Resource]{}, transport.ErrMethodNotSupported
	}
	return transport.Page[mcp.Resource]{Items: f.resources}, nil
}
func (f *fakeSyncTransport) ReadResource(context.Context, string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (f *fakeSyncTransport) ListResourceTemplates(context.Context, string) (transport.Page[mcp.ResourceTemplate], error) {
	return transport.Page[mcp.ResourceTemplate]{Items: f.templates}, nil
}
func (f *fakeSyncTransport) SubscribeResource(context.Context, string) error   { return nil }
func (f *fakeSyncTransport) UnsubscribeResource(context.Context, string) error { return nil }
func (f *fakeSyncTransport) Ping(context.Context) error                       { return nil }
func (f *fakeSyncTransport) OnNotification(transport.NotificationHandler)     {}

var _ transport.Transport = (*fakeSyncTransport)(nil)

func syncBackend(t *testing.T, reg *registry.Registry, backendName string, tr transport.Transport) {
	t.Helper()
	require.NoError(t, reg.Sync(context.Background(), backendName, tr))
}
