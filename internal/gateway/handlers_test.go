package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goblin/internal/config"
	"goblin/internal/metatool"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/internal/router"
	"goblin/internal/subscription"
	"goblin/internal/transport"
	"goblin/pkg/logging"
)

// subscribeFakeTransport is a minimal transport.Transport stub used to drive
// resources/subscribe and resources/unsubscribe through a real Router
// wired to a single backend.
type subscribeFakeTransport struct {
	resources      []mcp.Resource
	subscribeErr   error
	unsubscribeErr error
	subscribeHits  int
	unsubscribeHits int
}

func (f *subscribeFakeTransport) Connect(context.Context) error { return nil }
func (f *subscribeFakeTransport) Close() error                  { return nil }
func (f *subscribeFakeTransport) Connected() bool                { return true }
func (f *subscribeFakeTransport) ListTools(context.Context, string) (transport.Page[mcp.Tool], error) {
	return transport.Page[mcp.Tool]{}, transport.ErrMethodNotSupported
}
func (f *subscribeFakeTransport) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *subscribeFakeTransport) ListPrompts(context.Context, string) (transport.Page[mcp.Prompt], error) {
	return transport.Page[mcp.Prompt]{}, transport.ErrMethodNotSupported
}
func (f *subscribeFakeTransport) GetPrompt(context.Context, string, map[string]string) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (f *subscribeFakeTransport) ListResources(context.Context, string) (transport.Page[mcp.Resource], error) {
	return transport.Page[mcp.Resource]{Items: f.resources}, nil
}
func (f *subscribeFakeTransport) ReadResource(context.Context, string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *subscribeFakeTransport) ListResourceTemplates(context.Context, string) (transport.Page[mcp.ResourceTemplate], error) {
	return transport.Page[mcp.ResourceTemplate]{}, transport.ErrMethodNotSupported
}
func (f *subscribeFakeTransport) SubscribeResource(context.Context, string) error {
	f.subscribeHits++
	return f.subscribeErr
}
func (f *subscribeFakeTransport) UnsubscribeResource(context.Context, string) error {
	f.unsubscribeHits++
	return f.unsubscribeErr
}
func (f *subscribeFakeTransport) Ping(context.Context) error                   { return nil }
func (f *subscribeFakeTransport) OnNotification(transport.NotificationHandler) {}

var _ transport.Transport = (*subscribeFakeTransport)(nil)

type subscribeHarness struct {
	srv *Server
	tr  *subscribeFakeTransport
}

func newSubscribeHarness(t *testing.T) *subscribeHarness {
	t.Helper()
	reg := registry.New(logging.Nop(), nil)
	p := pool.New(logging.Nop(), nil)
	tr := &subscribeFakeTransport{resources: []mcp.Resource{{URI: "file:///etc/hosts"}}}
	p.SetTransportFactory(func(config.BackendConfig, *logging.Logger) (transport.Transport, error) { return tr, nil })

	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "x"}
	meta := metatool.New(reg, p, func() []config.BackendConfig { return []config.BackendConfig{cfg} }, logging.Nop(), time.Now())
	require.NoError(t, meta.Register())
	require.NoError(t, reg.Sync(context.Background(), cfg.Name, tr))

	backends := func(name string) (config.BackendConfig, bool) {
		if name == cfg.Name {
			return cfg, true
		}
		return config.BackendConfig{}, false
	}
	policies := func() config.PoliciesConfig { return config.PoliciesConfig{DefaultTimeoutMs: 5000} }
	rt := router.New(reg, p, meta, backends, policies, logging.Nop())
	subs := subscription.New(logging.Nop(), 0)
	srv := New(reg, rt, subs, logging.Nop(), nil)
	return &subscribeHarness{srv: srv, tr: tr}
}

func TestResourcesListAndReadRoundTrip(t *testing.T) {
	h := newSubscribeHarness(t)
	c := newTestClient(t, h.srv)
	initialize(t, c)

	listResp := c.call(t, "2", methodResourcesList, nil)
	require.Nil(t, listResp["error"])
	result := listResp["result"].(map[string]any)
	resources := result["resources"].([]any)
	require.Len(t, resources, 1)
	nsURI := resources[0].(map[string]any)["uri"].(string)

	readResp := c.call(t, "3", methodResourcesRead, map[string]any{"uri": nsURI})
	require.Nil(t, readResp["error"])
}

func TestResourcesSubscribeFirstClientCallsBackend(t *testing.T) {
	h := newSubscribeHarness(t)
	c := newTestClient(t, h.srv)
	initialize(t, c)

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	resp := c.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp["error"])
	assert.Equal(t, 1, h.tr.subscribeHits)
}

func TestResourcesSubscribeSecondClientSkipsBackendCall(t *testing.T) {
	h := newSubscribeHarness(t)
	c1 := newTestClient(t, h.srv)
	initialize(t, c1)
	c2 := newTestClient(t, h.srv)
	initialize(t, c2)

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	resp1 := c1.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp1["error"])
	resp2 := c2.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp2["error"])

	assert.Equal(t, 1, h.tr.subscribeHits, "only the first subscriber should reach the backend")
}

func TestResourcesSubscribeRollsBackIndexOnBackendFailure(t *testing.T) {
	h := newSubscribeHarness(t)
	h.tr.subscribeErr = assertErr("backend refused subscribe")
	c := newTestClient(t, h.srv)
	initialize(t, c)

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	resp := c.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})
	require.NotNil(t, resp["error"])

	// the rolled-back subscription must not count as an existing subscriber:
	// a fresh subscribe attempt should again be treated as the first one.
	h.tr.subscribeErr = nil
	resp2 := c.call(t, "3", methodResourcesSubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp2["error"])
	assert.Equal(t, 1, h.tr.subscribeHits, "the failed attempt must not have registered a live backend subscription")
}

func TestResourcesUnsubscribeLastSubscriberCallsBackend(t *testing.T) {
	h := newSubscribeHarness(t)
	c := newTestClient(t, h.srv)
	initialize(t, c)

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	require.Nil(t, c.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})["error"])

	resp := c.call(t, "3", methodResourcesUnsubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp["error"])
	assert.Equal(t, 1, h.tr.unsubscribeHits)
}

func TestResourcesUnsubscribeNotLastSubscriberSkipsBackend(t *testing.T) {
	h := newSubscribeHarness(t)
	c1 := newTestClient(t, h.srv)
	initialize(t, c1)
	c2 := newTestClient(t, h.srv)
	initialize(t, c2)

	nsURI := registry.NamespaceURI("alpha", "file:///etc/hosts")
	require.Nil(t, c1.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})["error"])
	require.Nil(t, c2.call(t, "2", methodResourcesSubscribe, map[string]any{"uri": nsURI})["error"])

	resp := c1.call(t, "3", methodResourcesUnsubscribe, map[string]any{"uri": nsURI})
	require.Nil(t, resp["error"])
	assert.Equal(t, 0, h.tr.unsubscribeHits, "a non-last unsubscribe must not reach the backend")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
