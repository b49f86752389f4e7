package metatool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goblin/internal/config"
	"goblin/internal/gwerr"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/pkg/logging"
)

func newTestSet(t *testing.T) (*Set, *registry.Registry) {
	t.Helper()
	reg := registry.New(logging.Nop(), nil)
	p := pool.New(logging.Nop(), nil)
	backends := func() []config.BackendConfig { return nil }
	s := New(reg, p, backends, logging.Nop(), time.Now())
	require.NoError(t, s.Register())
	return s, reg
}

func decodeText(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(tc.Text), v))
}

func TestRegisterPublishesAllMetaTools(t *testing.T) {
	_, reg := newTestSet(t)

	tools := reg.AllTools()
	assert.Len(t, tools, len(definitions()))

	names := make(map[string]bool, len(tools))
	for _, tl := range tools {
		names[tl.Name] = true
		assert.True(t, tl.IsLocal)
	}
	for _, d := range definitions() {
		assert.True(t, names[d.name], "expected meta-tool %s to be registered", d.name)
	}
}

func TestDispatchUnknownToolErrors(t *testing.T) {
	s, _ := newTestSet(t)
	_, err := s.Dispatch(context.Background(), "nonexistent", nil)
	assert.Error(t, err)
}

func TestDispatchCatalogSearchRequiresQuery(t *testing.T) {
	s, _ := newTestSet(t)
	_, err := s.Dispatch(context.Background(), "catalog_search", map[string]any{})

	require.Error(t, err)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindValidation, gwErr.Kind)
}

func TestDispatchHealthReportsKnownBackends(t *testing.T) {
	reg := registry.New(logging.Nop(), nil)
	p := pool.New(logging.Nop(), nil)
	backends := func() []config.BackendConfig {
		return []config.BackendConfig{{Name: "alpha", Enabled: true}}
	}
	s := New(reg, p, backends, logging.Nop(), time.Now().Add(-5*time.Second))
	require.NoError(t, s.Register())

	result, err := s.Dispatch(context.Background(), "health", nil)
	require.NoError(t, err)

	var hr healthResult
	decodeText(t, result, &hr)
	require.Len(t, hr.Backends, 1)
	assert.Equal(t, "alpha", hr.Backends[0].Name)
	assert.Equal(t, "CLOSED", hr.Backends[0].Circuit, "a never-connected backend reports a closed circuit")
	assert.False(t, hr.Backends[0].Connected)
	assert.GreaterOrEqual(t, hr.UptimeSeconds, int64(0))
}

func TestDispatchCatalogListExcludesLocalTools(t *testing.T) {
	s, reg := newTestSet(t)
	reg.RegisterLocalTool(registry.ToolEntry{NamespacedID: "health"})

	result, err := s.Dispatch(context.Background(), "catalog_list", nil)
	require.NoError(t, err)

	var cards []toolCard
	decodeText(t, result, &cards)
	assert.Empty(t, cards, "meta-tools themselves should never appear in catalog_list")
}

func TestDispatchDescribeToolNotFoundCarriesSuggestions(t *testing.T) {
	s, reg := newTestSet(t)
	reg.RegisterLocalTool(registry.ToolEntry{NamespacedID: "alpha_frobnicate", Name: "frobnicate"})

	_, err := s.Dispatch(context.Background(), "describe_tool", map[string]any{"name": "alpha_frobnicat"})
	require.Error(t, err)

	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindToolNotFound, gwErr.Kind)
	assert.Contains(t, gwErr.Data["suggestions"], "alpha_frobnicate")
}

func TestShortDescriptionTruncatesLongText(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	got := shortDescription(string(long))
	assert.True(t, len(got) < len(long))
	assert.Contains(t, got, "…")
}

func TestShortDescriptionLeavesShortTextAlone(t *testing.T) {
	assert.Equal(t, "short", shortDescription("  short  "))
}
