package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goblin/internal/config"
	"goblin/pkg/logging"
)

func TestNewBuildsStdioTransport(t *testing.T) {
	cfg := config.BackendConfig{Name: "alpha", Kind: config.TransportStdio, Command: "alpha-server"}

	tr, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &StdioTransport{}, tr)
}

func TestNewBuildsHTTPTransportForBothKinds(t *testing.T) {
	for _, kind := range []config.TransportKind{config.TransportHTTPSSE, config.TransportStreamableHTTP} {
		cfg := config.BackendConfig{Name: "beta", Kind: kind, URL: "http://localhost:9000/mcp"}

		tr, err := New(cfg, logging.Nop())
		require.NoError(t, err)
		assert.IsType(t, &HTTPTransport{}, tr)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	cfg := config.BackendConfig{Name: "gamma", Kind: "carrier-pigeon"}

	_, err := New(cfg, logging.Nop())
	assert.Error(t, err)
}
