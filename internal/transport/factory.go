package transport

import (
	"fmt"

	"goblin/internal/config"
	"goblin/pkg/logging"
)

// New builds the right Transport implementation for a backend's configured
// kind. It does not connect; callers (the Transport Pool) own the connect
// lifecycle.
func New(cfg config.BackendConfig, log *logging.Logger) (Transport, error) {
	switch cfg.Kind {
	case config.TransportStdio:
		return NewStdioTransport(cfg.Name, cfg.Command, cfg.Args, cfg.Env, log), nil
	case config.TransportHTTPSSE, config.TransportStreamableHTTP:
		return NewHTTPTransport(cfg.Name, cfg.URL, cfg.Headers, cfg.Mode, log), nil
	default:
		return nil, fmt.Errorf("transport: unknown backend kind %q for %s", cfg.Kind, cfg.Name)
	}
}
