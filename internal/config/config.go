// Package config defines the gateway's persisted configuration document and
// an atomic JSON loader/saver. File watching, env/flag layering and CLI
// plumbing are left to the external collaborator; this package only ever
// handles one validated snapshot.
package config

import (
	"fmt"
	"time"
)

// TransportKind identifies how a backend is reached.
type TransportKind string

const (
	TransportStdio         TransportKind = "stdio"
	TransportHTTPSSE       TransportKind = "http/SSE"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// BackendMode distinguishes backends that track a session id from ones that
// expect every request to be self-contained.
type BackendMode string

const (
	ModeStateful  BackendMode = "stateful"
	ModeStateless BackendMode = "stateless"
)

// BackendConfig describes one aggregated backend server.
type BackendConfig struct {
	Name    string            `json:"name"`
	Kind    TransportKind     `json:"kind"`
	Enabled bool              `json:"enabled"`
	Mode    BackendMode       `json:"mode"`

	// stdio-specific
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// http / streamable-http specific
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// TimeoutMs overrides policies.defaultTimeout for this backend, 0 means unset.
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

func (b BackendConfig) Timeout(defaultTimeout time.Duration) time.Duration {
	if b.TimeoutMs <= 0 {
		return defaultTimeout
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// GatewayTransport selects which frontend surfaces the daemon binds.
type GatewayTransport string

const (
	GatewayStdio GatewayTransport = "stdio"
	GatewayHTTP  GatewayTransport = "http"
	GatewayBoth  GatewayTransport = "both"
)

// GatewayConfig controls the frontend binding.
type GatewayConfig struct {
	Host      string           `json:"host"`
	Port      int              `json:"port"`
	Transport GatewayTransport `json:"transport"`
}

// StreamableHTTPConfig controls the HTTP frontend's session channel.
type StreamableHTTPConfig struct {
	SSEEnabled     bool  `json:"sseEnabled"`
	SessionTimeoutMs int64 `json:"sessionTimeoutMs"`
	MaxSessions    int   `json:"maxSessions"`
}

func (s StreamableHTTPConfig) SessionTimeout() time.Duration {
	if s.SessionTimeoutMs <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.SessionTimeoutMs) * time.Millisecond
}

// AuthMode selects the admin-HTTP auth check.
type AuthMode string

const (
	AuthDev    AuthMode = "dev"
	AuthAPIKey AuthMode = "apikey"
)

// AuthConfig guards the health/metrics HTTP surface only; /health is always exempt.
type AuthConfig struct {
	Mode   AuthMode `json:"mode"`
	APIKey string   `json:"apiKey,omitempty"`
}

// PoliciesConfig carries gateway-wide request policy.
type PoliciesConfig struct {
	OutputSizeLimitBytes int64 `json:"outputSizeLimit"`
	DefaultTimeoutMs     int64 `json:"defaultTimeout"`
}

func (p PoliciesConfig) DefaultTimeout() time.Duration {
	if p.DefaultTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.DefaultTimeoutMs) * time.Millisecond
}

// Config is the full persisted document of spec.md §6.
type Config struct {
	Servers        []BackendConfig      `json:"servers"`
	Gateway        GatewayConfig        `json:"gateway"`
	StreamableHTTP StreamableHTTPConfig `json:"streamableHttp"`
	Auth           AuthConfig           `json:"auth"`
	Policies       PoliciesConfig       `json:"policies"`
}

// Validate checks structural invariants the loader must enforce before the
// config is handed to the core: unique non-empty backend names, well-formed
// transport/mode enums, and a sane gateway transport selection.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Servers))
	for _, b := range c.Servers {
		if b.Name == "" {
			return fmt.Errorf("config: backend with empty name")
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("config: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = struct{}{}

		switch b.Kind {
		case TransportStdio, TransportHTTPSSE, TransportStreamableHTTP:
		default:
			return fmt.Errorf("config: backend %q has unknown transport kind %q", b.Name, b.Kind)
		}
		switch b.Mode {
		case ModeStateful, ModeStateless:
		default:
			return fmt.Errorf("config: backend %q has unknown mode %q", b.Name, b.Mode)
		}
		if b.Kind == TransportStdio && b.Command == "" {
			return fmt.Errorf("config: stdio backend %q missing command", b.Name)
		}
		if (b.Kind == TransportHTTPSSE || b.Kind == TransportStreamableHTTP) && b.URL == "" {
			return fmt.Errorf("config: http backend %q missing url", b.Name)
		}
	}

	switch c.Gateway.Transport {
	case GatewayStdio, GatewayHTTP, GatewayBoth, "":
	default:
		return fmt.Errorf("config: unknown gateway transport %q", c.Gateway.Transport)
	}

	switch c.Auth.Mode {
	case AuthDev, AuthAPIKey, "":
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth.Mode)
	}
	if c.Auth.Mode == AuthAPIKey && c.Auth.APIKey == "" {
		return fmt.Errorf("config: auth mode apikey requires apiKey")
	}

	return nil
}
