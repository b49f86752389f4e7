// Package transport implements the backend-facing JSON-RPC client: one
// bidirectional connection per backend, either a child process speaking
// line-delimited JSON over stdio or an HTTP/streamable-HTTP endpoint with a
// session-id keyed notification channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// NotificationHandler is invoked for every backend-pushed notification, in a
// single-threaded sequence per Transport so that list-changed/updated events
// preserve arrival order.
type NotificationHandler func(notification mcp.JSONRPCNotification)

// Page bundles a category listing with the peer-supplied continuation
// cursor; callers must treat the cursor as opaque and keep fetching until it
// comes back empty.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Transport is the contract both the stdio and HTTP backend clients satisfy.
// Connect/Close manage the connection lifecycle; the listing/call/read
// methods are the concrete surface the Router and Registry actually need,
// narrower than a raw "any JSON-RPC method" dispatcher, but it covers every
// method this gateway ever sends to a backend.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool

	ListTools(ctx context.Context, cursor string) (Page[mcp.Tool], error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	ListPrompts(ctx context.Context, cursor string) (Page[mcp.Prompt], error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)

	ListResources(ctx context.Context, cursor string) (Page[mcp.Resource], error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	ListResourceTemplates(ctx context.Context, cursor string) (Page[mcp.ResourceTemplate], error)

	SubscribeResource(ctx context.Context, uri string) error
	UnsubscribeResource(ctx context.Context, uri string) error

	Ping(ctx context.Context) error

	// OnNotification registers the single handler invoked for every
	// notification this transport receives. Call before Connect.
	OnNotification(handler NotificationHandler)
}

// FailureKind classifies a Request failure for the circuit breaker: only
// infrastructural failures count toward the consecutive-failure threshold.
type FailureKind int

const (
	FailurePeer FailureKind = iota
	FailureInfrastructural
)

// PeerError carries a backend's own JSON-RPC error unchanged so the Router
// can preserve it verbatim in ToolExecutionError and friends. Code is 0 when
// the underlying client library does not expose the peer's numeric code
// distinctly from its message.
type PeerError struct {
	Code    int
	Message string
	Data    any
}

func (e *PeerError) Error() string { return e.Message }

// ErrNotConnected is returned by any operation issued before Connect
// succeeds or after Close.
var ErrNotConnected = errors.New("transport: not connected")

// ErrMethodNotSupported is returned when a backend does not implement an
// optional method (list_resources, subscribe, ...); callers treat it as
// "category is empty" or "capability absent", never as a hard failure.
var ErrMethodNotSupported = errors.New("transport: method not supported by backend")

var infraMarkers = []string{
	"eof",
	"connection refused",
	"connection reset",
	"broken pipe",
	"context deadline exceeded",
	"context canceled",
	"use of closed network connection",
	"no such host",
}

// Classify decides whether err should count against the circuit breaker.
// A *PeerError or ErrMethodNotSupported is a semantic response from a
// reachable backend; anything matching a known transport-failure signature
// is infrastructural. Library error strings are the only signal available
// across transport implementations, matching the pattern already used for
// recognizing a 401 on the HTTP backend client.
func Classify(err error) FailureKind {
	if err == nil {
		return FailurePeer
	}
	var pe *PeerError
	if errors.As(err, &pe) {
		return FailurePeer
	}
	if errors.Is(err, ErrMethodNotSupported) {
		return FailurePeer
	}
	if errors.Is(err, ErrNotConnected) {
		return FailureInfrastructural
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range infraMarkers {
		if strings.Contains(msg, marker) {
			return FailureInfrastructural
		}
	}
	return FailureInfrastructural
}

// isMethodNotFound recognizes a JSON-RPC "method not found" response from a
// peer that doesn't implement an optional listing/subscription method.
func isMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") || strings.Contains(msg, "-32601")
}

// wrapBackendError turns a request failure from the underlying mcp-go client
// into either an infrastructural error, kept as a plain wrapped error so
// Classify's marker match still recognizes it, or a *PeerError when err
// carries none of the known transport-failure signatures. client.MCPClient
// never exposes a distinctly typed JSON-RPC error, so this is the same
// string-signal approach isMethodNotFound already relies on: a failure that
// isn't a recognized connection/timeout symptom is, by elimination, a
// semantic error response from a reachable backend and must not trip the
// circuit breaker.
func wrapBackendError(op, backendName string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range infraMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s on %s: %w", op, backendName, err)
		}
	}
	return &PeerError{Message: fmt.Sprintf("%s on %s: %s", op, backendName, err.Error())}
}
