// Package gwerr defines the gateway's wire error taxonomy: every failure
// that can reach a front-end client carries a Kind, a JSON-RPC error code,
// a human message, and an optional Data payload with just enough context to
// diagnose (never a stack trace, never a raw peer payload).
package gwerr

import (
	"errors"
	"fmt"
)

// Kind identifies one row of the error taxonomy in spec.md §7.
type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindToolNotFound         Kind = "tool_not_found"
	KindPromptNotFound       Kind = "prompt_not_found"
	KindResourceNotFound     Kind = "resource_not_found"
	KindServerNotFound       Kind = "server_not_found"
	KindConnectionError      Kind = "connection_error"
	KindCircuitOpen          Kind = "circuit_open"
	KindRequestTimeout       Kind = "request_timeout"
	KindToolExecutionError   Kind = "tool_execution_error"
	KindPromptExecutionError Kind = "prompt_execution_error"
	KindResourceReadError    Kind = "resource_read_error"
	KindConfigurationError   Kind = "configuration_error"
	KindSubscriptionLimit    Kind = "subscription_limit_exceeded"
	KindInvalidRequest       Kind = "invalid_request"
	KindMethodNotSupported   Kind = "method_not_supported"
	KindCancelled            Kind = "cancelled"
)

// JSON-RPC reserved codes used for the gateway's own errors. Peer-originated
// errors (ToolExecutionError etc.) instead preserve the peer's own code when
// one was supplied.
const (
	CodeInvalidParams     = -32602
	CodeMethodNotFound    = -32601
	CodeInvalidRequest    = -32600
	CodeInternal          = -32603
	CodeServerNotFound    = -32001
	CodeConnectionError   = -32002
	CodeCircuitOpen       = -32003
	CodeRequestTimeout    = -32004
	CodeToolExecError     = -32005
	CodePromptExecError   = -32006
	CodeResourceReadError = -32007
	CodeSubscriptionLimit = -32008
	CodeCancelled         = -32009
	CodeMethodNotSupport  = -32010
)

// Error is the single type behind every taxonomy row. Data should only ever
// hold diagnostic primitives (backend names, namespaced ids, timeouts),
// never stack traces or raw peer payloads, per spec.md §7.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether e is non-nil and of kind k.
func (e *Error) IsKind(k Kind) bool { return e != nil && e.Kind == k }

func newErr(kind Kind, code int, msg string, data map[string]any, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Data: data, cause: cause}
}

// As extracts a *Error from any wrapped error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func ValidationError(msg string, data map[string]any) *Error {
	return newErr(KindValidation, CodeInvalidParams, msg, data, nil)
}

func ToolNotFound(namespacedID string, suggestions []string) *Error {
	return newErr(KindToolNotFound, CodeMethodNotFound,
		fmt.Sprintf("tool not found: %s", namespacedID),
		map[string]any{"namespacedId": namespacedID, "suggestions": suggestions}, nil)
}

func PromptNotFound(namespacedID string, suggestions []string) *Error {
	return newErr(KindPromptNotFound, CodeMethodNotFound,
		fmt.Sprintf("prompt not found: %s", namespacedID),
		map[string]any{"namespacedId": namespacedID, "suggestions": suggestions}, nil)
}

func ResourceNotFound(namespacedURI string, suggestions []string) *Error {
	return newErr(KindResourceNotFound, CodeMethodNotFound,
		fmt.Sprintf("resource not found: %s", namespacedURI),
		map[string]any{"namespacedUri": namespacedURI, "suggestions": suggestions}, nil)
}

func ServerNotFound(backendName string) *Error {
	return newErr(KindServerNotFound, CodeServerNotFound,
		fmt.Sprintf("backend not found: %s", backendName),
		map[string]any{"backendName": backendName}, nil)
}

func ConnectionError(backendName string, cause error) *Error {
	return newErr(KindConnectionError, CodeConnectionError,
		fmt.Sprintf("connection error for backend %s", backendName),
		map[string]any{"backendName": backendName}, cause)
}

func CircuitOpen(backendName string) *Error {
	return newErr(KindCircuitOpen, CodeCircuitOpen,
		fmt.Sprintf("circuit open for backend %s", backendName),
		map[string]any{"backendName": backendName}, nil)
}

func RequestTimeout(backendName, namespacedID string, timeoutMs int64) *Error {
	return newErr(KindRequestTimeout, CodeRequestTimeout,
		fmt.Sprintf("request to %s timed out after %dms", namespacedID, timeoutMs),
		map[string]any{"backendName": backendName, "namespacedId": namespacedID, "timeoutMs": timeoutMs}, nil)
}

// PeerError wraps a backend's own error, preserving its code/message/data
// verbatim under one of the three execution-error kinds.
func PeerError(kind Kind, backendName, namespacedID string, peerCode int, peerMessage string, peerData any) *Error {
	code := peerCode
	if code == 0 {
		switch kind {
		case KindPromptExecutionError:
			code = CodePromptExecError
		case KindResourceReadError:
			code = CodeResourceReadError
		default:
			code = CodeToolExecError
		}
	}
	return newErr(kind, code, peerMessage, map[string]any{
		"backendName":  backendName,
		"namespacedId": namespacedID,
		"peerData":     peerData,
	}, nil)
}

func ConfigurationError(msg string, cause error) *Error {
	return newErr(KindConfigurationError, CodeInternal, msg, nil, cause)
}

func SubscriptionLimitExceeded(clientID string, limit int) *Error {
	return newErr(KindSubscriptionLimit, CodeSubscriptionLimit,
		fmt.Sprintf("subscription limit of %d exceeded", limit),
		map[string]any{"clientId": clientID, "limit": limit}, nil)
}

func InvalidRequest(msg string) *Error {
	return newErr(KindInvalidRequest, CodeInvalidRequest, msg, nil, nil)
}

func MethodNotSupported(backendName, method string) *Error {
	return newErr(KindMethodNotSupported, CodeMethodNotSupport,
		fmt.Sprintf("backend %s does not support %s", backendName, method),
		map[string]any{"backendName": backendName, "method": method, "reason": "subscribe_not_supported"}, nil)
}

func Cancelled(namespacedID string) *Error {
	return newErr(KindCancelled, CodeCancelled,
		fmt.Sprintf("request for %s cancelled", namespacedID),
		map[string]any{"namespacedId": namespacedID}, nil)
}
