// Package gateway implements the Gateway Server (C8): the front-end
// JSON-RPC 2.0 protocol over stdio and HTTP/SSE, meta-tool/tool/prompt/
// resource dispatch through the Router, and notification bridging from the
// Registry and Subscription Manager back to connected clients.
//
// The high-level mcp-go/server package is deliberately not used here: it
// turns every handler error into a successful CallToolResult{IsError:true}
// response, but this gateway's error taxonomy (ServerNotFound, CircuitOpen,
// RequestTimeout, …) requires genuine JSON-RPC error objects with their own
// numeric codes across tools/call, prompts/get and resources/read alike.
package gateway

import "encoding/json"

// rpcRequest is an inbound JSON-RPC 2.0 request or notification. A
// notification has no Id.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r rpcRequest) isNotification() bool { return len(r.ID) == 0 }

// rpcResponse is an outbound JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// rpcNotification is an outbound JSON-RPC 2.0 notification (no id).
type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func newNotification(method string, params any) rpcNotification {
	return rpcNotification{JSONRPC: "2.0", Method: method, Params: params}
}

func successResponse(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data map[string]any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

// Protocol/method name constants, matching the MCP wire methods this
// gateway speaks to front-end clients.
const (
	methodInitialize           = "initialize"
	methodInitialized          = "notifications/initialized"
	methodPing                 = "ping"
	methodToolsList            = "tools/list"
	methodToolsCall            = "tools/call"
	methodPromptsList          = "prompts/list"
	methodPromptsGet           = "prompts/get"
	methodResourcesList        = "resources/list"
	methodResourcesRead        = "resources/read"
	methodResourcesSubscribe   = "resources/subscribe"
	methodResourcesUnsubscribe = "resources/unsubscribe"
	methodResourceTemplatesList = "resources/templates/list"

	notificationToolsListChanged     = "notifications/tools/list_changed"
	notificationPromptsListChanged   = "notifications/prompts/list_changed"
	notificationResourcesListChanged = "notifications/resources/list_changed"
	notificationResourceUpdated      = "notifications/resources/updated"
)
