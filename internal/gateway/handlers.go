package gateway

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"goblin/internal/gwerr"
)

// protocolVersion is the MCP wire version this gateway negotiates with
// front-end clients, independent of whatever version each backend speaks.
const protocolVersion = "2024-11-05"

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ClientInfo      mcp.Implementation     `json:"clientInfo"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities"`
}

type serverCapabilities struct {
	Tools     *listChangedCapability `json:"tools,omitempty"`
	Prompts   *listChangedCapability `json:"prompts,omitempty"`
	Resources *resourceCapability    `json:"resources,omitempty"`
}

type listChangedCapability struct {
	ListChanged bool `json:"listChanged"`
}

type resourceCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type initializeResult struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    serverCapabilities  `json:"capabilities"`
	ServerInfo      mcp.Implementation  `json:"serverInfo"`
}

func (srv *Server) handleInitialize(s *session, req rpcRequest) (any, *rpcError) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid initialize params"}
		}
	}

	s.markReady()

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools:     &listChangedCapability{ListChanged: true},
			Prompts:   &listChangedCapability{ListChanged: true},
			Resources: &resourceCapability{Subscribe: true, ListChanged: true},
		},
		ServerInfo: mcp.Implementation{
			Name:    "goblin",
			Version: "dev",
		},
	}, nil
}

type toolsListResult struct {
	Tools []toolListEntry `json:"tools"`
}

type toolListEntry struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	InputSchema mcp.ToolInputSchema `json:"inputSchema"`
}

func (srv *Server) handleToolsList(req rpcRequest) (any, *rpcError) {
	entries := srv.reg.AllTools()
	out := make([]toolListEntry, 0, len(entries))
	for _, t := range entries {
		out = append(out, toolListEntry{Name: t.NamespacedID, Description: t.Description, InputSchema: t.InputSchema})
	}
	return toolsListResult{Tools: out}, nil
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (srv *Server) handleToolsCall(ctx context.Context, req rpcRequest) (any, *rpcError) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid tools/call params"}
	}
	result, err := srv.rt.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

type promptsListResult struct {
	Prompts []promptListEntry `json:"prompts"`
}

type promptListEntry struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Arguments   []mcp.PromptArgument  `json:"arguments,omitempty"`
}

func (srv *Server) handlePromptsList(req rpcRequest) (any, *rpcError) {
	entries := srv.reg.AllPrompts()
	out := make([]promptListEntry, 0, len(entries))
	for _, p := range entries {
		out = append(out, promptListEntry{Name: p.NamespacedID, Description: p.Description, Arguments: p.Arguments})
	}
	return promptsListResult{Prompts: out}, nil
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (srv *Server) handlePromptsGet(ctx context.Context, req rpcRequest) (any, *rpcError) {
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid prompts/get params"}
	}
	result, err := srv.rt.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

type resourcesListResult struct {
	Resources []resourceListEntry `json:"resources"`
}

type resourceListEntry struct {
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func (srv *Server) handleResourcesList(req rpcRequest) (any, *rpcError) {
	entries := srv.reg.AllResources()
	out := make([]resourceListEntry, 0, len(entries))
	for _, r := range entries {
		out = append(out, resourceListEntry{URI: r.NamespacedURI, Name: r.Name, MimeType: r.MimeType})
	}
	return resourcesListResult{Resources: out}, nil
}

type resourceTemplatesListResult struct {
	ResourceTemplates []resourceTemplateListEntry `json:"resourceTemplates"`
}

type resourceTemplateListEntry struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (srv *Server) handleResourceTemplatesList(req rpcRequest) (any, *rpcError) {
	entries := srv.reg.AllResourceTemplates()
	out := make([]resourceTemplateListEntry, 0, len(entries))
	for _, t := range entries {
		out = append(out, resourceTemplateListEntry{URITemplate: t.NamespacedKey, Name: t.Name, Description: t.Description})
	}
	return resourceTemplatesListResult{ResourceTemplates: out}, nil
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (srv *Server) handleResourcesRead(ctx context.Context, req rpcRequest) (any, *rpcError) {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid resources/read params"}
	}
	result, err := srv.rt.ReadResource(ctx, params.URI)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

type resourcesSubscribeParams struct {
	URI string `json:"uri"`
}

// handleResourcesSubscribe implements the "first subscriber wins" rule: the
// backend-facing subscribe call is issued only when this client is the
// first to subscribe to namespacedUri; otherwise the C5 index alone is
// updated and the call returns success immediately.
func (srv *Server) handleResourcesSubscribe(ctx context.Context, s *session, req rpcRequest) (any, *rpcError) {
	var params resourcesSubscribeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid resources/subscribe params"}
	}

	cfg, entry, err := srv.rt.ResolveResourceBackend(params.URI)
	if err != nil {
		return nil, toRPCError(err)
	}

	_, firstForURI, err := srv.subs.Subscribe(s.id, params.URI, entry.BackendName)
	if err != nil {
		return nil, toRPCError(err)
	}
	if !firstForURI {
		return struct{}{}, nil
	}

	if err := srv.rt.SubscribeBackend(ctx, cfg, entry.OriginalURI); err != nil {
		srv.subs.Unsubscribe(s.id, params.URI)
		return nil, toRPCError(err)
	}
	return struct{}{}, nil
}

type resourcesUnsubscribeParams struct {
	URI string `json:"uri"`
}

func (srv *Server) handleResourcesUnsubscribe(ctx context.Context, s *session, req rpcRequest) (any, *rpcError) {
	var params resourcesUnsubscribeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: gwerr.CodeInvalidParams, Message: "invalid resources/unsubscribe params"}
	}

	existed, lastSubscriber := srv.subs.Unsubscribe(s.id, params.URI)
	if !existed || !lastSubscriber {
		return struct{}{}, nil
	}

	cfg, entry, err := srv.rt.ResolveResourceBackend(params.URI)
	if err != nil {
		// the resource disappeared from the catalog between subscribe and
		// unsubscribe; the client-side state is already clean, so this is not
		// an error from the caller's perspective.
		return struct{}{}, nil
	}
	if err := srv.rt.UnsubscribeBackend(ctx, cfg, entry.OriginalURI); err != nil {
		return nil, toRPCError(err)
	}
	return struct{}{}, nil
}
