package registry

import "github.com/mark3labs/mcp-go/mcp"

// ToolEntry is one namespaced tool in the Registry's catalog.
type ToolEntry struct {
	NamespacedID string
	BackendName  string
	Name         string
	Description  string
	InputSchema  mcp.ToolInputSchema
	IsLocal      bool
}

// PromptEntry is one namespaced prompt.
type PromptEntry struct {
	NamespacedID string
	BackendName  string
	Name         string
	Description  string
	Arguments    []mcp.PromptArgument
	IsLocal      bool
}

// ResourceEntry is one namespaced resource. OriginalURI is never exposed to
// clients; only NamespacedURI ever crosses the wire.
type ResourceEntry struct {
	NamespacedURI string
	OriginalURI   string
	BackendName   string
	Name          string
	MimeType      string
	Size          int64
	HasSize       bool
}

// ResourceTemplateEntry is one namespaced resource template.
type ResourceTemplateEntry struct {
	NamespacedKey string
	URITemplate   string
	BackendName   string
	Name          string
	Description   string
}
