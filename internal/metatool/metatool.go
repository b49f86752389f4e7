package metatool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"goblin/internal/config"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/internal/search"
	"goblin/pkg/logging"
)

// BackendConfigProvider returns the gateway's current backend configuration
// snapshot, used so health can report on backends that exist in config but
// have never connected (and so never got a circuit breaker slot until the
// Router's first dispatch attempt).
type BackendConfigProvider func() []config.BackendConfig

// Set owns every meta-tool's registration and in-process dispatch. The
// Router calls Dispatch directly for any namespacedId marked IsLocal in the
// Registry; it never goes through C3/C1, per spec.md §4.8 rule 8.
type Set struct {
	reg       *registry.Registry
	pool      *pool.Pool
	backends  BackendConfigProvider
	startTime time.Time
	log       *logging.Logger

	validators map[string]*compiledValidator
}

// New builds the meta-tool set. Call Register to publish the tools into reg.
func New(reg *registry.Registry, p *pool.Pool, backends BackendConfigProvider, log *logging.Logger, startTime time.Time) *Set {
	return &Set{
		reg:        reg,
		pool:       p,
		backends:   backends,
		startTime:  startTime,
		log:        log.With("metatool"),
		validators: make(map[string]*compiledValidator),
	}
}

type definition struct {
	name        string
	description string
	schema      mcp.ToolInputSchema
}

func definitions() []definition {
	return []definition{
		{"health", "Report per-backend connectivity, circuit state, and catalog size.", objectSchema(nil, map[string]any{})},
		{"catalog_list", "List every tool across all backends as compact cards.", objectSchema(nil, map[string]any{})},
		{"catalog_search", "Rank tools by a fuzzy match against a query string.", objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("Search text matched against tool name and description"),
		})},
		{"describe_tool", "Return a tool's full input schema and description.", objectSchema([]string{"name"}, map[string]any{
			"name": stringProp("Namespaced tool id, e.g. backend_toolName"),
		})},
		{"catalog_prompts", "List every prompt across all backends as compact cards.", objectSchema(nil, map[string]any{})},
		{"describe_prompt", "Return a prompt's full argument list and description.", objectSchema([]string{"name"}, map[string]any{
			"name": stringProp("Namespaced prompt id, e.g. backend_promptName"),
		})},
		{"catalog_resources", "List resources, optionally filtered by backend and MIME type.", objectSchema(nil, map[string]any{
			"serverId": stringProp("Restrict to one backend name"),
			"mimeType": stringProp("Restrict to one MIME type"),
		})},
		{"describe_resource", "Return one resource's full metadata by namespaced URI.", objectSchema([]string{"uri"}, map[string]any{
			"uri": stringProp("Namespaced resource URI"),
		})},
		{"search_resources", "Rank resources by a fuzzy match against a query string.", objectSchema([]string{"query"}, map[string]any{
			"query":    stringProp("Search text matched against resource name and URI"),
			"mimeType": stringProp("Restrict to one MIME type"),
		})},
		{"catalog_resource_templates", "List resource templates, optionally filtered by backend.", objectSchema(nil, map[string]any{
			"serverId": stringProp("Restrict to one backend name"),
		})},
	}
}

// Register compiles every meta-tool's schema and publishes it into the
// Registry as a local (IsLocal=true) ToolEntry, bypassing namespacing:
// meta-tools are addressed by their bare name.
func (s *Set) Register() error {
	for _, d := range definitions() {
		v, err := compileSchema(d.name, d.schema)
		if err != nil {
			return fmt.Errorf("metatool: %w", err)
		}
		s.validators[d.name] = v
		s.reg.RegisterLocalTool(registry.ToolEntry{
			NamespacedID: d.name,
			BackendName:  "",
			Name:         d.name,
			Description:  d.description,
			InputSchema:  d.schema,
			IsLocal:      true,
		})
	}
	return nil
}

// Dispatch runs one meta-tool call in-process. name is the tool's bare name
// (meta-tools are never namespaced).
func (s *Set) Dispatch(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if v, ok := s.validators[name]; ok {
		if err := v.validate(name, args); err != nil {
			return nil, err
		}
	}

	switch name {
	case "health":
		return s.health(ctx)
	case "catalog_list":
		return s.catalogList(ctx)
	case "catalog_search":
		return s.catalogSearch(ctx, stringArg(args, "query"))
	case "describe_tool":
		return s.describeTool(ctx, stringArg(args, "name"))
	case "catalog_prompts":
		return s.catalogPrompts(ctx)
	case "describe_prompt":
		return s.describePrompt(ctx, stringArg(args, "name"))
	case "catalog_resources":
		return s.catalogResources(ctx, stringArg(args, "serverId"), stringArg(args, "mimeType"))
	case "describe_resource":
		return s.describeResource(ctx, stringArg(args, "uri"))
	case "search_resources":
		return s.searchResources(ctx, stringArg(args, "query"), stringArg(args, "mimeType"))
	case "catalog_resource_templates":
		return s.catalogResourceTemplates(ctx, stringArg(args, "serverId"))
	default:
		return nil, fmt.Errorf("metatool: unknown tool %q", name)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func textResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("metatool: marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// backendHealth is one row of the health meta-tool's response.
type backendHealth struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Circuit   string `json:"circuitState"`
	LastError string `json:"lastError,omitempty"`
}

type healthResult struct {
	UptimeSeconds  int64           `json:"uptimeSeconds"`
	Backends       []backendHealth `json:"backends"`
	TotalTools     int             `json:"totalTools"`
	TotalPrompts   int             `json:"totalPrompts"`
	TotalResources int             `json:"totalResources"`
}

func (s *Set) health(ctx context.Context) (*mcp.CallToolResult, error) {
	snapshots := make(map[string]pool.Snapshot)
	for _, snap := range s.pool.Snapshot() {
		snapshots[snap.BackendName] = snap
	}

	var names []string
	seen := make(map[string]struct{})
	if s.backends != nil {
		for _, b := range s.backends() {
			if _, ok := seen[b.Name]; !ok {
				names = append(names, b.Name)
				seen[b.Name] = struct{}{}
			}
		}
	}
	for _, n := range s.reg.GetServerNames() {
		if _, ok := seen[n]; !ok {
			names = append(names, n)
			seen[n] = struct{}{}
		}
	}

	backends := make([]backendHealth, 0, len(names))
	for _, name := range names {
		snap, ok := snapshots[name]
		bh := backendHealth{Name: name}
		if ok {
			bh.Connected = snap.Connected
			bh.Circuit = string(snap.Circuit.State)
			bh.LastError = snap.Circuit.LastError
		} else {
			bh.Circuit = "CLOSED"
		}
		backends = append(backends, bh)
	}

	return textResult(healthResult{
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		Backends:       backends,
		TotalTools:     len(s.reg.AllTools()),
		TotalPrompts:   len(s.reg.AllPrompts()),
		TotalResources: len(s.reg.AllResources()),
	})
}

type toolCard struct {
	NamespacedID string `json:"namespacedId"`
	BackendName  string `json:"backendName"`
	Description  string `json:"description"`
}

func (s *Set) catalogList(ctx context.Context) (*mcp.CallToolResult, error) {
	tools := s.reg.AllTools()
	cards := make([]toolCard, 0, len(tools))
	for _, t := range tools {
		if t.IsLocal {
			continue
		}
		cards = append(cards, toolCard{NamespacedID: t.NamespacedID, BackendName: t.BackendName, Description: shortDescription(t.Description)})
	}
	return textResult(cards)
}

func (s *Set) catalogSearch(ctx context.Context, query string) (*mcp.CallToolResult, error) {
	tools := s.reg.AllTools()
	candidates := make([]search.Candidate, 0, len(tools))
	byID := make(map[string]registry.ToolEntry, len(tools))
	for _, t := range tools {
		if t.IsLocal {
			continue
		}
		candidates = append(candidates, search.Candidate{ID: t.NamespacedID, Name: t.Name, Description: t.Description})
		byID[t.NamespacedID] = t
	}
	ranked := search.Ranked(query, candidates)
	cards := make([]toolCard, 0, len(ranked))
	for _, c := range ranked {
		t := byID[c.ID]
		cards = append(cards, toolCard{NamespacedID: t.NamespacedID, BackendName: t.BackendName, Description: shortDescription(t.Description)})
	}
	return textResult(cards)
}

func (s *Set) describeTool(ctx context.Context, namespacedID string) (*mcp.CallToolResult, error) {
	t, ok := s.reg.FindToolByID(namespacedID)
	if !ok {
		return nil, toolNotFoundWithSuggestions(s.reg, namespacedID)
	}
	return textResult(t)
}

type promptCard struct {
	NamespacedID string `json:"namespacedId"`
	BackendName  string `json:"backendName"`
	Description  string `json:"description"`
}

func (s *Set) catalogPrompts(ctx context.Context) (*mcp.CallToolResult, error) {
	prompts := s.reg.AllPrompts()
	cards := make([]promptCard, 0, len(prompts))
	for _, p := range prompts {
		cards = append(cards, promptCard{NamespacedID: p.NamespacedID, BackendName: p.BackendName, Description: shortDescription(p.Description)})
	}
	return textResult(cards)
}

func (s *Set) describePrompt(ctx context.Context, namespacedID string) (*mcp.CallToolResult, error) {
	p, ok := s.reg.FindPromptByID(namespacedID)
	if !ok {
		return nil, promptNotFoundWithSuggestions(s.reg, namespacedID)
	}
	return textResult(p)
}

type resourceCard struct {
	NamespacedURI string `json:"namespacedUri"`
	BackendName   string `json:"backendName"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType,omitempty"`
}

func (s *Set) catalogResources(ctx context.Context, serverID, mimeType string) (*mcp.CallToolResult, error) {
	resources := s.reg.AllResources()
	cards := make([]resourceCard, 0, len(resources))
	for _, r := range resources {
		if serverID != "" && r.BackendName != serverID {
			continue
		}
		if mimeType != "" && r.MimeType != mimeType {
			continue
		}
		cards = append(cards, resourceCard{NamespacedURI: r.NamespacedURI, BackendName: r.BackendName, Name: r.Name, MimeType: r.MimeType})
	}
	return textResult(cards)
}

func (s *Set) describeResource(ctx context.Context, namespacedURI string) (*mcp.CallToolResult, error) {
	r, ok := s.reg.FindResourceByNamespacedURI(namespacedURI)
	if !ok {
		return nil, resourceNotFoundWithSuggestions(s.reg, namespacedURI)
	}
	return textResult(r)
}

func (s *Set) searchResources(ctx context.Context, query, mimeType string) (*mcp.CallToolResult, error) {
	resources := s.reg.AllResources()
	candidates := make([]search.Candidate, 0, len(resources))
	byID := make(map[string]registry.ResourceEntry, len(resources))
	for _, r := range resources {
		if mimeType != "" && r.MimeType != mimeType {
			continue
		}
		candidates = append(candidates, search.Candidate{ID: r.NamespacedURI, Name: r.Name, Description: r.NamespacedURI})
		byID[r.NamespacedURI] = r
	}
	ranked := search.Ranked(query, candidates)
	cards := make([]resourceCard, 0, len(ranked))
	for _, c := range ranked {
		r := byID[c.ID]
		cards = append(cards, resourceCard{NamespacedURI: r.NamespacedURI, BackendName: r.BackendName, Name: r.Name, MimeType: r.MimeType})
	}
	return textResult(cards)
}

type templateCard struct {
	NamespacedKey string `json:"namespacedKey"`
	BackendName   string `json:"backendName"`
	URITemplate   string `json:"uriTemplate"`
	Description   string `json:"description,omitempty"`
}

func (s *Set) catalogResourceTemplates(ctx context.Context, serverID string) (*mcp.CallToolResult, error) {
	templates := s.reg.AllResourceTemplates()
	cards := make([]templateCard, 0, len(templates))
	for _, t := range templates {
		if serverID != "" && t.BackendName != serverID {
			continue
		}
		cards = append(cards, templateCard{NamespacedKey: t.NamespacedKey, BackendName: t.BackendName, URITemplate: t.URITemplate, Description: shortDescription(t.Description)})
	}
	return textResult(cards)
}

// shortDescription truncates overly long descriptions for compact catalog
// cards; describe_tool/describe_prompt/describe_resource return the full
// text.
func shortDescription(d string) string {
	const max = 160
	d = strings.TrimSpace(d)
	if len(d) <= max {
		return d
	}
	return d[:max] + "…"
}
