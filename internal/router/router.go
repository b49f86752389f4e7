// Package router implements the Router (C6): unified dispatch for
// tools/call, prompts/get, resources/read, resources/subscribe and
// resources/unsubscribe, resolving a namespaced identifier to a live
// backend client and mapping every outcome into the gwerr taxonomy.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"goblin/internal/config"
	"goblin/internal/gwerr"
	"goblin/internal/metatool"
	"goblin/internal/pool"
	"goblin/internal/registry"
	"goblin/internal/search"
	"goblin/internal/transport"
	"goblin/pkg/logging"
)

// BackendLookup resolves a backend's current configuration snapshot. It
// returns false when the backend is unknown (e.g. removed since the
// Registry entry was cached).
type BackendLookup func(name string) (config.BackendConfig, bool)

// PoliciesLookup returns the gateway-wide request policy snapshot.
type PoliciesLookup func() config.PoliciesConfig

// Router ties the Registry, Transport Pool and Meta-tool Set together into
// the single request path every front-end handler funnels through.
type Router struct {
	reg      *registry.Registry
	pool     *pool.Pool
	meta     *metatool.Set
	backends BackendLookup
	policies PoliciesLookup
	log      *logging.Logger
}

func New(reg *registry.Registry, p *pool.Pool, meta *metatool.Set, backends BackendLookup, policies PoliciesLookup, log *logging.Logger) *Router {
	return &Router{
		reg:      reg,
		pool:     p,
		meta:     meta,
		backends: backends,
		policies: policies,
		log:      log.With("router"),
	}
}

// deadline returns min(backend.timeout, policies.defaultTimeout), per
// spec.md §4.6 step 6.
func (r *Router) deadline(cfg config.BackendConfig) time.Duration {
	def := r.policies().DefaultTimeout()
	bt := cfg.Timeout(def)
	if bt < def {
		return bt
	}
	return def
}

// CallTool dispatches a tools/call request. namespacedID may resolve to a
// meta-tool, in which case it is executed in-process and C2/C3/C1 are never
// engaged, per spec.md §4.6 step 2 and the meta-tool-precedence property.
func (r *Router) CallTool(ctx context.Context, namespacedID string, args map[string]any) (*mcp.CallToolResult, error) {
	entry, ok := r.reg.FindToolByID(namespacedID)
	if !ok {
		return nil, toolNotFound(r.reg, namespacedID)
	}
	if entry.IsLocal {
		return r.meta.Dispatch(ctx, entry.Name, args)
	}

	cfg, ok := r.backends(entry.BackendName)
	if !ok {
		return nil, gwerr.ServerNotFound(entry.BackendName)
	}

	br := r.pool.Breaker(cfg)
	tr, err := r.pool.Get(ctx, cfg, nil)
	if err != nil {
		return nil, mapConnectError(err, entry.BackendName)
	}

	ctx, cancel := context.WithTimeout(ctx, r.deadline(cfg))
	defer cancel()

	result, err := tr.CallTool(ctx, entry.Name, NormalizeArguments(args))
	if err != nil {
		return nil, r.recordAndMapError(br, cfg, entry.BackendName, namespacedID, err, gwerr.KindToolExecutionError)
	}
	if result != nil && result.IsError {
		br.RecordSuccess() // the backend answered; a tool-reported error is not infrastructural
		return nil, gwerr.PeerError(gwerr.KindToolExecutionError, entry.BackendName, namespacedID, 0, toolErrorMessage(result), nil)
	}
	br.RecordSuccess()
	return result, nil
}

func toolErrorMessage(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return tc.Text
		}
	}
	return "tool reported an error"
}

// GetPrompt dispatches a prompts/get request.
func (r *Router) GetPrompt(ctx context.Context, namespacedID string, args map[string]string) (*mcp.GetPromptResult, error) {
	entry, ok := r.reg.FindPromptByID(namespacedID)
	if !ok {
		return nil, promptNotFound(r.reg, namespacedID)
	}

	cfg, ok := r.backends(entry.BackendName)
	if !ok {
		return nil, gwerr.ServerNotFound(entry.BackendName)
	}

	br := r.pool.Breaker(cfg)
	tr, err := r.pool.Get(ctx, cfg, nil)
	if err != nil {
		return nil, mapConnectError(err, entry.BackendName)
	}

	ctx, cancel := context.WithTimeout(ctx, r.deadline(cfg))
	defer cancel()

	result, err := tr.GetPrompt(ctx, entry.Name, args)
	if err != nil {
		return nil, r.recordAndMapError(br, cfg, entry.BackendName, namespacedID, err, gwerr.KindPromptExecutionError)
	}
	br.RecordSuccess()
	return result, nil
}

// ReadResource dispatches a resources/read request. Per SPEC_FULL.md's
// open-question decision, only an exact ResourceEntry with a non-empty
// OriginalURI is readable: a namespacedUri that only matches a resource
// template's literal prefix is not reconstructible and returns
// ResourceNotFound.
func (r *Router) ReadResource(ctx context.Context, namespacedURI string) (*mcp.ReadResourceResult, error) {
	entry, ok := r.resolveReadableResource(namespacedURI)
	if !ok {
		return nil, resourceNotFound(r.reg, namespacedURI)
	}

	cfg, ok := r.backends(entry.BackendName)
	if !ok {
		return nil, gwerr.ServerNotFound(entry.BackendName)
	}

	br := r.pool.Breaker(cfg)
	tr, err := r.pool.Get(ctx, cfg, nil)
	if err != nil {
		return nil, mapConnectError(err, entry.BackendName)
	}

	ctx, cancel := context.WithTimeout(ctx, r.deadline(cfg))
	defer cancel()

	result, err := tr.ReadResource(ctx, entry.OriginalURI)
	if err != nil {
		return nil, r.recordAndMapError(br, cfg, entry.BackendName, namespacedURI, err, gwerr.KindResourceReadError)
	}
	br.RecordSuccess()
	return result, nil
}

func (r *Router) resolveReadableResource(namespacedURI string) (registry.ResourceEntry, bool) {
	entry, ok := r.reg.FindResourceByNamespacedURI(namespacedURI)
	if !ok || entry.OriginalURI == "" {
		return registry.ResourceEntry{}, false
	}
	return entry, true
}

// ResolveResourceBackend looks up the owning backend and original URI for a
// resources/subscribe or resources/unsubscribe request, without issuing any
// backend call; the Gateway Server uses this to decide, via the
// Subscription Manager, whether a backend call is even needed.
func (r *Router) ResolveResourceBackend(namespacedURI string) (config.BackendConfig, registry.ResourceEntry, error) {
	entry, ok := r.resolveReadableResource(namespacedURI)
	if !ok {
		return config.BackendConfig{}, registry.ResourceEntry{}, resourceNotFound(r.reg, namespacedURI)
	}
	cfg, ok := r.backends(entry.BackendName)
	if !ok {
		return config.BackendConfig{}, registry.ResourceEntry{}, gwerr.ServerNotFound(entry.BackendName)
	}
	return cfg, entry, nil
}

// SubscribeBackend issues the backend-facing resources/subscribe call for
// originalURI. The caller (Gateway Server) only invokes this for the first
// subscriber of a namespacedUri.
func (r *Router) SubscribeBackend(ctx context.Context, cfg config.BackendConfig, originalURI string) error {
	br := r.pool.Breaker(cfg)
	tr, err := r.pool.Get(ctx, cfg, nil)
	if err != nil {
		return mapConnectError(err, cfg.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, r.deadline(cfg))
	defer cancel()
	if err := tr.SubscribeResource(ctx, originalURI); err != nil {
		if errors.Is(err, transport.ErrMethodNotSupported) {
			br.RecordSuccess()
			return gwerr.MethodNotSupported(cfg.Name, "resources/subscribe")
		}
		return r.recordAndMapError(br, cfg, cfg.Name, originalURI, err, gwerr.KindResourceReadError)
	}
	br.RecordSuccess()
	return nil
}

// UnsubscribeBackend issues the backend-facing resources/unsubscribe call.
// Called only when the last client subscriber for a namespacedUri drops.
func (r *Router) UnsubscribeBackend(ctx context.Context, cfg config.BackendConfig, originalURI string) error {
	br := r.pool.Breaker(cfg)
	tr, err := r.pool.Get(ctx, cfg, nil)
	if err != nil {
		return mapConnectError(err, cfg.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, r.deadline(cfg))
	defer cancel()
	if err := tr.UnsubscribeResource(ctx, originalURI); err != nil {
		return r.recordAndMapError(br, cfg, cfg.Name, originalURI, err, gwerr.KindResourceReadError)
	}
	br.RecordSuccess()
	return nil
}

// recordAndMapError classifies err, records the outcome against the
// backend's breaker, and maps it to the gwerr taxonomy: Timeout ->
// RequestTimeout, infrastructural -> ConnectionError, otherwise a peer
// error preserving whatever code/message/data the backend supplied.
func (r *Router) recordAndMapError(br breaker, cfg config.BackendConfig, backendName, namespacedID string, err error, peerKind gwerr.Kind) error {
	if errors.Is(err, context.DeadlineExceeded) {
		br.RecordFailure(err.Error())
		return gwerr.RequestTimeout(backendName, namespacedID, r.deadline(cfg).Milliseconds())
	}
	if errors.Is(err, context.Canceled) {
		br.RecordFailure(err.Error())
		return gwerr.Cancelled(namespacedID)
	}

	switch transport.Classify(err) {
	case transport.FailureInfrastructural:
		br.RecordFailure(err.Error())
		return gwerr.ConnectionError(backendName, err)
	default:
		br.RecordSuccess() // backend answered with its own error; it is reachable
		var pe *transport.PeerError
		if errors.As(err, &pe) {
			return gwerr.PeerError(peerKind, backendName, namespacedID, pe.Code, pe.Message, pe.Data)
		}
		return gwerr.PeerError(peerKind, backendName, namespacedID, 0, err.Error(), nil)
	}
}

// breaker is the narrow interface recordAndMapError needs from
// *circuit.Breaker, so tests can substitute a fake.
type breaker interface {
	RecordSuccess()
	RecordFailure(string)
}

func mapConnectError(err error, backendName string) error {
	if ge, ok := gwerr.As(err); ok {
		return ge
	}
	return gwerr.ConnectionError(backendName, err)
}

func toolNotFound(reg *registry.Registry, namespacedID string) error {
	return gwerr.ToolNotFound(namespacedID, suggestTools(reg, namespacedID))
}

func promptNotFound(reg *registry.Registry, namespacedID string) error {
	return gwerr.PromptNotFound(namespacedID, suggestPrompts(reg, namespacedID))
}

func resourceNotFound(reg *registry.Registry, namespacedURI string) error {
	return gwerr.ResourceNotFound(namespacedURI, suggestResources(reg, namespacedURI))
}

const suggestionLimit = 5

func suggestTools(reg *registry.Registry, query string) []string {
	tools := reg.AllTools()
	candidates := make([]search.Candidate, 0, len(tools))
	for _, t := range tools {
		candidates = append(candidates, search.Candidate{ID: t.NamespacedID, Name: t.Name, Description: t.Description})
	}
	return search.Suggest(query, candidates, suggestionLimit)
}

func suggestPrompts(reg *registry.Registry, query string) []string {
	prompts := reg.AllPrompts()
	candidates := make([]search.Candidate, 0, len(prompts))
	for _, p := range prompts {
		candidates = append(candidates, search.Candidate{ID: p.NamespacedID, Name: p.Name, Description: p.Description})
	}
	return search.Suggest(query, candidates, suggestionLimit)
}

func suggestResources(reg *registry.Registry, query string) []string {
	resources := reg.AllResources()
	candidates := make([]search.Candidate, 0, len(resources))
	for _, r := range resources {
		candidates = append(candidates, search.Candidate{ID: r.NamespacedURI, Name: r.Name, Description: r.NamespacedURI})
	}
	return search.Suggest(query, candidates, suggestionLimit)
}
