// Package registry implements the Registry (C4): namespaced catalogs of
// tools, prompts, resources and resource templates across every backend,
// plus the per-backend sync protocol and change-event emission.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"goblin/internal/transport"
	"goblin/pkg/logging"
	"goblin/pkg/metrics"
)

// Category identifies which flat list a change event or sync pass concerns.
type Category string

const (
	CategoryTools     Category = "tools"
	CategoryPrompts   Category = "prompts"
	CategoryResources Category = "resources"
)

// ChangeEvent is emitted whenever a catalog category mutates.
type ChangeEvent struct {
	Category    Category
	BackendName string
}

// ResourceUpdated is emitted when a backend pushes
// notifications/resources/updated for one of its original URIs.
type ResourceUpdated struct {
	BackendName   string
	OriginalURI   string
	NamespacedURI string
}

// backendIndex holds one backend's current catalog, keyed by original
// (un-namespaced) identifiers so a sync's set-difference is a plain map
// comparison.
type backendIndex struct {
	tools     map[string]ToolEntry
	prompts   map[string]PromptEntry
	resources map[string]ResourceEntry
	templates map[string]ResourceTemplateEntry
}

func newBackendIndex() *backendIndex {
	return &backendIndex{
		tools:     make(map[string]ToolEntry),
		prompts:   make(map[string]PromptEntry),
		resources: make(map[string]ResourceEntry),
		templates: make(map[string]ResourceTemplateEntry),
	}
}

// Registry owns the authoritative catalog. Reads take the RWMutex's read
// lock and always observe a consistent pre- or post-sync snapshot, never a
// partial insertion, because every sync pass rebuilds its backend's index
// under a single write-lock critical section.
type Registry struct {
	log     *logging.Logger
	metrics metrics.Sink

	mu       sync.RWMutex
	backends map[string]*backendIndex

	flatTools     []ToolEntry
	flatPrompts   []PromptEntry
	flatResources []ResourceEntry
	flatTemplates []ResourceTemplateEntry

	localTools   map[string]ToolEntry
	changeCh     chan ChangeEvent
	updatedCh    chan ResourceUpdated
}

// New creates an empty Registry. The change and resource-update channels
// each buffer 64 events; the Gateway Server is expected to drain them promptly.
func New(log *logging.Logger, sink metrics.Sink) *Registry {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Registry{
		log:        log.With("registry"),
		metrics:    sink,
		backends:   make(map[string]*backendIndex),
		localTools: make(map[string]ToolEntry),
		changeCh:   make(chan ChangeEvent, 64),
		updatedCh:  make(chan ResourceUpdated, 64),
	}
}

// Changes returns the channel of catalog change events for the Gateway
// Server to bridge into list_changed notifications.
func (r *Registry) Changes() <-chan ChangeEvent { return r.changeCh }

// ResourceUpdates returns the channel of backend resource update
// notifications, already translated to namespaced URIs.
func (r *Registry) ResourceUpdates() <-chan ResourceUpdated { return r.updatedCh }

func (r *Registry) emit(ev ChangeEvent) {
	select {
	case r.changeCh <- ev:
	default:
		// a full buffer means a burst is already pending coalescing
		// downstream; dropping a duplicate event here is harmless since the
		// final catalog state is what flat-list reads observe.
	}
}

// RegisterLocalTool adds a meta-tool (C7) to the catalog. Local tools are
// never touched by a backend sync and never removed except by explicit call.
func (r *Registry) RegisterLocalTool(entry ToolEntry) {
	entry.IsLocal = true
	r.mu.Lock()
	r.localTools[entry.NamespacedID] = entry
	r.rebuildFlatTools()
	r.mu.Unlock()
	r.emit(ChangeEvent{Category: CategoryTools, BackendName: ""})
}

// RemoveBackend atomically removes a backend and every entry it owns.
func (r *Registry) RemoveBackend(backendName string) {
	r.mu.Lock()
	_, existed := r.backends[backendName]
	delete(r.backends, backendName)
	if existed {
		r.rebuildFlatTools()
		r.rebuildFlatPrompts()
		r.rebuildFlatResources()
		r.rebuildFlatTemplates()
	}
	r.mu.Unlock()

	if existed {
		r.emit(ChangeEvent{Category: CategoryTools, BackendName: backendName})
		r.emit(ChangeEvent{Category: CategoryPrompts, BackendName: backendName})
		r.emit(ChangeEvent{Category: CategoryResources, BackendName: backendName})
	}
}

// GetServerNames returns every backend currently holding at least a sync
// pass (even an empty one counts, since Sync always creates the slot).
func (r *Registry) GetServerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolsForServer returns a backend's current tools, namespaced.
func (r *Registry) GetToolsForServer(backendName string) []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.backends[backendName]
	if !ok {
		return nil
	}
	out := make([]ToolEntry, 0, len(idx.tools))
	for _, t := range idx.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedID < out[j].NamespacedID })
	return out
}

// AllTools returns the cached flat list, stable-sorted by namespacedId so
// two successive calls with no intervening mutation are byte-identical.
func (r *Registry) AllTools() []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolEntry, len(r.flatTools))
	copy(out, r.flatTools)
	return out
}

func (r *Registry) AllPrompts() []PromptEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptEntry, len(r.flatPrompts))
	copy(out, r.flatPrompts)
	return out
}

func (r *Registry) AllResources() []ResourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceEntry, len(r.flatResources))
	copy(out, r.flatResources)
	return out
}

func (r *Registry) AllResourceTemplates() []ResourceTemplateEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceTemplateEntry, len(r.flatTemplates))
	copy(out, r.flatTemplates)
	return out
}

// FindToolByID looks up a tool by namespacedId, including meta-tools.
func (r *Registry) FindToolByID(namespacedID string) (ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.localTools[namespacedID]; ok {
		return t, true
	}
	for _, idx := range r.backends {
		for _, t := range idx.tools {
			if t.NamespacedID == namespacedID {
				return t, true
			}
		}
	}
	return ToolEntry{}, false
}

func (r *Registry) FindPromptByID(namespacedID string) (PromptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, idx := range r.backends {
		for _, p := range idx.prompts {
			if p.NamespacedID == namespacedID {
				return p, true
			}
		}
	}
	return PromptEntry{}, false
}

// FindResourceByNamespacedURI resolves an exact resource match first, then
// falls back to matching against every stored template's literal prefix
// (the portion before the first "{"), returning the backend that owns the
// matching template when no concrete resource entry exists.
func (r *Registry) FindResourceByNamespacedURI(namespacedURI string) (ResourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, idx := range r.backends {
		for _, res := range idx.resources {
			if res.NamespacedURI == namespacedURI {
				return res, true
			}
		}
	}
	for _, idx := range r.backends {
		for _, tpl := range idx.templates {
			prefix := templateLiteralPrefix(tpl.URITemplate)
			tplNamespacedPrefix := NamespaceTemplateKey(tpl.BackendName, prefix)
			if prefix != "" && len(namespacedURI) >= len(tplNamespacedPrefix) && namespacedURI[:len(tplNamespacedPrefix)] == tplNamespacedPrefix {
				return ResourceEntry{
					NamespacedURI: namespacedURI,
					BackendName:   tpl.BackendName,
					Name:          tpl.Name,
				}, true
			}
		}
	}
	return ResourceEntry{}, false
}

func templateLiteralPrefix(uriTemplate string) string {
	if idx := indexByte(uriTemplate, '{'); idx >= 0 {
		return uriTemplate[:idx]
	}
	return uriTemplate
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func (r *Registry) rebuildFlatTools() {
	var out []ToolEntry
	for _, t := range r.localTools {
		out = append(out, t)
	}
	for _, idx := range r.backends {
		for _, t := range idx.tools {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedID < out[j].NamespacedID })
	r.flatTools = out
}

func (r *Registry) rebuildFlatPrompts() {
	var out []PromptEntry
	for _, idx := range r.backends {
		for _, p := range idx.prompts {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedID < out[j].NamespacedID })
	r.flatPrompts = out
}

func (r *Registry) rebuildFlatResources() {
	var out []ResourceEntry
	for _, idx := range r.backends {
		for _, res := range idx.resources {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedURI < out[j].NamespacedURI })
	r.flatResources = out
}

func (r *Registry) rebuildFlatTemplates() {
	var out []ResourceTemplateEntry
	for _, idx := range r.backends {
		for _, t := range idx.templates {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespacedKey < out[j].NamespacedKey })
	r.flatTemplates = out
}

// Sync runs the full per-backend sync protocol: fetch every category to
// completion, diff against the previous index, and emit one change event
// per mutated category.
func (r *Registry) Sync(ctx context.Context, backendName string, tr transport.Transport) error {
	tools, err := fetchAll(ctx, tr.ListTools)
	if err != nil {
		return fmt.Errorf("sync %s tools: %w", backendName, err)
	}
	prompts, promptsSupported, err := fetchAllOptional(ctx, tr.ListPrompts)
	if err != nil {
		return fmt.Errorf("sync %s prompts: %w", backendName, err)
	}
	resources, resourcesSupported, err := fetchAllOptional(ctx, tr.ListResources)
	if err != nil {
		return fmt.Errorf("sync %s resources: %w", backendName, err)
	}
	templates, _, err := fetchAllOptional(ctx, tr.ListResourceTemplates)
	if err != nil {
		return fmt.Errorf("sync %s resource templates: %w", backendName, err)
	}

	idx := newBackendIndex()
	for _, t := range tools {
		nsID := NamespaceID(backendName, t.Name)
		idx.tools[t.Name] = ToolEntry{
			NamespacedID: nsID,
			BackendName:  backendName,
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
		}
	}
	if promptsSupported {
		for _, p := range prompts {
			nsID := NamespaceID(backendName, p.Name)
			idx.prompts[p.Name] = PromptEntry{
				NamespacedID: nsID,
				BackendName:  backendName,
				Name:         p.Name,
				Description:  p.Description,
				Arguments:    p.Arguments,
			}
		}
	}
	if resourcesSupported {
		for _, res := range resources {
			nsURI := NamespaceURI(backendName, res.URI)
			idx.resources[res.URI] = ResourceEntry{
				NamespacedURI: nsURI,
				OriginalURI:   res.URI,
				BackendName:   backendName,
				Name:          res.Name,
				MimeType:      res.MIMEType,
			}
		}
	}
	for _, tpl := range templates {
		key := NamespaceTemplateKey(backendName, tpl.URITemplate)
		idx.templates[tpl.URITemplate] = ResourceTemplateEntry{
			NamespacedKey: key,
			URITemplate:   tpl.URITemplate,
			BackendName:   backendName,
			Name:          tpl.Name,
			Description:   tpl.Description,
		}
	}

	r.mu.Lock()
	prev, hadPrev := r.backends[backendName]
	toolsChanged := !hadPrev || !toolsEqual(prev.tools, idx.tools)
	promptsChanged := !hadPrev || !promptsEqual(prev.prompts, idx.prompts)
	resourcesChanged := !hadPrev || !resourcesEqual(prev.resources, idx.resources)

	r.backends[backendName] = idx
	r.rebuildFlatTools()
	r.rebuildFlatPrompts()
	r.rebuildFlatResources()
	r.rebuildFlatTemplates()
	r.mu.Unlock()

	if toolsChanged {
		r.emit(ChangeEvent{Category: CategoryTools, BackendName: backendName})
	}
	if promptsChanged {
		r.emit(ChangeEvent{Category: CategoryPrompts, BackendName: backendName})
	}
	if resourcesChanged {
		r.emit(ChangeEvent{Category: CategoryResources, BackendName: backendName})
	}

	r.metrics.SetGauge("goblin_backend_tool_count", map[string]string{"backend": backendName}, float64(len(idx.tools)))
	return nil
}

// NotifyResourceUpdated translates a backend's original-uri update event
// into the namespaced form and publishes it for the Subscription Manager
// and Gateway Server.
func (r *Registry) NotifyResourceUpdated(backendName, originalURI string) {
	nsURI := NamespaceURI(backendName, originalURI)
	select {
	case r.updatedCh <- ResourceUpdated{BackendName: backendName, OriginalURI: originalURI, NamespacedURI: nsURI}:
	default:
	}
}

// fetchAll treats the peer's continuation cursor as opaque and always
// fetches to completion; partial lists are never stored.
func fetchAll[T any](ctx context.Context, list func(context.Context, string) (transport.Page[T], error)) ([]T, error) {
	var all []T
	cursor := ""
	for {
		page, err := list(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return all, nil
}

// fetchAllOptional treats ErrMethodNotSupported as "category is empty" for
// this backend, matching the sync protocol's non-fatal handling of
// method-not-found for prompts/resources/templates.
func fetchAllOptional[T any](ctx context.Context, list func(context.Context, string) (transport.Page[T], error)) ([]T, bool, error) {
	items, err := fetchAll(ctx, list)
	if err != nil {
		if errors.Is(err, transport.ErrMethodNotSupported) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return items, true, nil
}

func toolsEqual(a, b map[string]ToolEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || ov.Description != v.Description {
			return false
		}
	}
	return true
}

func promptsEqual(a, b map[string]PromptEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func resourcesEqual(a, b map[string]ResourceEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || ov.MimeType != v.MimeType {
			return false
		}
	}
	return true
}
