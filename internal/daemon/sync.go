package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"goblin/internal/config"
	"goblin/internal/transport"
)

// runSyncWorkers starts one goroutine per enabled backend: an initial sync,
// a steady-state re-sync timer, and a notification handler that reacts to a
// backend-pushed list_changed by re-syncing immediately and to
// resources/updated by forwarding it to the Registry.
func (d *Daemon) runSyncWorkers(ctx context.Context) {
	done := make(chan struct{})
	active := 0
	for _, b := range d.cfg.Servers {
		if !b.Enabled {
			continue
		}
		active++
		go func(cfg config.BackendConfig) {
			defer func() { done <- struct{}{} }()
			d.runBackendSync(ctx, cfg)
		}(b)
	}
	for i := 0; i < active; i++ {
		<-done
	}
}

func (d *Daemon) runBackendSync(ctx context.Context, cfg config.BackendConfig) {
	resync := make(chan struct{}, 1)
	triggerResync := func() {
		select {
		case resync <- struct{}{}:
		default:
		}
	}

	onNotification := func(n mcp.JSONRPCNotification) {
		switch n.Method {
		case "notifications/tools/list_changed", "notifications/prompts/list_changed", "notifications/resources/list_changed":
			triggerResync()
		case "notifications/resources/updated":
			if uri, ok := extractUpdatedURI(n); ok {
				d.reg.NotifyResourceUpdated(cfg.Name, uri)
			}
		}
	}

	d.syncOnce(ctx, cfg, onNotification)

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.syncOnce(ctx, cfg, onNotification)
		case <-resync:
			d.syncOnce(ctx, cfg, onNotification)
		}
	}
}

func (d *Daemon) syncOnce(ctx context.Context, cfg config.BackendConfig, onNotification transport.NotificationHandler) {
	br := d.pool.Breaker(cfg)
	tr, err := d.pool.Get(ctx, cfg, onNotification)
	if err != nil {
		d.log.Warn("backend sync: connect failed", "backend", cfg.Name, "error", err.Error())
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, cfg.Timeout(d.cfg.Policies.DefaultTimeout()))
	defer cancel()

	if err := d.reg.Sync(syncCtx, cfg.Name, tr); err != nil {
		br.RecordFailure(err.Error())
		d.log.Warn("backend sync failed", "backend", cfg.Name, "error", err.Error())
		return
	}
	br.RecordSuccess()
}

// extractUpdatedURI pulls the "uri" field out of a resources/updated
// notification's params. mcp-go's JSONRPCNotification.Params type isn't a
// fixed struct across every notification kind, so this decodes it
// defensively via its JSON shape rather than assuming a concrete Go type.
func extractUpdatedURI(n mcp.JSONRPCNotification) (string, bool) {
	data, err := json.Marshal(n.Params)
	if err != nil {
		return "", false
	}
	var payload struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.URI == "" {
		return "", false
	}
	return payload.URI, true
}
