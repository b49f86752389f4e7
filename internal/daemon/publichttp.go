package daemon

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goblin/internal/config"
	"goblin/pkg/metrics"
)

// newPublicServer builds the public-facing HTTP surface: the MCP endpoint
// (when the gateway transport includes http), and the always-present
// health/ready/metrics endpoints of spec.md §6. /health is always exempt
// from auth and rate limiting, per spec.md.
func (d *Daemon) newPublicServer(opts RunOptions) *http.Server {
	mux := http.NewServeMux()

	if d.cfg.Gateway.Transport == config.GatewayHTTP || d.cfg.Gateway.Transport == config.GatewayBoth {
		mux.Handle("/mcp", d.httpFE)
	}

	mux.HandleFunc("/health", d.handlePublicHealth)
	mux.HandleFunc("/ready", d.handleReady)
	mux.Handle("/metrics", d.requireAuth(d.metricsHandler()))

	return &http.Server{
		Addr:              opts.PublicAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type healthResponse struct {
	Status  string   `json:"status"`
	Servers []string `json:"servers"`
	Uptime  string   `json:"uptime"`
}

func (d *Daemon) handlePublicHealth(w http.ResponseWriter, r *http.Request) {
	snap := d.pool.Snapshot()
	names := make([]string, 0, len(snap))
	for _, s := range snap {
		names = append(names, s.BackendName)
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Servers: names,
		Uptime:  time.Since(d.startTime).String(),
	})
}

type readyResponse struct {
	Ready    bool     `json:"ready"`
	Backends []string `json:"backends"`
}

// handleReady reflects whether every enabled backend is currently connected.
// A backend never attempted yet (sync worker hasn't run) counts as not
// ready, matching the 503 contract of spec.md §6.
func (d *Daemon) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := d.pool.Snapshot()
	connected := make(map[string]bool, len(snap))
	for _, s := range snap {
		connected[s.BackendName] = s.Connected
	}

	ready := true
	notReady := make([]string, 0)
	for _, b := range d.cfg.Servers {
		if !b.Enabled {
			continue
		}
		if !connected[b.Name] {
			ready = false
			notReady = append(notReady, b.Name)
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Ready: ready, Backends: notReady})
}

func (d *Daemon) metricsHandler() http.Handler {
	if ps, ok := d.sink.(*metrics.PromSink); ok {
		return promhttp.HandlerFor(ps.Registry(), promhttp.HandlerOpts{})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// requireAuth enforces spec.md §6's auth modes for everything except
// /health, which is never wrapped by this middleware in the first place.
func (d *Daemon) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.cfg.Auth.Mode != config.AuthAPIKey {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(d.cfg.Auth.APIKey)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
