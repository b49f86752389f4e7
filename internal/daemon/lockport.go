package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// bindLockPort binds the loopback lock-port listener. A second daemon
// attempting the same port gets a plain "address already in use" from the
// OS, which callers surface to the user as "already running" per spec.md
// §4.9.
func (d *Daemon) bindLockPort(port int) (net.Listener, error) {
	ln, err := listenerFor("goblin-lock", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("daemon: lock port %d already in use (daemon already running?): %w", port, err)
	}
	return ln, nil
}

func (d *Daemon) serveLockPort(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", d.handleLockStatus)
	mux.HandleFunc("/ping", handlePing)
	mux.HandleFunc("/health", d.handlePublicHealth)
	mux.HandleFunc("/tools", d.handleTools)
	mux.HandleFunc("/servers", d.handleServers)
	mux.HandleFunc("/stop", d.handleStop)

	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type lockStatusResponse struct {
	Status  string            `json:"status"`
	Mode    string            `json:"mode"`
	PID     int               `json:"pid"`
	Uptime  string            `json:"uptime"`
	Servers lockStatusServers `json:"servers"`
	Tools   int               `json:"tools"`
}

type lockStatusServers struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

func (d *Daemon) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	snap := d.pool.Snapshot()
	online := 0
	for _, s := range snap {
		if s.Connected {
			online++
		}
	}
	writeJSON(w, http.StatusOK, lockStatusResponse{
		Status: "running",
		Mode:   string(d.cfg.Gateway.Transport),
		PID:    os.Getpid(),
		Uptime: time.Since(d.startTime).String(),
		Servers: lockStatusServers{
			Total:   len(d.cfg.Servers),
			Online:  online,
			Offline: len(d.cfg.Servers) - online,
		},
		Tools: len(d.reg.AllTools()),
	})
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (d *Daemon) handleTools(w http.ResponseWriter, r *http.Request) {
	serverFilter := r.URL.Query().Get("server")
	tools := d.reg.AllTools()
	type toolOut struct {
		NamespacedID string `json:"namespacedId"`
		Server       string `json:"server"`
		Name         string `json:"name"`
	}
	out := make([]toolOut, 0, len(tools))
	for _, t := range tools {
		if serverFilter != "" && t.BackendName != serverFilter {
			continue
		}
		out = append(out, toolOut{NamespacedID: t.NamespacedID, Server: t.BackendName, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) handleServers(w http.ResponseWriter, r *http.Request) {
	snap := d.pool.Snapshot()
	byName := make(map[string]bool, len(snap))
	for _, s := range snap {
		byName[s.BackendName] = s.Connected
	}
	type serverOut struct {
		Name      string `json:"name"`
		Enabled   bool   `json:"enabled"`
		Connected bool   `json:"connected"`
	}
	out := make([]serverOut, 0, len(d.cfg.Servers))
	for _, b := range d.cfg.Servers {
		out = append(out, serverOut{Name: b.Name, Enabled: b.Enabled, Connected: byName[b.Name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	go d.RequestShutdown()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
