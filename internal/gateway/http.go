package gateway

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// sessionIDHeader is the header both directions of the HTTP frontend use to
// correlate a POST /mcp request with its GET /mcp notification stream, per
// spec.md §6.
const sessionIDHeader = "Mcp-Session-Id"

// httpSessionTimeout closes an HTTP session's SSE stream if no POST/GET
// activity is observed for this long, reclaiming the session map entry.
const httpSessionTimeout = 30 * time.Minute

// httpSession pairs a gateway session with the plumbing needed to deliver
// server-pushed notifications onto its open SSE stream: a stream may not be
// open yet (a session is created by initialize, the stream by the first
// GET), so sends queue in a small buffered channel until a stream attaches.
type httpSession struct {
	*session
	events     chan []byte
	lastActive time.Time
}

// HTTPHandler implements the HTTP MCP frontend (POST /mcp + GET /mcp SSE)
// described in spec.md §6, backed by the same Server used by the stdio
// frontend.
type HTTPHandler struct {
	srv *Server

	mu       sync.Mutex
	sessions map[string]*httpSession
}

func NewHTTPHandler(srv *Server) *HTTPHandler {
	h := &HTTPHandler{srv: srv, sessions: make(map[string]*httpSession)}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.servePost(w, r)
	case http.MethodGet:
		h.serveStream(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) servePost(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0, 4096)
	buf := bytes.NewBuffer(body)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	hs, _ := h.getOrCreateSession(sessionID)

	resp := h.srv.HandleMessage(r.Context(), hs.session, buf.Bytes())

	w.Header().Set(sessionIDHeader, hs.id)
	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (h *HTTPHandler) serveStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		http.Error(w, fmt.Sprintf("missing %s header", sessionIDHeader), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	hs, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-hs.events:
			if !ok {
				return
			}
			h.touch(sessionID)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) getOrCreateSession(sessionID string) (*httpSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionID != "" {
		if hs, ok := h.sessions[sessionID]; ok {
			hs.lastActive = time.Now()
			return hs, false
		}
	}

	events := make(chan []byte, 32)
	gwSession := h.srv.Attach(func(msg []byte) error {
		select {
		case events <- msg:
			return nil
		default:
			return fmt.Errorf("notification stream backlog full")
		}
	})
	hs := &httpSession{session: gwSession, events: events, lastActive: time.Now()}
	h.sessions[hs.id] = hs
	return hs, true
}

func (h *HTTPHandler) touch(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hs, ok := h.sessions[sessionID]; ok {
		hs.lastActive = time.Now()
	}
}

// ReapIdleSessions detaches and drops HTTP sessions that have seen no
// POST/GET activity for longer than httpSessionTimeout. Meant to be called
// periodically by the Daemon.
func (h *HTTPHandler) ReapIdleSessions() {
	h.mu.Lock()
	var stale []*httpSession
	cutoff := time.Now().Add(-httpSessionTimeout)
	for id, hs := range h.sessions {
		if hs.lastActive.Before(cutoff) {
			stale = append(stale, hs)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, hs := range stale {
		close(hs.events)
		h.srv.Detach(hs.session)
	}
}
