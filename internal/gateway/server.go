package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"goblin/internal/gwerr"
	"goblin/internal/registry"
	"goblin/internal/router"
	"goblin/internal/subscription"
	"goblin/pkg/logging"
	"goblin/pkg/metrics"
)

// Server is the Gateway Server (C8): protocol framing, request dispatch and
// notification bridging, shared by every front-end transport.
type Server struct {
	reg   *registry.Registry
	rt    *router.Router
	subs  *subscription.Manager
	log   *logging.Logger
	metrics metrics.Sink

	mu       sync.RWMutex
	sessions map[string]*session
}

func New(reg *registry.Registry, rt *router.Router, subs *subscription.Manager, log *logging.Logger, sink metrics.Sink) *Server {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Server{
		reg:      reg,
		rt:       rt,
		subs:     subs,
		log:      log.With("gateway"),
		metrics:  sink,
		sessions: make(map[string]*session),
	}
}

// Attach registers a new client channel and returns its session, used by
// each frontend (stdio, HTTP) when a new channel is established.
func (srv *Server) Attach(send sender) *session {
	s := newSession(send)
	srv.mu.Lock()
	srv.sessions[s.id] = s
	srv.mu.Unlock()
	srv.metrics.SetGauge("goblin_client_sessions", nil, float64(srv.sessionCount()))
	return s
}

func (srv *Server) sessionCount() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.sessions)
}

// Detach closes a session, cancels its in-flight requests, and issues
// backend unsubscribes for every uri it was the last subscriber of.
func (srv *Server) Detach(s *session) {
	s.close()

	srv.mu.Lock()
	delete(srv.sessions, s.id)
	srv.mu.Unlock()
	srv.metrics.SetGauge("goblin_client_sessions", nil, float64(srv.sessionCount()))

	removed := srv.subs.CleanupClient(s.id)
	if len(removed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range removed {
		if !r.LastSubscriber {
			continue
		}
		cfg, entry, err := srv.rt.ResolveResourceBackend(r.NamespacedURI)
		if err != nil {
			continue
		}
		if err := srv.rt.UnsubscribeBackend(ctx, cfg, entry.OriginalURI); err != nil {
			srv.log.Warn("backend unsubscribe on disconnect failed", "uri", r.NamespacedURI, "error", err.Error())
		}
	}
}

// HandleMessage processes one inbound JSON-RPC message and returns the
// encoded response, or nil if raw was a notification (no response is ever
// sent for a notification, even an unrecognized one).
func (srv *Server) HandleMessage(ctx context.Context, s *session, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeResponse(errorResponse(nil, gwerr.CodeInvalidRequest, "invalid JSON-RPC message", nil))
	}
	if req.isNotification() {
		srv.handleClientNotification(req)
		return nil
	}

	if s.getState() == statePreInit && req.Method != methodInitialize && req.Method != methodPing {
		return encodeResponse(errorResponse(req.ID, gwerr.CodeInvalidRequest, "channel not initialized", nil))
	}

	reqCtx, cancel := context.WithCancel(ctx)
	reqKey := string(req.ID)
	s.trackRequest(reqKey, cancel)
	defer func() {
		s.untrackRequest(reqKey)
		cancel()
	}()

	result, rpcErr := srv.dispatch(reqCtx, s, req)
	if rpcErr != nil {
		return encodeResponse(errorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data))
	}
	return encodeResponse(successResponse(req.ID, result))
}

func (srv *Server) handleClientNotification(req rpcRequest) {
	switch req.Method {
	case methodInitialized:
		// acknowledged implicitly; no state change required beyond initialize's Ready transition.
	default:
		srv.log.Debug("unhandled client notification", "method", req.Method)
	}
}

func encodeResponse(resp rpcResponse) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Marshal failure here means resp.Result itself is not serializable,
		// a programming error in a handler; fall back to a bare internal error.
		fallback, _ := json.Marshal(errorResponse(resp.ID, gwerr.CodeInternal, "internal error encoding response", nil))
		return fallback
	}
	return b
}

func (srv *Server) dispatch(ctx context.Context, s *session, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case methodInitialize:
		return srv.handleInitialize(s, req)
	case methodPing:
		return struct{}{}, nil
	case methodToolsList:
		return srv.handleToolsList(req)
	case methodToolsCall:
		return srv.handleToolsCall(ctx, req)
	case methodPromptsList:
		return srv.handlePromptsList(req)
	case methodPromptsGet:
		return srv.handlePromptsGet(ctx, req)
	case methodResourcesList:
		return srv.handleResourcesList(req)
	case methodResourcesRead:
		return srv.handleResourcesRead(ctx, req)
	case methodResourceTemplatesList:
		return srv.handleResourceTemplatesList(req)
	case methodResourcesSubscribe:
		return srv.handleResourcesSubscribe(ctx, s, req)
	case methodResourcesUnsubscribe:
		return srv.handleResourcesUnsubscribe(ctx, s, req)
	default:
		return nil, &rpcError{Code: gwerr.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

// toRPCError converts any error into the wire {code,message,data} shape: a
// *gwerr.Error is unpacked directly, anything else becomes an opaque
// internal error (never a stack trace, per spec.md §7).
func toRPCError(err error) *rpcError {
	if err == nil {
		return nil
	}
	if ge, ok := gwerr.As(err); ok {
		return &rpcError{Code: ge.Code, Message: ge.Message, Data: ge.Data}
	}
	return &rpcError{Code: gwerr.CodeInternal, Message: "internal error"}
}
