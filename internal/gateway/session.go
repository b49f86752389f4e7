package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// channelState is a client channel's position in the PreInit -> Ready ->
// Closed state machine of spec.md §4.8.
type channelState int

const (
	statePreInit channelState = iota
	stateReady
	stateClosed
)

// sender writes one complete outbound message (a response or a
// notification) to a client channel. Implementations: the stdio frontend
// writes one newline-delimited JSON line; the HTTP frontend writes one SSE
// "data:" event to that session's open GET /mcp stream.
type sender func(msg []byte) error

// session is one connected client channel, stdio or HTTP/SSE alike.
type session struct {
	id   string
	send sender

	mu     sync.Mutex
	state  channelState
	cancel map[string]context.CancelFunc // request id (as string) -> cancel
}

func newSession(send sender) *session {
	return &session{
		id:     uuid.NewString(),
		send:   send,
		state:  statePreInit,
		cancel: make(map[string]context.CancelFunc),
	}
}

func (s *session) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == statePreInit {
		s.state = stateReady
	}
}

func (s *session) getState() channelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// trackRequest registers a cancel func for an in-flight request id so close
// can cancel every pending request on disconnect.
func (s *session) trackRequest(reqID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel[reqID] = cancel
}

func (s *session) untrackRequest(reqID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancel, reqID)
}

// close cancels every in-flight request and marks the session Closed. It is
// idempotent.
func (s *session) close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	cancels := s.cancel
	s.cancel = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
