package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHandlerPostWithoutSessionIDCreatesOne(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": "1", "method": methodInitialize, "params": map[string]any{"protocolVersion": protocolVersion}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(sessionIDHeader))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp["error"])
}

func TestHTTPHandlerPostReusesSuppliedSessionID(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	initBody, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": "1", "method": methodInitialize, "params": map[string]any{"protocolVersion": protocolVersion}})
	require.NoError(t, err)
	req1 := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(initBody))
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req1)
	sessionID := rec1.Header().Get(sessionIDHeader)
	require.NotEmpty(t, sessionID)

	listBody, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": "2", "method": methodToolsList})
	require.NoError(t, err)
	req2 := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(listBody))
	req2.Header.Set(sessionIDHeader, sessionID)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)

	assert.Equal(t, sessionID, rec2.Header().Get(sessionIDHeader))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	assert.Nil(t, resp["error"], "the reused session should already be initialized")
}

func TestHTTPHandlerPostNotificationReturns202WithNoBody(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": methodInitialized})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHTTPHandlerGetStreamRequiresSessionHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPHandlerGetStreamUnknownSessionRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(sessionIDHeader, "bogus-session")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandlerRejectsUnsupportedMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReapIdleSessionsLeavesActiveSessionAlone(t *testing.T) {
	srv, _ := newTestServer(t)
	h := NewHTTPHandler(srv)

	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": "1", "method": methodInitialize, "params": map[string]any{"protocolVersion": protocolVersion}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	sessionID := rec.Header().Get(sessionIDHeader)
	require.NotEmpty(t, sessionID)

	h.ReapIdleSessions()

	h.mu.Lock()
	_, stillThere := h.sessions[sessionID]
	h.mu.Unlock()
	assert.True(t, stillThere, "a session active moments ago must not be reaped")
}
