package gwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolNotFound(t *testing.T) {
	err := ToolNotFound("alpha.frobnicate", []string{"alpha.frobnicator"})

	assert.Equal(t, KindToolNotFound, err.Kind)
	assert.Equal(t, CodeMethodNotFound, err.Code)
	assert.Contains(t, err.Error(), "alpha.frobnicate")
	assert.Equal(t, []string{"alpha.frobnicator"}, err.Data["suggestions"])
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ConnectionError("alpha", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), cause.Error())
}

func TestAsExtractsFromWrappedChain(t *testing.T) {
	base := CircuitOpen("alpha")
	wrapped := fmt.Errorf("router: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
}

func TestAsFailsForForeignError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsKind(t *testing.T) {
	err := RequestTimeout("alpha", "alpha.frobnicate", 5000)

	assert.True(t, err.IsKind(KindRequestTimeout))
	assert.False(t, err.IsKind(KindCircuitOpen))

	var nilErr *Error
	assert.False(t, nilErr.IsKind(KindRequestTimeout))
}

func TestPeerErrorPreservesPeerCode(t *testing.T) {
	err := PeerError(KindToolExecutionError, "alpha", "alpha.frobnicate", -32099, "boom", map[string]any{"reason": "bad args"})

	assert.Equal(t, -32099, err.Code)
	assert.Equal(t, "boom", err.Message)
	assert.Equal(t, "alpha", err.Data["backendName"])
}

func TestPeerErrorDefaultsCodeByKind(t *testing.T) {
	tool := PeerError(KindToolExecutionError, "alpha", "alpha.x", 0, "boom", nil)
	prompt := PeerError(KindPromptExecutionError, "alpha", "alpha.x", 0, "boom", nil)
	resource := PeerError(KindResourceReadError, "alpha", "alpha.x", 0, "boom", nil)

	assert.Equal(t, CodeToolExecError, tool.Code)
	assert.Equal(t, CodePromptExecError, prompt.Code)
	assert.Equal(t, CodeResourceReadError, resource.Code)
}

func TestSubscriptionLimitExceeded(t *testing.T) {
	err := SubscriptionLimitExceeded("client-1", 100)

	assert.Equal(t, CodeSubscriptionLimit, err.Code)
	assert.Equal(t, 100, err.Data["limit"])
	assert.Equal(t, "client-1", err.Data["clientId"])
}
