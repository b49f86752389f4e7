package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestListenerForFallsBackToTCP exercises the non-systemd-activated path:
// in a normal test process LISTEN_FDS is unset, so listenerFor must fall
// back to a plain net.Listen on the given address.
func TestListenerForFallsBackToTCP(t *testing.T) {
	ln, err := listenerFor("goblin-test-unused-socket-name", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	assert.NotEmpty(t, ln.Addr().String())
}

func TestListenerForRejectsUnreachableAddress(t *testing.T) {
	_, err := listenerFor("goblin-test-unused-socket-name", "not-a-valid-address")
	assert.Error(t, err)
}
