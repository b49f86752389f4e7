package daemon

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
)

// systemdListeners caches the fds passed by the service manager, fetched
// once per process since activation.Listeners consumes the LISTEN_FDS
// environment on first call.
var systemdListeners, systemdListenersErr = activation.ListenersWithNames()

// listenerFor resolves a named socket address into a net.Listener,
// preferring an fd handed down by socket activation (keyed by systemd
// socket-unit name, e.g. "goblin-public.socket" -> "goblin-public") over a
// fresh net.Listen call. This lets a goblin unit file declare
// Accept=no sockets for the lock port and public HTTP surface and hand them
// to the daemon across a restart with zero dropped connections.
func listenerFor(socketName, fallbackAddr string) (net.Listener, error) {
	if systemdListenersErr == nil {
		if lns, ok := systemdListeners[socketName]; ok && len(lns) > 0 {
			return lns[0], nil
		}
	}
	ln, err := net.Listen("tcp", fallbackAddr)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", fallbackAddr, err)
	}
	return ln, nil
}
