package gateway

import (
	"context"
	"encoding/json"
	"time"

	"goblin/internal/registry"
)

// listChangedDebounce bounds how long a burst of same-category change
// events is coalesced into a single outbound notification, per spec.md §5's
// "bounded delay" requirement.
const listChangedDebounce = 200 * time.Millisecond

// RunNotificationBridge drains the Registry's change and resource-update
// channels for the lifetime of ctx, translating them into outbound
// notifications on every connected session. It is meant to run in its own
// goroutine, started once by the Daemon alongside the rest of C8.
func (srv *Server) RunNotificationBridge(ctx context.Context) {
	pending := make(map[registry.Category]bool)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	flush := func() {
		for category, dirty := range pending {
			if !dirty {
				continue
			}
			pending[category] = false
			srv.broadcastListChanged(category)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-srv.reg.Changes():
			if !ok {
				return
			}
			pending[ev.Category] = true
			if !timerArmed {
				timer.Reset(listChangedDebounce)
				timerArmed = true
			}
		case <-timer.C:
			timerArmed = false
			flush()
		case upd, ok := <-srv.reg.ResourceUpdates():
			if !ok {
				return
			}
			srv.broadcastResourceUpdated(upd)
		}
	}
}

func (srv *Server) broadcastListChanged(category registry.Category) {
	method, ok := listChangedMethod(category)
	if !ok {
		return
	}
	msg := encodeNotification(newNotification(method, nil))
	srv.forEachSession(func(s *session) {
		_ = s.send(msg)
	})
}

func listChangedMethod(category registry.Category) (string, bool) {
	switch category {
	case registry.CategoryTools:
		return notificationToolsListChanged, true
	case registry.CategoryPrompts:
		return notificationPromptsListChanged, true
	case registry.CategoryResources:
		return notificationResourcesListChanged, true
	default:
		return "", false
	}
}

type resourceUpdatedParams struct {
	URI string `json:"uri"`
}

func (srv *Server) broadcastResourceUpdated(upd registry.ResourceUpdated) {
	subscribers := srv.subs.GetSubscribers(upd.NamespacedURI)
	if len(subscribers) == 0 {
		return
	}
	msg := encodeNotification(newNotification(notificationResourceUpdated, resourceUpdatedParams{URI: upd.NamespacedURI}))

	wanted := make(map[string]struct{}, len(subscribers))
	for _, id := range subscribers {
		wanted[id] = struct{}{}
	}
	srv.forEachSession(func(s *session) {
		if _, ok := wanted[s.id]; ok {
			_ = s.send(msg)
		}
	})
}

func (srv *Server) forEachSession(fn func(*session)) {
	srv.mu.RLock()
	sessions := make([]*session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}

func encodeNotification(n rpcNotification) []byte {
	b, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	return b
}
