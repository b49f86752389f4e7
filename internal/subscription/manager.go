// Package subscription implements the Subscription Manager (C5): an
// in-memory bidirectional index of (clientId, namespacedUri) subscriptions,
// per-client limits, and fan-out lookup.
package subscription

import (
	"sync"
	"time"

	"goblin/internal/gwerr"
	"goblin/pkg/logging"
)

// Subscription records one client's interest in one namespaced resource.
type Subscription struct {
	ClientID      string
	NamespacedURI string
	BackendName   string
	SubscribedAt  time.Time
}

// Manager owns the bidirectional index. All operations hold a single mutex
// briefly; none of them block on backend I/O. Callers issue the backend
// subscribe/unsubscribe call themselves and only update the index on
// success.
type Manager struct {
	log                       *logging.Logger
	maxSubscriptionsPerClient int

	mu            sync.Mutex
	byURI         map[string]map[string]struct{} // uri -> clientIds
	byClient      map[string]map[string]struct{} // clientId -> uris
	subscriptions map[string]Subscription        // "clientId\x00uri" -> Subscription
}

// New creates a Manager. maxPerClient <= 0 means unlimited.
func New(log *logging.Logger, maxPerClient int) *Manager {
	return &Manager{
		log:                       log.With("subscription"),
		maxSubscriptionsPerClient: maxPerClient,
		byURI:                     make(map[string]map[string]struct{}),
		byClient:                  make(map[string]map[string]struct{}),
		subscriptions:             make(map[string]Subscription),
	}
}

func key(clientID, uri string) string { return clientID + "\x00" + uri }

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Subscribe records a subscription, idempotently. It returns
// (subscription, firstForURI, error). firstForURI tells the caller whether
// this call is the one that must reach the backend, per the "first
// subscriber wins" rule enforced one level up in the Gateway Server: it is
// true only when namespacedURI had no subscriber at all before this call,
// not merely when this (clientID, namespacedURI) pair is new. A second
// client subscribing to a uri another client already holds gets
// firstForURI=false, same as a client re-subscribing to its own uri.
func (m *Manager) Subscribe(clientID, namespacedURI, backendName string) (Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(clientID, namespacedURI)
	if existing, ok := m.subscriptions[k]; ok {
		return existing, false, nil
	}

	if m.maxSubscriptionsPerClient > 0 {
		if len(m.byClient[clientID]) >= m.maxSubscriptionsPerClient {
			return Subscription{}, false, gwerr.SubscriptionLimitExceeded(clientID, m.maxSubscriptionsPerClient)
		}
	}

	firstForURI := len(m.byURI[namespacedURI]) == 0

	sub := Subscription{
		ClientID:      clientID,
		NamespacedURI: namespacedURI,
		BackendName:   backendName,
		SubscribedAt:  nowFunc(),
	}
	m.subscriptions[k] = sub

	if m.byURI[namespacedURI] == nil {
		m.byURI[namespacedURI] = make(map[string]struct{})
	}
	m.byURI[namespacedURI][clientID] = struct{}{}

	if m.byClient[clientID] == nil {
		m.byClient[clientID] = make(map[string]struct{})
	}
	m.byClient[clientID][namespacedURI] = struct{}{}

	return sub, firstForURI, nil
}

// Unsubscribe removes one subscription. It returns whether it existed and,
// separately, whether the uri has no remaining subscribers at all (the
// caller uses that to decide whether to issue the backend unsubscribe).
func (m *Manager) Unsubscribe(clientID, namespacedURI string) (existed bool, lastSubscriber bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribeLocked(clientID, namespacedURI)
}

func (m *Manager) unsubscribeLocked(clientID, namespacedURI string) (existed bool, lastSubscriber bool) {
	k := key(clientID, namespacedURI)
	if _, ok := m.subscriptions[k]; !ok {
		return false, false
	}
	delete(m.subscriptions, k)

	if set, ok := m.byURI[namespacedURI]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(m.byURI, namespacedURI)
			lastSubscriber = true
		}
	} else {
		lastSubscriber = true
	}

	if set, ok := m.byClient[clientID]; ok {
		delete(set, namespacedURI)
		if len(set) == 0 {
			delete(m.byClient, clientID)
		}
	}

	return true, lastSubscriber
}

// GetSubscribers returns a snapshot of clientIds subscribed to uri, taken at
// call time. Subscribers added after this call are not part of it; this is
// what gives fan-out its "subscribers at event time" semantics when the
// caller snapshots right as a backend notification arrives.
func (m *Manager) GetSubscribers(namespacedURI string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byURI[namespacedURI]
	out := make([]string, 0, len(set))
	for clientID := range set {
		out = append(out, clientID)
	}
	return out
}

// GetClientSubscriptions returns every uri a client currently subscribes to.
func (m *Manager) GetClientSubscriptions(clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byClient[clientID]
	out := make([]string, 0, len(set))
	for uri := range set {
		out = append(out, uri)
	}
	return out
}

// HasSubscribers reports whether any client currently subscribes to uri.
func (m *Manager) HasSubscribers(namespacedURI string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byURI[namespacedURI]) > 0
}

// RemovedSubscription pairs a uri with whether it lost its last subscriber,
// returned in bulk by CleanupClient so the caller can batch backend
// unsubscribe calls.
type RemovedSubscription struct {
	NamespacedURI  string
	BackendName    string
	LastSubscriber bool
}

// CleanupClient removes every subscription owned by clientID, as required
// on disconnect. The caller uses the returned slice to issue backend
// resources/unsubscribe for every uri whose subscriber set became empty.
func (m *Manager) CleanupClient(clientID string) []RemovedSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	uris := make([]string, 0, len(m.byClient[clientID]))
	for uri := range m.byClient[clientID] {
		uris = append(uris, uri)
	}

	out := make([]RemovedSubscription, 0, len(uris))
	for _, uri := range uris {
		k := key(clientID, uri)
		sub := m.subscriptions[k]
		_, last := m.unsubscribeLocked(clientID, uri)
		out = append(out, RemovedSubscription{NamespacedURI: uri, BackendName: sub.BackendName, LastSubscriber: last})
	}
	return out
}
