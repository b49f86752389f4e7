// Package pool implements the Transport Pool: at most one live Transport
// per backend, concurrent-safe get-or-create, guarded by that backend's
// circuit breaker.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"goblin/internal/circuit"
	"goblin/internal/config"
	"goblin/internal/gwerr"
	"goblin/internal/transport"
	"goblin/pkg/logging"
	"goblin/pkg/metrics"
)

// slot holds one backend's live Transport and its circuit breaker. The
// breaker outlives disconnects so failure history survives a reconnect.
type slot struct {
	backend config.BackendConfig
	breaker *circuit.Breaker
	tr      transport.Transport
}

// Pool owns every live backend Transport. The Registry and Router hold only
// backend names, never Transport handles, so backend removal stays a
// single-point operation here.
type Pool struct {
	log     *logging.Logger
	metrics metrics.Sink
	newFn   func(config.BackendConfig, *logging.Logger) (transport.Transport, error)

	mu    sync.RWMutex
	slots map[string]*slot
	group singleflight.Group
}

// New creates an empty Pool. Notification handlers are supplied per call to
// Get, which attaches one to a newly created Transport before Connect, so
// backend notifications are never missed during the connect handshake.
func New(log *logging.Logger, sink metrics.Sink) *Pool {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Pool{
		log:     log.With("pool"),
		metrics: sink,
		newFn:   transport.New,
		slots:   make(map[string]*slot),
	}
}

// SetTransportFactory overrides how new Transports are constructed; exported
// solely so other packages' tests can substitute a fake backend connection
// without a real child process or HTTP endpoint.
func (p *Pool) SetTransportFactory(fn func(config.BackendConfig, *logging.Logger) (transport.Transport, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newFn = fn
}

func (p *Pool) getOrCreateSlot(cfg config.BackendConfig) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[cfg.Name]
	if !ok {
		s = &slot{backend: cfg, breaker: circuit.New(cfg.Name, circuit.DefaultConfig)}
		p.slots[cfg.Name] = s
	}
	return s
}

// Breaker returns the circuit breaker for a backend, creating its slot if
// necessary, so health reporting works even before the first connect.
func (p *Pool) Breaker(cfg config.BackendConfig) *circuit.Breaker {
	return p.getOrCreateSlot(cfg).breaker
}

// Get returns a connected Transport for cfg.Name, creating and connecting
// one if absent or disconnected. Concurrent Get calls for the same backend
// coalesce onto a single connect attempt via singleflight, giving the
// at-most-one-connect guarantee without hand-rolling a per-slot latch.
//
// Get only gates and records the connect step against the breaker (per the
// "Connect is wrapped by the matching C2" rule); it never calls
// RecordSuccess on a cache hit. Callers that go on to issue an actual
// request are responsible for recording that request's own outcome via
// Breaker(cfg), otherwise a HALF_OPEN trial slot claimed by Allow() here
// would never be released.
func (p *Pool) Get(ctx context.Context, cfg config.BackendConfig, onNotification transport.NotificationHandler) (transport.Transport, error) {
	s := p.getOrCreateSlot(cfg)

	if !s.breaker.Allow() {
		return nil, gwerr.CircuitOpen(cfg.Name)
	}

	p.mu.RLock()
	existing := s.tr
	p.mu.RUnlock()
	if existing != nil && existing.Connected() {
		return existing, nil
	}

	v, err, _ := p.group.Do(cfg.Name, func() (any, error) {
		p.mu.RLock()
		existing := s.tr
		p.mu.RUnlock()
		if existing != nil && existing.Connected() {
			return existing, nil
		}

		tr, err := p.newFn(cfg, p.log)
		if err != nil {
			return nil, fmt.Errorf("create transport for %s: %w", cfg.Name, err)
		}
		if onNotification != nil {
			tr.OnNotification(onNotification)
		}
		if err := tr.Connect(ctx); err != nil {
			return nil, err
		}

		p.mu.Lock()
		s.tr = tr
		p.mu.Unlock()

		p.metrics.IncCounter("goblin_backend_connects_total", map[string]string{"backend": cfg.Name})
		return tr, nil
	})
	if err != nil {
		s.breaker.RecordFailure(err.Error())
		p.metrics.IncCounter("goblin_backend_connect_errors_total", map[string]string{"backend": cfg.Name})
		return nil, gwerr.ConnectionError(cfg.Name, err)
	}

	return v.(transport.Transport), nil
}

// Release closes and removes cfg.Name's slot entirely, including its
// circuit breaker history.
func (p *Pool) Release(backendName string) {
	p.mu.Lock()
	s, ok := p.slots[backendName]
	if ok {
		delete(p.slots, backendName)
	}
	p.mu.Unlock()

	if ok && s.tr != nil {
		if err := s.tr.Close(); err != nil {
			p.log.Warn("error closing transport on release", "backend", backendName, "error", err.Error())
		}
	}
}

// ReleaseAll closes every slot and empties the pool, used on shutdown.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[string]*slot)
	p.mu.Unlock()

	for name, s := range slots {
		if s.tr == nil {
			continue
		}
		if err := s.tr.Close(); err != nil {
			p.log.Warn("error closing transport on shutdown", "backend", name, "error", err.Error())
		}
	}
}

// Snapshot reports every known backend's connectivity for the health
// meta-tool and the lock-port /status endpoint.
type Snapshot struct {
	BackendName string
	Connected   bool
	Circuit     circuit.Snapshot
}

func (p *Pool) Snapshot() []Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Snapshot, 0, len(p.slots))
	for name, s := range p.slots {
		out = append(out, Snapshot{
			BackendName: name,
			Connected:   s.tr != nil && s.tr.Connected(),
			Circuit:     s.breaker.Snapshot(),
		})
	}
	return out
}
