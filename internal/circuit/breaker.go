// Package circuit implements the per-backend CLOSED/OPEN/HALF_OPEN circuit
// breaker guarding Transport Pool connect and request operations.
package circuit

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Config tunes the breaker's thresholds and cooldown.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenCooldown     time.Duration
}

// DefaultConfig mirrors sane defaults for an aggregated backend: a handful
// of consecutive infrastructural failures trips it, and two consecutive
// clean round-trips in HALF_OPEN close it again.
var DefaultConfig = Config{
	FailureThreshold: 3,
	SuccessThreshold: 2,
	OpenCooldown:     30 * time.Second,
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Breaker guards one backend. Admission decisions and state transitions are
// atomic under a single mutex; only one caller wins the HALF_OPEN trial
// slot when multiple callers race for it.
type Breaker struct {
	backendName string
	cfg         Config

	mu              sync.Mutex
	state           State
	consecFailures  int
	consecSuccesses int
	nextTryAfter    time.Time
	trialInFlight   bool
	lastError       string
}

// New creates a Breaker for one backend, starting CLOSED.
func New(backendName string, cfg Config) *Breaker {
	return &Breaker{
		backendName: backendName,
		cfg:         cfg,
		state:       Closed,
	}
}

// Allow reports whether a call may proceed right now. When it returns true
// in HALF_OPEN, the caller has won the single trial slot and MUST call
// RecordSuccess or RecordFailure exactly once to release it.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if nowFunc().Before(b.nextTryAfter) {
			return false
		}
		if b.trialInFlight {
			return false
		}
		b.state = HalfOpen
		b.trialInFlight = true
		return true
	case HalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In HALF_OPEN it releases the
// trial slot and, once successThreshold consecutive successes accrue,
// closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecFailures = 0
	case HalfOpen:
		b.trialInFlight = false
		b.consecSuccesses++
		if b.consecSuccesses >= b.cfg.SuccessThreshold {
			b.reset()
		}
	case Open:
		// a late success after the breaker already reopened; ignore
	}
}

// RecordFailure reports an infrastructural failure. PeerErrors must never
// reach this method; only transport.FailureInfrastructural failures count.
func (b *Breaker) RecordFailure(errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = errMsg

	switch b.state {
	case Closed:
		b.consecFailures++
		if b.consecFailures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trialInFlight = false
		b.trip()
	case Open:
		// already open
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.nextTryAfter = nowFunc().Add(b.cfg.OpenCooldown)
	b.consecSuccesses = 0
	b.trialInFlight = false
}

func (b *Breaker) reset() {
	b.state = Closed
	b.consecFailures = 0
	b.consecSuccesses = 0
	b.trialInFlight = false
}

// State returns the breaker's current state (for the health meta-tool and
// catalog listing).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastError returns the most recent infrastructural failure message, bounded
// to a short diagnostic string (never a stack trace), for the health
// meta-tool's per-backend summary.
func (b *Breaker) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// Snapshot returns a consistent read of the breaker's visible state.
type Snapshot struct {
	BackendName string
	State       State
	LastError   string
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{BackendName: b.backendName, State: b.state, LastError: b.lastError}
}
