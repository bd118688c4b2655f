// Package breaker implements a per-dependency circuit breaker: Closed,
// Open, and HalfOpen states guarding calls to an external process or
// service (a provider CLI, the policy engine's prompt-injection scanner,
// an MCP server) so a string of failures stops hammering a dead dependency.
//
// There is no ecosystem breaker in the retrieved examples with enough
// grounding to adopt wholesale (sony/gobreaker appears only in another
// pack repo's go.mod, never called); this is a small first-party type
// following the mutex-guarded-map idiom the daemon uses elsewhere
// (internal/approval's pending-request map, internal/session's active
// session registry).
package breaker

import (
	"sync"
	"time"
)

// State is one circuit breaker's current disposition.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config tunes one breaker instance.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// Closed -> Open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays Open before allowing a
	// single trial call (HalfOpen).
	OpenDuration time.Duration
	// HalfOpenSuccesses is the number of consecutive HalfOpen successes
	// required to return to Closed.
	HalfOpenSuccesses int
}

// DefaultConfig is the tuning used for external dependencies: five
// consecutive failures trips the breaker, it stays open 30s, and two
// consecutive trial successes close it again.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		OpenDuration:      30 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// Breaker guards calls to a single named dependency.
type Breaker struct {
	name string
	cfg  Config

	mu               sync.Mutex
	state            State
	consecutiveFails int
	consecutiveOK    int
	openedAt         time.Time
}

// New creates a breaker for name, starting Closed.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: Closed}
}

// Name is the dependency this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, transitioning Open -> HalfOpen as a side
// effect once OpenDuration has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// IsAllowed reports whether a call should be attempted right now. Callers
// must pair every true result with a RecordSuccess or RecordFailure once the
// call completes.
func (b *Breaker) IsAllowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state != Open
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.OpenDuration {
		b.state = HalfOpen
		b.consecutiveOK = 0
	}
}

// RecordSuccess reports a successful call. In HalfOpen, enough consecutive
// successes close the breaker; in Closed, it resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.HalfOpenSuccesses {
			b.state = Closed
			b.consecutiveFails = 0
			b.consecutiveOK = 0
		}
	case Closed:
		b.consecutiveFails = 0
	}
}

// RecordFailure reports a failed call. Any failure while HalfOpen reopens
// immediately; in Closed, FailureThreshold consecutive failures trips it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.consecutiveOK = 0
}

// ForceClose resets the breaker to Closed, for operator override.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFails = 0
	b.consecutiveOK = 0
}

// Registry holds one Breaker per named dependency, created lazily.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry where every breaker it lazily creates uses cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it if this is the first call.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.cfg)
		r.breakers[name] = b
	}
	return b
}

// All returns every breaker the registry has created, for status reporting.
func (r *Registry) All() []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
