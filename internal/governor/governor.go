// Package governor polls system memory pressure and demotes idle sessions
// when the daemon is running hot.
//
// RAM polling uses shirou/gopsutil/v3. Tier-demotion signaling uses the same
// RWMutex-guarded registry idiom as internal/session.Manager: a map of
// active sessions behind a lock, here applied to the governor's own
// tick-driven classification instead of a request path.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/logging"
)

// Pressure is the governor's classification of current memory pressure.
type Pressure string

const (
	PressureNormal    Pressure = "Normal"
	PressureWarning   Pressure = "Warning"
	PressureCritical  Pressure = "Critical"
	PressureEmergency Pressure = "Emergency"
)

// Config tunes the governor. Zero values take the documented defaults.
type Config struct {
	NormalPollInterval   time.Duration // default 5s
	ElevatedPollInterval time.Duration // default 1s, used once pressure > Normal
	BudgetPct            float64       // fraction of total RAM the daemon targets, default 0.7
	EmergencyPct         float64       // fraction of total RAM that is Emergency, default 0.9
	FixedOverheadBytes   uint64        // subtracted from the budget before dividing by per-session estimate
	PerSessionEstimate   uint64        // bytes, default 300MB
	MaxConcurrentActive  int           // override; 0 means derive from RAM
}

func (c Config) withDefaults() Config {
	if c.NormalPollInterval == 0 {
		c.NormalPollInterval = 5 * time.Second
	}
	if c.ElevatedPollInterval == 0 {
		c.ElevatedPollInterval = 1 * time.Second
	}
	if c.BudgetPct == 0 {
		c.BudgetPct = 0.7
	}
	if c.EmergencyPct == 0 {
		c.EmergencyPct = 0.9
	}
	if c.PerSessionEstimate == 0 {
		c.PerSessionEstimate = 300 * 1024 * 1024
	}
	return c
}

// DemotionSignal is what the governor tells the session manager to do under
// Warning+ pressure.
type DemotionSignal string

const (
	DemoteActiveToWarm DemotionSignal = "ActiveToWarm"
	DemoteWarmToCold   DemotionSignal = "WarmToCold"
)

// Demoter receives demotion instructions; internal/session implements this.
type Demoter interface {
	Demote(signal DemotionSignal)
}

// Governor polls memory stats on a timer and classifies pressure.
type Governor struct {
	cfg      Config
	bus      *event.Bus
	demoter  Demoter
	statFunc func() (*mem.VirtualMemoryStat, error)

	mu       sync.RWMutex
	current  Pressure
	maxCap   int
}

// New creates a Governor. demoter may be nil (useful for tests that only
// want to observe pressure classification).
func New(cfg Config, bus *event.Bus, demoter Demoter) *Governor {
	return &Governor{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		demoter:  demoter,
		statFunc: mem.VirtualMemory,
		current:  PressureNormal,
	}
}

// Current returns the last-observed pressure tier.
func (g *Governor) Current() Pressure {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// MaxConcurrentActive returns the configured override or the last-derived
// cap from RAM, minimum 1.
func (g *Governor) MaxConcurrentActive() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cfg.MaxConcurrentActive > 0 {
		return g.cfg.MaxConcurrentActive
	}
	if g.maxCap < 1 {
		return 1
	}
	return g.maxCap
}

// Tick samples memory once, classifies pressure, derives the concurrency
// cap, and fires a demotion signal if pressure is Warning or above.
// Returns the interval the caller should wait before the next tick.
func (g *Governor) Tick(ctx context.Context) time.Duration {
	stat, err := g.statFunc()
	if err != nil {
		logging.Warn().Err(err).Msg("governor: failed to read memory stats")
		return g.cfg.NormalPollInterval
	}

	budget := uint64(float64(stat.Total) * g.cfg.BudgetPct)
	emergency := uint64(float64(stat.Total) * g.cfg.EmergencyPct)
	used := stat.Used

	var next Pressure
	switch {
	case used >= emergency:
		next = PressureEmergency
	case used >= budget:
		next = PressureCritical
	case float64(used) >= 0.95*float64(budget):
		next = PressureWarning
	default:
		next = PressureNormal
	}

	cap_ := 1
	if budget > g.cfg.FixedOverheadBytes {
		cap_ = int((budget - g.cfg.FixedOverheadBytes) / g.cfg.PerSessionEstimate)
		if cap_ < 1 {
			cap_ = 1
		}
	}

	g.mu.Lock()
	previous := g.current
	g.current = next
	g.maxCap = cap_
	g.mu.Unlock()

	if previous != next {
		logging.Warn().Str("from", string(previous)).Str("to", string(next)).Msg("governor: pressure tier changed")
		if g.bus != nil {
			g.bus.Publish(event.Event{Name: event.RepoStatusChanged, Payload: map[string]any{"kind": "memoryPressure", "tier": next}})
		}
	}

	if next != PressureNormal && g.demoter != nil {
		if next == PressureWarning {
			g.demoter.Demote(DemoteActiveToWarm)
		} else {
			g.demoter.Demote(DemoteActiveToWarm)
			g.demoter.Demote(DemoteWarmToCold)
		}
	}

	if next == PressureNormal {
		return g.cfg.NormalPollInterval
	}
	return g.cfg.ElevatedPollInterval
}

// Run polls until ctx is cancelled, sleeping Tick's returned interval
// between samples (shorter under elevated pressure, per spec).
func (g *Governor) Run(ctx context.Context) {
	interval := g.cfg.NormalPollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			interval = g.Tick(ctx)
			timer.Reset(interval)
		}
	}
}
