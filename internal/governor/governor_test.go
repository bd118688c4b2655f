package governor

import (
	"context"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/event"
)

type fakeDemoter struct {
	signals []DemotionSignal
}

func (f *fakeDemoter) Demote(s DemotionSignal) {
	f.signals = append(f.signals, s)
}

func statOf(total, used uint64) func() (*mem.VirtualMemoryStat, error) {
	return func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: total, Used: used}, nil
	}
}

func TestTickClassifiesNormalBelowBudget(t *testing.T) {
	g := New(Config{}, event.New(), nil)
	g.statFunc = statOf(100, 10)
	g.Tick(context.Background())
	require.Equal(t, PressureNormal, g.Current())
}

func TestTickClassifiesCriticalAtBudget(t *testing.T) {
	g := New(Config{BudgetPct: 0.7, EmergencyPct: 0.9}, event.New(), nil)
	g.statFunc = statOf(100, 75)
	g.Tick(context.Background())
	require.Equal(t, PressureCritical, g.Current())
}

func TestTickClassifiesEmergencyAboveThreshold(t *testing.T) {
	g := New(Config{BudgetPct: 0.7, EmergencyPct: 0.9}, event.New(), nil)
	g.statFunc = statOf(100, 95)
	g.Tick(context.Background())
	require.Equal(t, PressureEmergency, g.Current())
}

func TestTickSignalsDemoterUnderCriticalPressure(t *testing.T) {
	demoter := &fakeDemoter{}
	g := New(Config{BudgetPct: 0.7, EmergencyPct: 0.9}, event.New(), demoter)
	g.statFunc = statOf(100, 75)
	g.Tick(context.Background())
	require.Contains(t, demoter.signals, DemoteActiveToWarm)
	require.Contains(t, demoter.signals, DemoteWarmToCold)
}

func TestTickDerivesConcurrencyCapFromRAM(t *testing.T) {
	g := New(Config{BudgetPct: 0.5, PerSessionEstimate: 10}, event.New(), nil)
	g.statFunc = statOf(1000, 100)
	g.Tick(context.Background())
	require.Equal(t, 50, g.MaxConcurrentActive())
}

func TestMaxConcurrentActiveHonorsOverride(t *testing.T) {
	g := New(Config{MaxConcurrentActive: 3}, event.New(), nil)
	g.statFunc = statOf(1000, 100)
	g.Tick(context.Background())
	require.Equal(t, 3, g.MaxConcurrentActive())
}

func TestTickReturnsElevatedIntervalUnderPressure(t *testing.T) {
	g := New(Config{BudgetPct: 0.7, EmergencyPct: 0.9}, event.New(), nil)
	g.statFunc = statOf(100, 75)
	interval := g.Tick(context.Background())
	require.Equal(t, g.cfg.ElevatedPollInterval, interval)
}
