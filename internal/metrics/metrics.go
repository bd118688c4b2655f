// Package metrics turns the store's raw per-tick rows into hourly rollups
// and the achievement unlocks the observability dashboard surfaces.
//
// Built on internal/store/metrics.go's tick/rollup tables, using the same
// straightforward upsert-by-key idiom as the rest of this codebase's index
// tables.
package metrics

import (
	"context"
	"time"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// achievementThresholds maps a cumulative tokens-out milestone to the
// achievement key/label unlocked at that point.
var achievementThresholds = []struct {
	tokens int64
	key    string
	label  string
}{
	{10_000, "first_10k", "First 10,000 tokens"},
	{100_000, "centurion", "100,000 tokens in one session"},
	{1_000_000, "millionaire", "1,000,000 tokens in one session"},
}

// RecordTick inserts a MetricsTick, rolls it into the current hour bucket,
// and unlocks any achievement the session newly crossed.
func RecordTick(ctx context.Context, st *store.Store, bus *event.Bus, tick *types.MetricsTick) error {
	if err := st.InsertMetricsTick(ctx, tick); err != nil {
		return err
	}
	return checkAchievements(ctx, st, bus, tick.SessionID)
}

func checkAchievements(ctx context.Context, st *store.Store, bus *event.Bus, sessionID string) error {
	rollups, err := st.ListRollups(ctx, sessionID)
	if err != nil {
		return err
	}
	var totalOut int64
	for _, r := range rollups {
		totalOut += int64(r.TokensOut)
	}

	unlocked, err := st.ListAchievements(ctx, sessionID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(unlocked))
	for _, a := range unlocked {
		have[a.Key] = true
	}

	for _, th := range achievementThresholds {
		if have[th.key] || totalOut < th.tokens {
			continue
		}
		a := &types.Achievement{SessionID: sessionID, Key: th.key, Label: th.label, UnlockedAt: time.Now().UnixMilli()}
		if err := st.UnlockAchievement(ctx, a); err != nil {
			return err
		}
		if bus != nil {
			bus.Publish(event.Event{Name: event.AchievementUnlocked, SessionID: sessionID, Payload: a, Durable: true})
		}
	}
	return nil
}

// HourBucket returns the Unix-hour bucket a tick's timestamp belongs to,
// matching the store's (session, hour_bucket) upsert key.
func HourBucket(timestampMs int64) int64 {
	return timestampMs / (60 * 60 * 1000)
}

// Dashboard is the aggregate view the observability surface renders.
type Dashboard struct {
	SessionID    string                 `json:"sessionId"`
	Rollups      []*types.MetricsRollup `json:"rollups"`
	Achievements []*types.Achievement   `json:"achievements"`
	TotalCost    float64                `json:"totalCost"`
}

// BuildDashboard assembles one session's rollups, achievements, and total
// spend.
func BuildDashboard(ctx context.Context, st *store.Store, sessionID string) (*Dashboard, error) {
	rollups, err := st.ListRollups(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	achievements, err := st.ListAchievements(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, r := range rollups {
		total += r.Cost
	}
	return &Dashboard{SessionID: sessionID, Rollups: rollups, Achievements: achievements, TotalCost: total}, nil
}
