package metrics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecordTickUnlocksFirst10kAchievement(t *testing.T) {
	st := openTestStore(t)
	bus := event.New()
	received := make(chan event.Event, 1)
	unsub := bus.Subscribe("s1", func(ev event.Event) {
		if ev.Name == event.AchievementUnlocked {
			received <- ev
		}
	})
	defer unsub()

	err := RecordTick(context.Background(), st, bus, &types.MetricsTick{
		SessionID: "s1", Timestamp: 1000, TokensIn: 500, TokensOut: 10_500, ToolCalls: 1, Cost: 0.2,
	})
	require.NoError(t, err)

	select {
	case ev := <-received:
		a := ev.Payload.(*types.Achievement)
		require.Equal(t, "first_10k", a.Key)
	default:
		t.Fatal("expected achievement.unlocked to be published")
	}
}

func TestRecordTickDoesNotReunlockSameAchievement(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, RecordTick(ctx, st, nil, &types.MetricsTick{
			SessionID: "s1", Timestamp: int64(1000 + i), TokensIn: 0, TokensOut: 10_500, ToolCalls: 0, Cost: 0,
		}))
	}
	unlocked, err := st.ListAchievements(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
}

func TestBuildDashboardSumsCostAcrossRollups(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertMetricsTick(ctx, &types.MetricsTick{SessionID: "s1", Timestamp: 0, Cost: 1.5}))
	require.NoError(t, st.InsertMetricsTick(ctx, &types.MetricsTick{SessionID: "s1", Timestamp: 3_600_000, Cost: 2.5}))

	dash, err := BuildDashboard(ctx, st, "s1")
	require.NoError(t, err)
	require.Len(t, dash.Rollups, 2)
	require.InDelta(t, 4.0, dash.TotalCost, 0.0001)
}

func TestHourBucketGroupsWithinSameHour(t *testing.T) {
	require.Equal(t, HourBucket(0), HourBucket(3_000_000))
	require.NotEqual(t, HourBucket(0), HourBucket(3_700_000))
}
