package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

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

func TestRecordGoodVerdictKeepsScoreAt100(t *testing.T) {
	st := openTestStore(t)
	h, err := Record(context.Background(), st, "s1", types.VerdictOk)
	require.NoError(t, err)
	require.Equal(t, 100, h.Score)
	require.Equal(t, 0, h.ConsecutiveLowQuality)
}

func TestRecordPenalizesTruncationMoreThanShort(t *testing.T) {
	st := openTestStore(t)
	_, err := Record(context.Background(), st, "s1", types.VerdictTruncated)
	require.NoError(t, err)
	h, err := Record(context.Background(), st, "s1", types.VerdictTruncated)
	require.NoError(t, err)
	require.Equal(t, 70, h.Score)

	_, err = Record(context.Background(), st, "s2", types.VerdictEmptyResponse)
	require.NoError(t, err)
	short, err := Record(context.Background(), st, "s2", types.VerdictEmptyResponse)
	require.NoError(t, err)
	require.Equal(t, 84, short.Score)
	require.Less(t, h.Score, short.Score)
}

func TestRecordCapsScoreAfterFourConsecutivePoorTurns(t *testing.T) {
	st := openTestStore(t)
	var h *types.SessionHealth
	var err error
	for i := 0; i < 4; i++ {
		h, err = Record(context.Background(), st, "s1", types.VerdictEmptyResponse)
		require.NoError(t, err)
	}
	require.Equal(t, 4, h.ConsecutiveLowQuality)
	require.LessOrEqual(t, h.Score, lowQualityCap)
}

func TestRecordResetsStreakOnGoodTurn(t *testing.T) {
	st := openTestStore(t)
	_, err := Record(context.Background(), st, "s1", types.VerdictToolError)
	require.NoError(t, err)
	h, err := Record(context.Background(), st, "s1", types.VerdictOk)
	require.NoError(t, err)
	require.Equal(t, 0, h.ConsecutiveLowQuality)
}

func TestNeedsRefreshTrueBelowThreshold(t *testing.T) {
	st := openTestStore(t)
	for i := 0; i < 6; i++ {
		_, err := Record(context.Background(), st, "s1", types.VerdictTruncated)
		require.NoError(t, err)
	}
	need, err := NeedsRefresh(context.Background(), st, "s1")
	require.NoError(t, err)
	require.True(t, need)
}

func TestNeedsRefreshFalseForUnknownSession(t *testing.T) {
	st := openTestStore(t)
	need, err := NeedsRefresh(context.Background(), st, "never-seen")
	require.NoError(t, err)
	require.False(t, need)
}
