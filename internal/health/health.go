// Package health tracks a rolling quality signal per session, derived from
// the verdict internal/intelligence.Evaluate produces for each turn.
//
// Follows the per-turn bookkeeping shape used elsewhere in this codebase
// for in-memory counters per message, but persists the counters per
// session via internal/store and adds a quality scoring formula on top.
package health

import (
	"context"
	"time"

	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// RefreshThreshold is the score below which a proactive context refresh is
// recommended.
const RefreshThreshold = 20

// lowQualityCap is the score ceiling once four consecutive turns have been
// judged poor; it keeps a session visibly unhealthy until it recovers.
const lowQualityCap = 20
const lowQualityStreak = 4

// Record folds one turn's verdict into sessionID's rolling health row.
// PoorEmptyResponse and PoorModelRefusal both count as "short" since both
// leave a turn with no usable assistant output.
func Record(ctx context.Context, st *store.Store, sessionID string, verdict types.ResponseVerdict) (*types.SessionHealth, error) {
	h, err := st.GetSessionHealth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = &types.SessionHealth{SessionID: sessionID}
	}

	switch verdict {
	case types.VerdictTruncated:
		h.TruncatedCount++
	case types.VerdictToolError:
		h.ToolErrorCount++
	case types.VerdictEmptyResponse, types.VerdictModelRefusal:
		h.ShortCount++
	default:
		h.GoodCount++
	}

	if verdict.IsPoor() {
		h.ConsecutiveLowQuality++
	} else {
		h.ConsecutiveLowQuality = 0
	}

	h.Score = score(h)
	h.UpdatedAt = time.Now().UnixMilli()

	if err := st.PutSessionHealth(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func score(h *types.SessionHealth) int {
	s := 100 - h.ShortCount*8 - h.ToolErrorCount*5 - h.TruncatedCount*15
	if s < 0 {
		s = 0
	}
	if h.ConsecutiveLowQuality >= lowQualityStreak && s > lowQualityCap {
		s = lowQualityCap
	}
	return s
}

// NeedsRefresh reports whether sessionID's current score warrants a
// proactive context refresh.
func NeedsRefresh(ctx context.Context, st *store.Store, sessionID string) (bool, error) {
	h, err := st.GetSessionHealth(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, nil
	}
	return h.Score < RefreshThreshold, nil
}
