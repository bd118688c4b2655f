package store

import (
	"context"

	"github.com/clawd-io/clawd/pkg/types"
)

// InsertMetricsTick appends a per-turn usage row and folds it into the
// session's hourly rollup bucket in the same call.
func (s *Store) InsertMetricsTick(ctx context.Context, t *types.MetricsTick) error {
	_, err := s.Exec(ctx, `INSERT INTO metrics_ticks
		(session_id, timestamp, tokens_in, tokens_out, tool_calls, cost)
		VALUES (?,?,?,?,?,?)`,
		t.SessionID, t.Timestamp, t.TokensIn, t.TokensOut, t.ToolCalls, t.Cost)
	if err != nil {
		return err
	}

	bucket := t.Timestamp - (t.Timestamp % 3_600_000)
	_, err = s.Exec(ctx, `INSERT INTO metrics_rollups
		(session_id, hour_bucket, tokens_in, tokens_out, tool_calls, cost)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(session_id, hour_bucket) DO UPDATE SET
			tokens_in=tokens_in+excluded.tokens_in,
			tokens_out=tokens_out+excluded.tokens_out,
			tool_calls=tool_calls+excluded.tool_calls,
			cost=cost+excluded.cost`,
		t.SessionID, bucket, t.TokensIn, t.TokensOut, t.ToolCalls, t.Cost)
	return err
}

// SumMonthlyCost sums rollup cost across every session for hour buckets at
// or after sinceMs, used by the budget gate to enforce MonthlyBudgetUSD.
func (s *Store) SumMonthlyCost(ctx context.Context, sinceMs int64) (float64, error) {
	row := s.QueryRow(ctx, "SELECT COALESCE(SUM(cost), 0) FROM metrics_rollups WHERE hour_bucket >= ?", sinceMs)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListRollups returns a session's hourly rollups ordered oldest first.
func (s *Store) ListRollups(ctx context.Context, sessionID string) ([]*types.MetricsRollup, error) {
	rows, err := s.Query(ctx, `SELECT session_id, hour_bucket, tokens_in, tokens_out, tool_calls, cost
		FROM metrics_rollups WHERE session_id = ? ORDER BY hour_bucket ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.MetricsRollup
	for rows.Next() {
		var r types.MetricsRollup
		if err := rows.Scan(&r.SessionID, &r.HourBucket, &r.TokensIn, &r.TokensOut, &r.ToolCalls, &r.Cost); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
