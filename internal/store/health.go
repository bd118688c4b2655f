package store

import (
	"context"
	"database/sql"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutSessionHealth upserts the rolling quality signal for a session.
func (s *Store) PutSessionHealth(ctx context.Context, h *types.SessionHealth) error {
	_, err := s.Exec(ctx, `INSERT INTO session_health
		(session_id, score, short_count, tool_error_count, truncated_count,
		 good_count, consecutive_low_quality, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			score=excluded.score, short_count=excluded.short_count,
			tool_error_count=excluded.tool_error_count, truncated_count=excluded.truncated_count,
			good_count=excluded.good_count, consecutive_low_quality=excluded.consecutive_low_quality,
			updated_at=excluded.updated_at`,
		h.SessionID, h.Score, h.ShortCount, h.ToolErrorCount, h.TruncatedCount,
		h.GoodCount, h.ConsecutiveLowQuality, h.UpdatedAt)
	return err
}

// GetSessionHealth reads a session's health row, or nil if never recorded.
func (s *Store) GetSessionHealth(ctx context.Context, sessionID string) (*types.SessionHealth, error) {
	row := s.QueryRow(ctx, `SELECT session_id, score, short_count, tool_error_count,
		truncated_count, good_count, consecutive_low_quality, updated_at
		FROM session_health WHERE session_id = ?`, sessionID)
	var h types.SessionHealth
	if err := row.Scan(&h.SessionID, &h.Score, &h.ShortCount, &h.ToolErrorCount,
		&h.TruncatedCount, &h.GoodCount, &h.ConsecutiveLowQuality, &h.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}
