package store

import (
	"context"

	"github.com/clawd-io/clawd/pkg/types"
)

// UnlockAchievement records a session milestone, idempotently on (session, key).
func (s *Store) UnlockAchievement(ctx context.Context, a *types.Achievement) error {
	_, err := s.Exec(ctx, `INSERT INTO achievements (session_id, key, label, unlocked_at)
		VALUES (?,?,?,?) ON CONFLICT(session_id, key) DO NOTHING`,
		a.SessionID, a.Key, a.Label, a.UnlockedAt)
	return err
}

// ListAchievements returns every milestone unlocked for a session.
func (s *Store) ListAchievements(ctx context.Context, sessionID string) ([]*types.Achievement, error) {
	rows, err := s.Query(ctx, `SELECT session_id, key, label, unlocked_at
		FROM achievements WHERE session_id = ? ORDER BY unlocked_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Achievement
	for rows.Next() {
		var a types.Achievement
		if err := rows.Scan(&a.SessionID, &a.Key, &a.Label, &a.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
