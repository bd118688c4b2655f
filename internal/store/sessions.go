package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutSession inserts or replaces a session row.
func (s *Store) PutSession(ctx context.Context, sess *types.Session) error {
	permJSON, err := json.Marshal(sess.Permissions)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, `INSERT INTO sessions
		(id, provider, repo_path, title, status, mode, tier, created_at, updated_at,
		 last_activity_at, message_count, permissions_json, parent_session, model_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			provider=excluded.provider, repo_path=excluded.repo_path, title=excluded.title,
			status=excluded.status, mode=excluded.mode, tier=excluded.tier,
			updated_at=excluded.updated_at, last_activity_at=excluded.last_activity_at,
			message_count=excluded.message_count, permissions_json=excluded.permissions_json,
			parent_session=excluded.parent_session, model_id=excluded.model_id`,
		sess.ID, string(sess.Provider), sess.RepoPath, sess.Title, string(sess.Status),
		string(sess.Mode), string(sess.Tier), sess.CreatedAt, sess.UpdatedAt,
		sess.LastActivityAt, sess.MessageCount, string(permJSON), nullableString(sess.ParentSession), sess.ModelID)
	return err
}

// GetSession reads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.QueryRow(ctx, `SELECT id, provider, repo_path, title, status, mode, tier,
		created_at, updated_at, last_activity_at, message_count, permissions_json,
		parent_session, model_id FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns all sessions ordered by most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.Query(ctx, `SELECT id, provider, repo_path, title, status, mode, tier,
		created_at, updated_at, last_activity_at, message_count, permissions_json,
		parent_session, model_id FROM sessions ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, "DELETE FROM messages WHERE session_id = ?", id)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var permJSON string
	var parent sql.NullString
	if err := row.Scan(&sess.ID, &sess.Provider, &sess.RepoPath, &sess.Title, &sess.Status,
		&sess.Mode, &sess.Tier, &sess.CreatedAt, &sess.UpdatedAt, &sess.LastActivityAt,
		&sess.MessageCount, &permJSON, &parent, &sess.ModelID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if permJSON != "" {
		_ = json.Unmarshal([]byte(permJSON), &sess.Permissions)
	}
	if parent.Valid {
		sess.ParentSession = &parent.String
	}
	return &sess, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
