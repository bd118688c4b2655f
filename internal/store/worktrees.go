package store

import (
	"context"
	"database/sql"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutWorktree inserts a task's worktree binding; if the task already has a
// row, only its status is updated.
func (s *Store) PutWorktree(ctx context.Context, w *types.WorktreeInfo) error {
	_, err := s.Exec(ctx, `INSERT INTO worktrees
		(task_id, branch, path, origin_repo, created_at, status)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(task_id) DO UPDATE SET status=excluded.status`,
		w.TaskID, w.Branch, w.Path, w.OriginRepo, w.CreatedAt, string(w.Status))
	return err
}

// GetWorktree returns the worktree bound to a task, or nil if none exists.
func (s *Store) GetWorktree(ctx context.Context, taskID string) (*types.WorktreeInfo, error) {
	row := s.QueryRow(ctx, `SELECT task_id, branch, path, origin_repo, created_at, status
		FROM worktrees WHERE task_id = ?`, taskID)
	var w types.WorktreeInfo
	if err := row.Scan(&w.TaskID, &w.Branch, &w.Path, &w.OriginRepo, &w.CreatedAt, &w.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// ListActiveWorktrees returns every worktree not yet Done/Abandoned/Merged,
// used at startup to reconcile the filesystem against persisted state.
func (s *Store) ListActiveWorktrees(ctx context.Context) ([]*types.WorktreeInfo, error) {
	rows, err := s.Query(ctx, `SELECT task_id, branch, path, origin_repo, created_at, status
		FROM worktrees WHERE status = ?`, string(types.WorktreeActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.WorktreeInfo
	for rows.Next() {
		var w types.WorktreeInfo
		if err := rows.Scan(&w.TaskID, &w.Branch, &w.Path, &w.OriginRepo, &w.CreatedAt, &w.Status); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
