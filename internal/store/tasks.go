package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/pkg/types"
)

// InsertTask creates the row-level task in status pending. The event log
// (internal/taskengine) is the audit trail; this row exists so claim_task
// can be a single atomic UPDATE and so listings don't need to replay logs.
func (s *Store) InsertTask(ctx context.Context, t *types.Task) error {
	deps, _ := json.Marshal(t.Spec.Dependencies)
	owned, _ := json.Marshal(t.OwnedPaths)
	_, err := s.Exec(ctx, `INSERT INTO tasks
		(id, display_id, title, repo_path, task_type, phase, severity, dependencies_json,
		 owned_paths_json, status, created_at, updated_at, event_seq)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.DisplayID, t.Spec.Title, t.Spec.RepoPath, t.Spec.TaskType, t.Spec.Phase,
		t.Spec.Severity, string(deps), string(owned), string(t.Status), t.CreatedAt, t.UpdatedAt, t.EventSeq)
	return err
}

// ClaimTask atomically moves a task from pending to claimed: a single
// UPDATE guarded by WHERE status = 'pending' means exactly one concurrent
// caller observes rowsAffected == 1; every other caller gets
// TASK_ALREADY_CLAIMED.
func (s *Store) ClaimTask(ctx context.Context, taskID, agentID string, now int64) error {
	var result sql.Result
	err := s.execWrite(ctx, "claim_task", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = 'claimed', claimed_by = ?, claimed_at = ?,
				last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
			agentID, now, now, now, taskID)
		return execErr
	})
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return clawerr.TaskAlreadyClaimed(taskID)
	}
	return nil
}

// UpdateTaskFromMaterialized overwrites the cached row with the reducer's
// current fold, called after every append_and_reduce.
func (s *Store) UpdateTaskFromMaterialized(ctx context.Context, m *types.MaterializedTask) error {
	_, err := s.Exec(ctx, `UPDATE tasks SET status = ?, claimed_by = ?, completion_notes = ?,
		blocked_reason = ?, updated_at = ?, event_seq = ? WHERE id = ?`,
		string(m.State), m.ClaimedBy, m.CompletionNotes, m.BlockedReason, m.UpdatedAt, m.EventSeq, m.TaskID)
	return err
}

// Heartbeat bumps last_heartbeat for a claimed task.
func (s *Store) Heartbeat(ctx context.Context, taskID string, now int64) error {
	_, err := s.Exec(ctx, "UPDATE tasks SET last_heartbeat = ? WHERE id = ?", now, taskID)
	return err
}

// GetTask reads one task by its opaque id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.QueryRow(ctx, taskSelect+" WHERE id = ?", id)
	return scanTask(row)
}

// ListTasks returns all tasks, optionally filtered by repo path.
func (s *Store) ListTasks(ctx context.Context, repoPath string) ([]*types.Task, error) {
	query := taskSelect
	var args []any
	if repoPath != "" {
		query += " WHERE repo_path = ?"
		args = append(args, repoPath)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskSelect = `SELECT id, display_id, title, repo_path, task_type, phase, severity,
	dependencies_json, owned_paths_json, status, claimed_by, claimed_at, last_heartbeat,
	completion_notes, completed_at, blocked_reason, created_at, updated_at, event_seq FROM tasks`

func scanTask(row rowScanner) (*types.Task, error) {
	var t types.Task
	var deps, owned string
	if err := row.Scan(&t.ID, &t.DisplayID, &t.Spec.Title, &t.Spec.RepoPath, &t.Spec.TaskType,
		&t.Spec.Phase, &t.Spec.Severity, &deps, &owned, &t.Status, &t.ClaimedBy, &t.ClaimedAt,
		&t.LastHeartbeat, &t.CompletionNotes, &t.CompletedAt, &t.BlockedReason, &t.CreatedAt,
		&t.UpdatedAt, &t.EventSeq); err != nil {
		if err == sql.ErrNoRows {
			return nil, clawerr.TaskNotFound("")
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(deps), &t.Spec.Dependencies)
	_ = json.Unmarshal([]byte(owned), &t.OwnedPaths)
	return &t, nil
}
