package store

import (
	"context"
	"database/sql"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/pkg/types"
)

// InsertApproval records a newly raised approval request in Pending status.
func (s *Store) InsertApproval(ctx context.Context, a *types.ApprovalRequest) error {
	_, err := s.Exec(ctx, `INSERT INTO approvals
		(id, task_id, agent_id, tool, summary, risk, created_at, status)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.TaskID, a.AgentID, a.Tool, a.Summary, string(a.Risk), a.CreatedAt, string(a.Status))
	return err
}

// ResolveApproval stamps an approval's terminal status (Granted, Denied, or
// TimedOut) along with when it was resolved.
func (s *Store) ResolveApproval(ctx context.Context, id string, status types.ApprovalStatus, resolvedAt int64, denyReason string) error {
	_, err := s.Exec(ctx,
		"UPDATE approvals SET status = ?, resolved_at = ?, deny_reason = ? WHERE id = ?",
		string(status), resolvedAt, denyReason, id)
	return err
}

// GetApproval reads one approval request by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	row := s.QueryRow(ctx, approvalSelect+" WHERE id = ?", id)
	return scanApproval(row)
}

// ListApprovalsForTask returns every approval request raised against a task.
func (s *Store) ListApprovalsForTask(ctx context.Context, taskID string) ([]*types.ApprovalRequest, error) {
	rows, err := s.Query(ctx, approvalSelect+" WHERE task_id = ? ORDER BY created_at ASC", taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const approvalSelect = `SELECT id, task_id, agent_id, tool, summary, risk, created_at,
	status, resolved_at, deny_reason FROM approvals`

func scanApproval(row rowScanner) (*types.ApprovalRequest, error) {
	var a types.ApprovalRequest
	var resolvedAt sql.NullInt64
	var denyReason sql.NullString
	if err := row.Scan(&a.ID, &a.TaskID, &a.AgentID, &a.Tool, &a.Summary, &a.Risk,
		&a.CreatedAt, &a.Status, &resolvedAt, &denyReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, clawerr.ApprovalNotFound(a.ID)
		}
		return nil, err
	}
	a.ResolvedAt = resolvedAt.Int64
	a.DenyReason = denyReason.String
	return &a, nil
}
