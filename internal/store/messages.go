package store

import (
	"context"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutMessage inserts or replaces a message row.
func (s *Store) PutMessage(ctx context.Context, msg *types.Message) error {
	pinned := 0
	if msg.Pinned {
		pinned = 1
	}
	_, err := s.Exec(ctx, `INSERT INTO messages
		(id, session_id, role, content, status, created_at, estimated_tokens, pinned)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, status=excluded.status,
			estimated_tokens=excluded.estimated_tokens, pinned=excluded.pinned`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, string(msg.Status),
		msg.CreatedAt, msg.EstimatedTokens, pinned)
	return err
}

// ListMessages returns up to limit messages for a session, most-recent-first
// when before > 0, otherwise oldest-first (limit <= 0 means unbounded).
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int, before int64) ([]*types.Message, error) {
	query := `SELECT id, session_id, role, content, status, created_at, estimated_tokens, pinned
		FROM messages WHERE session_id = ?`
	args := []any{sessionID}
	if before > 0 {
		query += " AND created_at < ?"
		args = append(args, before)
	}
	if before > 0 {
		query += " ORDER BY created_at DESC"
	} else {
		query += " ORDER BY created_at ASC"
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var m types.Message
		var pinned int
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Status,
			&m.CreatedAt, &m.EstimatedTokens, &pinned); err != nil {
			return nil, err
		}
		m.Pinned = pinned != 0
		out = append(out, &m)
	}
	return out, rows.Err()
}

// PutToolCall inserts or replaces a tool-call audit record.
func (s *Store) PutToolCall(ctx context.Context, rec *types.ToolCallRecord) error {
	_, err := s.Exec(ctx, `INSERT INTO tool_call_records
		(id, session_id, task_id, message_id, name, args_json, result, status,
		 approval_id, idempotency_key, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET result=excluded.result, status=excluded.status`,
		rec.ID, rec.SessionID, rec.TaskID, rec.MessageID, rec.Name, rec.ArgsJSON,
		rec.Result, rec.Status, rec.ApprovalID, rec.IdempotencyKey, rec.CreatedAt)
	return err
}

// ListToolCalls returns the audit trail for a session or task.
func (s *Store) ListToolCalls(ctx context.Context, sessionID string) ([]*types.ToolCallRecord, error) {
	rows, err := s.Query(ctx, `SELECT id, session_id, task_id, message_id, name, args_json,
		result, status, approval_id, idempotency_key, created_at
		FROM tool_call_records WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ToolCallRecord
	for rows.Next() {
		var r types.ToolCallRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TaskID, &r.MessageID, &r.Name,
			&r.ArgsJSON, &r.Result, &r.Status, &r.ApprovalID, &r.IdempotencyKey, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
