package store

import (
	"context"
	"database/sql"

	"github.com/clawd-io/clawd/pkg/types"
)

// UpsertDeadLetter records or updates a failed delivery, keyed by the
// (source_session_id, event_type) unique constraint so repeated failures of
// the same event bump retry_count in place rather than fanning out rows.
func (s *Store) UpsertDeadLetter(ctx context.Context, e *types.DeadLetterEntry) error {
	_, err := s.Exec(ctx, `INSERT INTO dead_letter
		(id, source_session_id, event_type, payload, failure_reason, retry_count, status, last_attempt_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(source_session_id, event_type) DO UPDATE SET
			payload=excluded.payload, failure_reason=excluded.failure_reason,
			retry_count=excluded.retry_count, status=excluded.status,
			last_attempt_at=excluded.last_attempt_at`,
		e.ID, e.SourceSessionID, e.EventType, e.Payload, e.FailureReason,
		e.RetryCount, string(e.Status), e.LastAttemptAt)
	return err
}

// DeleteDeadLetter removes an entry, used once redelivery succeeds or an
// operator discards it.
func (s *Store) DeleteDeadLetter(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, "DELETE FROM dead_letter WHERE id = ?", id)
	return err
}

// ListPendingDeadLetters returns entries the background worker should retry.
func (s *Store) ListPendingDeadLetters(ctx context.Context) ([]*types.DeadLetterEntry, error) {
	rows, err := s.Query(ctx, deadLetterSelect+" WHERE status = ? ORDER BY last_attempt_at ASC",
		string(types.DeadLetterPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.DeadLetterEntry
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListDeadLetters returns every entry regardless of status, for the operator
// view that needs permanently_failed rows too.
func (s *Store) ListDeadLetters(ctx context.Context) ([]*types.DeadLetterEntry, error) {
	rows, err := s.Query(ctx, deadLetterSelect+" ORDER BY last_attempt_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.DeadLetterEntry
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetDeadLetter fetches one entry by id, for operator-triggered retry.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*types.DeadLetterEntry, error) {
	row := s.QueryRow(ctx, deadLetterSelect+" WHERE id = ?", id)
	e, err := scanDeadLetter(row)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

const deadLetterSelect = `SELECT id, source_session_id, event_type, payload,
	failure_reason, retry_count, status, last_attempt_at FROM dead_letter`

func scanDeadLetter(row rowScanner) (*types.DeadLetterEntry, error) {
	var e types.DeadLetterEntry
	if err := row.Scan(&e.ID, &e.SourceSessionID, &e.EventType, &e.Payload,
		&e.FailureReason, &e.RetryCount, &e.Status, &e.LastAttemptAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
