package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutEvidencePack persists the post-completion bundle for one task run.
func (s *Store) PutEvidencePack(ctx context.Context, e *types.EvidencePack) error {
	files, err := json.Marshal(e.FilesChanged)
	if err != nil {
		return err
	}
	passed := 0
	if e.TestsPassed {
		passed = 1
	}
	_, err = s.Exec(ctx, `INSERT INTO evidence_packs
		(task_id, run_id, diff_additions, diff_deletions, files_json, tests_passed,
		 test_output, review_verdict, worktree_head, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(task_id, run_id) DO UPDATE SET
			diff_additions=excluded.diff_additions, diff_deletions=excluded.diff_deletions,
			files_json=excluded.files_json, tests_passed=excluded.tests_passed,
			test_output=excluded.test_output, review_verdict=excluded.review_verdict,
			worktree_head=excluded.worktree_head`,
		e.TaskID, e.RunID, e.DiffAdditions, e.DiffDeletions, string(files), passed,
		e.TestOutput, e.ReviewVerdict, e.WorktreeHead, e.CreatedAt)
	return err
}

// ListEvidencePacks returns every run recorded for a task, newest first.
func (s *Store) ListEvidencePacks(ctx context.Context, taskID string) ([]*types.EvidencePack, error) {
	rows, err := s.Query(ctx, `SELECT task_id, run_id, diff_additions, diff_deletions, files_json,
		tests_passed, test_output, review_verdict, worktree_head, created_at
		FROM evidence_packs WHERE task_id = ? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.EvidencePack
	for rows.Next() {
		e, err := scanEvidencePack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvidencePack(row rowScanner) (*types.EvidencePack, error) {
	var e types.EvidencePack
	var filesJSON string
	var passed int
	if err := row.Scan(&e.TaskID, &e.RunID, &e.DiffAdditions, &e.DiffDeletions, &filesJSON,
		&passed, &e.TestOutput, &e.ReviewVerdict, &e.WorktreeHead, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.TestsPassed = passed != 0
	_ = json.Unmarshal([]byte(filesJSON), &e.FilesChanged)
	return &e, nil
}
