package store

import (
	"context"

	"github.com/clawd-io/clawd/pkg/types"
)

// InsertValidationRun records the outcome of one lint/test command.
func (s *Store) InsertValidationRun(ctx context.Context, v *types.ValidationRun) error {
	_, err := s.Exec(ctx, `INSERT INTO validation_runs
		(id, repo_path, command, exit_code, output, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		v.ID, v.RepoPath, v.Command, v.ExitCode, v.Output, v.Duration, v.CreatedAt)
	return err
}

// ListValidationRuns returns the most recent runs for a repo, newest first.
func (s *Store) ListValidationRuns(ctx context.Context, repoPath string, limit int) ([]*types.ValidationRun, error) {
	rows, err := s.Query(ctx, `SELECT id, repo_path, command, exit_code, output, duration_ms, created_at
		FROM validation_runs WHERE repo_path = ? ORDER BY created_at DESC LIMIT ?`, repoPath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ValidationRun
	for rows.Next() {
		var v types.ValidationRun
		if err := rows.Scan(&v.ID, &v.RepoPath, &v.Command, &v.ExitCode, &v.Output, &v.Duration, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
