package store

import (
	"context"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutDriftItem upserts one feature-vs-source drift finding.
func (s *Store) PutDriftItem(ctx context.Context, d *types.DriftItem) error {
	missing := 0
	if d.Missing {
		missing = 1
	}
	_, err := s.Exec(ctx, `INSERT INTO drift_items (repo_path, feature_name, candidate, missing)
		VALUES (?,?,?,?)
		ON CONFLICT(repo_path, feature_name) DO UPDATE SET
			candidate=excluded.candidate, missing=excluded.missing`,
		d.RepoPath, d.FeatureName, d.Candidate, missing)
	return err
}

// ListDriftItems returns every tracked drift finding for a repo.
func (s *Store) ListDriftItems(ctx context.Context, repoPath string) ([]*types.DriftItem, error) {
	rows, err := s.Query(ctx, `SELECT repo_path, feature_name, candidate, missing
		FROM drift_items WHERE repo_path = ?`, repoPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.DriftItem
	for rows.Next() {
		var d types.DriftItem
		var missing int
		if err := rows.Scan(&d.RepoPath, &d.FeatureName, &d.Candidate, &missing); err != nil {
			return nil, err
		}
		d.Missing = missing != 0
		out = append(out, &d)
	}
	return out, rows.Err()
}
