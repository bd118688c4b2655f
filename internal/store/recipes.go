package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clawd-io/clawd/pkg/types"
)

// PutRecipe inserts or replaces one named, versioned recipe.
func (s *Store) PutRecipe(ctx context.Context, r *types.Recipe) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, `INSERT INTO recipes (name, version, steps_json) VALUES (?,?,?)
		ON CONFLICT(name, version) DO UPDATE SET steps_json = excluded.steps_json`,
		r.Name, r.Version, string(steps))
	return err
}

// GetLatestRecipe returns the highest version recorded for a recipe name.
func (s *Store) GetLatestRecipe(ctx context.Context, name string) (*types.Recipe, error) {
	row := s.QueryRow(ctx, `SELECT name, version, steps_json FROM recipes
		WHERE name = ? ORDER BY version DESC LIMIT 1`, name)
	var r types.Recipe
	var stepsJSON string
	if err := row.Scan(&r.Name, &r.Version, &stepsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(stepsJSON), &r.Steps)
	return &r, nil
}
