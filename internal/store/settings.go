package store

import (
	"context"
	"database/sql"
)

// GetSetting reads a single string value from the settings K/V table.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	row := s.QueryRow(ctx, "SELECT value FROM settings WHERE key = ?", key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// PutSetting upserts a single string value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.Exec(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
