package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// GetSetting returns the value of a settings key, "" when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	var value string
	err := s.q.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1 LIMIT 1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// PutSetting upserts a settings key.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}
