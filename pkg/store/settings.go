package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (db *DB) ensureSettings(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// Settings is a key/value view of the settings table.
type Settings struct {
	q Queryer
}

func NewSettings(q Queryer) *Settings {
	return &Settings{q: q}
}

// Get returns the value stored under key and whether it exists.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// GetOrDefault returns def when key is absent or cannot be read.
func (s *Settings) GetOrDefault(ctx context.Context, key, def string) string {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	return value
}

// Set stores value under key.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
