package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LocalStorage is a durable string key/value table.
type LocalStorage struct {
	db *sql.DB
}

func NewLocalStorage(db *sql.DB) *LocalStorage {
	return &LocalStorage{db: db}
}

// Get returns the stored value and whether the key exists.
func (s *LocalStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *LocalStorage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetIfAbsent stores value only when key has no value yet and returns the
// value that is stored afterwards. Concurrent callers converge on one value.
func (s *LocalStorage) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("set %q if absent: %w", key, err)
	}

	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("set %q if absent: value vanished", key)
	}
	return stored, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every key.
func (s *LocalStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_storage`); err != nil {
		return fmt.Errorf("clear local storage: %w", err)
	}
	return nil
}
