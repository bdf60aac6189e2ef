package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type ConfigEntry struct {
	Key       string
	Value     string
	Version   int
	UpdatedBy string
	UpdatedAt time.Time
}

func (s *Store) GetConfig(ctx context.Context, key string) (*ConfigEntry, error) {
	entry, err := getConfig(ctx, s.db.QueryRowContext, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("config %s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return entry, nil
}

// SetConfig writes value under key and bumps its version. previous is nil when
// the key did not exist before.
func (s *Store) SetConfig(ctx context.Context, key, value, actor string) (previous *ConfigEntry, current *ConfigEntry, err error) {
	now := s.timestamp()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := getConfig(ctx, tx.QueryRowContext, key)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			prev = nil
		case err != nil:
			return err
		}
		version := 1
		if prev != nil {
			version = prev.Version + 1
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO app_config (key, value, version, updated_by, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	version = excluded.version,
	updated_by = excluded.updated_by,
	updated_at = excluded.updated_at
`, key, value, version, nullIfEmpty(actor), now)
		if err != nil {
			return err
		}
		previous = prev
		current = &ConfigEntry{Key: key, Value: value, Version: version, UpdatedBy: actor, UpdatedAt: parseTime(now)}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("set config %s: %w", key, err)
	}
	return previous, current, nil
}

func (s *Store) ListConfig(ctx context.Context) ([]ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, version, updated_by, updated_at FROM app_config ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ConfigEntry{}
	for rows.Next() {
		entry, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func getConfig(ctx context.Context, queryRow queryRowFunc, key string) (*ConfigEntry, error) {
	row := queryRow(ctx, `SELECT key, value, version, updated_by, updated_at FROM app_config WHERE key = ?`, key)
	return scanConfig(row)
}

func scanConfig(row rowScanner) (*ConfigEntry, error) {
	var entry ConfigEntry
	var updatedBy sql.NullString
	var updatedAt string
	if err := row.Scan(&entry.Key, &entry.Value, &entry.Version, &updatedBy, &updatedAt); err != nil {
		return nil, err
	}
	entry.UpdatedBy = updatedBy.String
	entry.UpdatedAt = parseTime(updatedAt)
	return &entry, nil
}
