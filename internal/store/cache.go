package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (db *DB) GetCache(ctx context.Context, key string) ([]byte, error) {
	type cacheRow struct {
		ExpiresAt sql.NullTime `db:"expires_at"`
		Data      []byte       `db:"data"`
	}

	var row cacheRow
	err := db.GetContext(ctx, &row, "SELECT data, expires_at FROM cache WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if row.ExpiresAt.Valid && now().After(row.ExpiresAt.Time) {
		_, _ = db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
		return nil, nil
	}

	return row.Data, nil
}

func (db *DB) SetCache(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := now().Add(ttl)
		expiresAt = &t
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO cache (key, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, key, data, expiresAt)
	return err
}

func (db *DB) PurgeExpiredCache(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?", now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
