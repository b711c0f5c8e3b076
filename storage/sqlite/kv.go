// Package sqlitestore keeps pending email changes in a local SQLite file.
// It is durable across restarts but only suitable for a single node.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/open-rails/emailchange/storage/sqlite/migrations"
)

// KV implements core.EphemeralStore on a single SQLite table.
// Expiry is stored as unix milliseconds; 0 means no expiry.
type KV struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*KV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &KV{db: db, now: time.Now}, nil
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("sqlite: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (k *KV) WithClock(now func() time.Time) *KV {
	if now != nil {
		k.now = now
	}
	return k
}

func (k *KV) Close() error { return k.db.Close() }

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := k.db.QueryRowContext(ctx, `SELECT value, expires_at FROM ephemeral_kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get: %w", err)
	}
	if expiresAt > 0 && k.now().UnixMilli() > expiresAt {
		if _, err := k.db.ExecContext(ctx, `DELETE FROM ephemeral_kv WHERE key = ? AND expires_at = ?`, key, expiresAt); err != nil {
			return nil, false, fmt.Errorf("sqlite: delete expired: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = k.now().Add(ttl).UnixMilli()
	}
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO ephemeral_kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlite: set: %w", err)
	}
	return nil
}

func (k *KV) Del(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM ephemeral_kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: del: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (k *KV) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := k.db.ExecContext(ctx, `DELETE FROM ephemeral_kv WHERE expires_at > 0 AND expires_at < ?`, k.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge: %w", err)
	}
	return res.RowsAffected()
}
