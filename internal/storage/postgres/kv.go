package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// KV implements storage.Store on the kv_entries and room_locks tables.
type KV struct {
	db *pgxpool.Pool
}

// NewKV creates a KV backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the schema migrated.
func NewKV(db *pgxpool.Pool) *KV {
	return &KV{db: db}
}

// Get implements storage.KV.
func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRow(ctx,
		`SELECT value FROM kv_entries
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying key %q: %w", key, err)
	}
	return value, nil
}

// Set implements storage.KV.
func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := k.db.Exec(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, $2, CASE WHEN $3::BIGINT > 0 THEN NOW() + $3::BIGINT * INTERVAL '1 millisecond' END)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, millis(ttl),
	)
	if err != nil {
		return fmt.Errorf("storing key %q: %w", key, err)
	}
	return nil
}

// Delete implements storage.KV.
func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// Sweep deletes expired entries and locks, returning how many rows were removed.
func (k *KV) Sweep(ctx context.Context) (int64, error) {
	entries, err := k.db.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweeping entries: %w", err)
	}
	locks, err := k.db.Exec(ctx, `DELETE FROM room_locks WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweeping locks: %w", err)
	}
	return entries.RowsAffected() + locks.RowsAffected(), nil
}

// TryLock implements storage.Locker. A lock row whose expiry has passed is
// taken over in the same statement.
func (k *KV) TryLock(ctx context.Context, name string, ttl time.Duration) (storage.Lease, bool, error) {
	token := uuid.NewString()
	var got string
	err := k.db.QueryRow(ctx,
		`INSERT INTO room_locks (name, token, expires_at)
		 VALUES ($1, $2, NOW() + $3::BIGINT * INTERVAL '1 millisecond')
		 ON CONFLICT (name) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
		 WHERE room_locks.expires_at <= NOW()
		 RETURNING token`,
		name, token, millis(ttl),
	).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("locking %q: %w", name, err)
	}
	return &lease{db: k.db, name: name, token: token}, true, nil
}

type lease struct {
	db    *pgxpool.Pool
	name  string
	token string
}

func (l *lease) Release(ctx context.Context) error {
	tag, err := l.db.Exec(ctx, `DELETE FROM room_locks WHERE name = $1 AND token = $2`, l.name, l.token)
	if err != nil {
		return fmt.Errorf("unlocking %q: %w", l.name, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrLockLost
	}
	return nil
}
