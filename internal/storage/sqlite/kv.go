package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// Get implements storage.KV.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT value FROM kv_entries
WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
`, key, s.nowMillis()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set implements storage.KV.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: s.nowMillis() + ttl.Milliseconds(), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
`, key, value, expires)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete implements storage.KV.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// TryLock implements storage.Locker.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (storage.Lease, bool, error) {
	now := s.nowMillis()
	token := uuid.NewString()
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO room_locks (name, token, expires_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
WHERE room_locks.expires_at <= ?
`, name, token, now+ttl.Milliseconds(), now)
	if err != nil {
		return nil, false, fmt.Errorf("lock %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("lock %q: %w", name, err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return &lease{store: s, name: name, token: token}, true, nil
}

type lease struct {
	store *Store
	name  string
	token string
}

func (l *lease) Release(ctx context.Context) error {
	res, err := l.store.sqlDB.ExecContext(ctx, `DELETE FROM room_locks WHERE name = ? AND token = ?`, l.name, l.token)
	if err != nil {
		return fmt.Errorf("unlock %q: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock %q: %w", l.name, err)
	}
	if n == 0 {
		return storage.ErrLockLost
	}
	return nil
}
