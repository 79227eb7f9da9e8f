// Package memory provides in-process storage adapters for tests and
// single-process deployments. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

type item struct {
	value   []byte
	expires time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expires.IsZero() && !now.Before(i.expires)
}

type lock struct {
	token   string
	expires time.Time
}

// Store is an in-memory storage.Store.
type Store struct {
	now func() time.Time

	mu    sync.Mutex
	items map[string]item
	locks map[string]lock
}

// NewStore creates an empty Store. now supplies the time used for expiry;
// nil means time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:   now,
		items: make(map[string]item),
		locks: make(map[string]lock),
	}
}

// Get implements storage.KV.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || it.expired(s.now()) {
		delete(s.items, key)
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), it.value...), nil
}

// Set implements storage.KV.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = it
	return nil
}

// Delete implements storage.KV.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// TryLock implements storage.Locker.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (storage.Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if held, ok := s.locks[name]; ok && now.Before(held.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	s.locks[name] = lock{token: token, expires: now.Add(ttl)}
	return &lease{store: s, name: name, token: token}, true, nil
}

type lease struct {
	store *Store
	name  string
	token string
}

func (l *lease) Release(ctx context.Context) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.locks[l.name]
	if !ok || held.token != l.token {
		return storage.ErrLockLost
	}
	delete(s.locks, l.name)
	return nil
}
