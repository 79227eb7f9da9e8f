// Package storage defines the persistence contracts of the game server: a
// key-value store with expiring entries, room-scoped leases, account balances,
// and a per-topic event log. Adapters live in the memory, sqlite, and postgres
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key, account, or event does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout is returned when a lease cannot be acquired before the acquire timeout.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrLockLost is returned when releasing a lease that already expired and was taken over.
	ErrLockLost = errors.New("lock lost")
	// ErrInsufficientFunds is returned when a debit would make a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// KV is a byte-oriented key-value store. Expired entries behave as absent.
type KV interface {
	// Get returns ErrNotFound when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Lease is a held lock.
type Lease interface {
	// Release gives up the lease. It returns ErrLockLost if the hold ceiling
	// elapsed and another holder took the lock.
	Release(ctx context.Context) error
}

// Locker grants named leases. A lease expires on its own after ttl, which
// bounds how long a crashed or stuck holder can block others.
type Locker interface {
	// TryLock attempts to take name once. ok is false when it is held by someone else.
	TryLock(ctx context.Context, name string, ttl time.Duration) (lease Lease, ok bool, err error)
}

// Store is the combined key-value and lock backend used by the repositories.
type Store interface {
	KV
	Locker
}

// Account is one user's wallet.
type Account struct {
	UserID    int64
	Name      string
	Balance   int64
	CreatedAt time.Time
	// LastBonusAt is zero until the first bonus is claimed.
	LastBonusAt time.Time
}

// AccountStore keeps balances. Amounts and bonus terms are handed in by the
// caller; the store only enforces them atomically.
type AccountStore interface {
	// Open returns the user's account, creating it with initial balance if absent.
	Open(ctx context.Context, userID int64, name string, initial int64) (Account, error)
	// Balance returns ErrNotFound for unknown users.
	Balance(ctx context.Context, userID int64) (int64, error)
	// Adjust adds delta to the balance and returns the new balance. A result
	// below zero is rejected with ErrInsufficientFunds and nothing changes.
	Adjust(ctx context.Context, userID int64, delta int64) (int64, error)
	// ApplyPayouts credits every amount in one transaction, recorded under
	// settlementID. applied is false when settlementID was applied before.
	ApplyPayouts(ctx context.Context, settlementID string, credits map[int64]int64) (applied bool, err error)
	// Top returns up to n accounts by balance, highest first; ties go to the
	// lower user id.
	Top(ctx context.Context, n int) ([]Account, error)
	// ClaimBonus credits terms.Amount when terms.Check allows it at now and
	// records now as the last claim, both in one transaction.
	ClaimBonus(ctx context.Context, userID int64, terms BonusTerms, now time.Time) (BonusClaim, error)
}

// Event is one entry of a topic log.
type Event struct {
	ID        string
	Topic     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// EventLog is a durable append-only log per topic with at-least-once delivery.
// A consumed event is leased to the consumer and redelivered once the lease
// expires without an Ack.
type EventLog interface {
	// Append adds payload to topic and returns the new event id.
	Append(ctx context.Context, topic string, payload []byte) (string, error)
	// Next blocks until an unleased event is available on topic or ctx is done.
	Next(ctx context.Context, topic string) (Event, error)
	// Ack removes the event. Acking an unknown id is not an error.
	Ack(ctx context.Context, id string) error
}
