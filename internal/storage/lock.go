package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LockOptions bound lock acquisition and holding.
type LockOptions struct {
	// AcquireTimeout is how long Acquire keeps retrying.
	AcquireTimeout time.Duration
	// Hold is the lease ttl; the lock frees itself after this long.
	Hold time.Duration
	// Retry is the pause between attempts.
	Retry time.Duration
}

// DefaultLockOptions matches the room lock of the chat bot: five seconds to
// acquire, three seconds of hold.
func DefaultLockOptions() LockOptions {
	return LockOptions{AcquireTimeout: 5 * time.Second, Hold: 3 * time.Second, Retry: 25 * time.Millisecond}
}

// Acquire retries TryLock until it succeeds or the acquire timeout elapses.
//
// Precondition: opts.Hold > 0 and opts.Retry > 0.
// Postcondition: Returns a held Lease, ErrLockTimeout, or the locker's error.
// Cancellation of ctx is returned as ctx.Err().
func Acquire(ctx context.Context, l Locker, name string, opts LockOptions) (Lease, error) {
	actx, cancel := context.WithTimeout(ctx, opts.AcquireTimeout)
	defer cancel()
	for {
		lease, ok, err := l.TryLock(actx, name, opts.Hold)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
			}
			return nil, fmt.Errorf("locking %s: %w", name, err)
		}
		if ok {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-actx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
		case <-time.After(opts.Retry):
		}
	}
}
