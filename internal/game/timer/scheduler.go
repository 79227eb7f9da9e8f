package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when scheduling on a stopped Scheduler.
var ErrStopped = errors.New("scheduler stopped")

// Func is a one-shot timer callback.
type Func func(ctx context.Context) error

// IntervalFunc is a countdown callback; remaining is the time left in the window.
type IntervalFunc func(ctx context.Context, remaining time.Duration) error

// Scheduler owns every pending timer of the process.
//
// Invariant: at most one timer is pending per key. Scheduling under a key
// that already has a pending timer cancels the old one first.
// Invariant: no callback starts after Cancel for its key has returned. A
// one-shot callback that already started keeps running; Cancel then reports
// false because nothing is pending.
// Callback errors and panics are logged and never reach the caller.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[Key]*entry
	gen     uint64
	stopped bool
}

type entry struct {
	gen  uint64
	stop Stopper
}

// NewScheduler creates a Scheduler.
//
// Precondition: clock and logger must be non-nil.
// Postcondition: Returns a Scheduler with no pending timers.
func NewScheduler(clock Clock, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[Key]*entry),
	}
}

// ScheduleOnce runs fn once after delay unless cancelled.
//
// Precondition: delay >= 0; fn must be non-nil.
// Postcondition: Any timer previously pending under key is cancelled.
func (s *Scheduler) ScheduleOnce(key Key, delay time.Duration, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	gen := s.replaceLocked(key)
	e := &entry{gen: gen}
	s.entries[key] = e
	e.stop = s.clock.AfterFunc(delay, func() {
		if !s.claim(key, gen, true) {
			return
		}
		s.run(key, func(ctx context.Context) error { return fn(ctx) })
	})
	return nil
}

// ScheduleInterval calls fn every tick with the time remaining in a window of
// length total, while more than one tick remains. A 15s window with a 5s tick
// calls fn with 10s and then 5s.
//
// Precondition: tick > 0; fn must be non-nil.
// Postcondition: Any timer previously pending under key is cancelled.
func (s *Scheduler) ScheduleInterval(key Key, total, tick time.Duration, fn IntervalFunc) error {
	if tick <= 0 {
		return fmt.Errorf("scheduling %s: tick must be > 0, got %s", key, tick)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	gen := s.replaceLocked(key)
	if total <= tick {
		return nil
	}
	e := &entry{gen: gen}
	s.entries[key] = e
	s.armIntervalLocked(key, e, total, tick, fn)
	return nil
}

func (s *Scheduler) armIntervalLocked(key Key, e *entry, remaining, tick time.Duration, fn IntervalFunc) {
	e.stop = s.clock.AfterFunc(tick, func() {
		left := remaining - tick
		last := left <= tick
		if !s.claim(key, e.gen, last) {
			return
		}
		s.run(key, func(ctx context.Context) error { return fn(ctx, left) })
		if last {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.entries[key]; ok && cur.gen == e.gen {
			s.armIntervalLocked(key, e, left, tick, fn)
		}
	})
}

// Cancel stops the timer pending under key.
//
// Postcondition: Returns true if a timer was pending. Calling it again, for a
// key that never had a timer, or for a one-shot whose callback already
// started, returns false.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.stop.Stop()
	delete(s.entries, key)
	return true
}

// Pending reports whether a timer is registered under key.
func (s *Scheduler) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start satisfies server.Service. Timers are armed as they are scheduled, so
// Start only blocks until Stop.
func (s *Scheduler) Start() error {
	<-s.ctx.Done()
	return nil
}

// Stop cancels every pending timer and rejects further scheduling. Callbacks
// already running see their context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for key, e := range s.entries {
		e.stop.Stop()
		delete(s.entries, key)
	}
	s.cancel()
}

// replaceLocked cancels the timer under key, if any, and returns a fresh generation.
func (s *Scheduler) replaceLocked(key Key) uint64 {
	if old, ok := s.entries[key]; ok {
		old.stop.Stop()
		delete(s.entries, key)
		s.logger.Debug("timer replaced", zap.String("timer", key.String()))
	}
	s.gen++
	return s.gen
}

// claim reports whether the firing timer is still the one registered under key.
// A final firing removes the registration.
func (s *Scheduler) claim(key Key, gen uint64, final bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		return false
	}
	if final {
		delete(s.entries, key)
	}
	return true
}

func (s *Scheduler) run(key Key, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer callback panicked",
				zap.String("timer", key.String()),
				zap.Any("panic", r),
			)
		}
	}()
	if err := fn(s.ctx); err != nil {
		s.logger.Error("timer callback failed",
			zap.String("timer", key.String()),
			zap.Error(err),
		)
	}
}
