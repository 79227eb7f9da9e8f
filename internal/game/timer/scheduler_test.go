package timer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/blackjack/internal/game/timer"
	"github.com/cory-johannsen/blackjack/internal/testutil"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) (*timer.Scheduler, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(start)
	s := timer.NewScheduler(clock, zaptest.NewLogger(t))
	t.Cleanup(s.Stop)
	return s, clock
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "lobby:-100", timer.LobbyKey(-100).String())
	assert.Equal(t, "lobby:interval:-100", timer.LobbyIntervalKey(-100).String())
	assert.Equal(t, "game:bid:-100", timer.BidKey(-100).String())
	assert.Equal(t, "game:turn:-100:42", timer.TurnKey(-100, 42).String())
	assert.Equal(t, "game:dealer:-100", timer.DealerKey(-100).String())
}

func TestScheduleOnce_Fires(t *testing.T) {
	s, clock := newScheduler(t)
	var called atomic.Int32
	require.NoError(t, s.ScheduleOnce(timer.BidKey(1), 30*time.Second, func(ctx context.Context) error {
		called.Add(1)
		return nil
	}))
	assert.True(t, s.Pending(timer.BidKey(1)))

	clock.Advance(29 * time.Second)
	assert.Equal(t, int32(0), called.Load())
	clock.Advance(time.Second)
	assert.Equal(t, int32(1), called.Load())
	assert.False(t, s.Pending(timer.BidKey(1)))

	clock.Advance(time.Minute)
	assert.Equal(t, int32(1), called.Load())
}

func TestCancel_PreventsCallbackAndIsIdempotent(t *testing.T) {
	s, clock := newScheduler(t)
	var called atomic.Int32
	key := timer.TurnKey(1, 7)
	require.NoError(t, s.ScheduleOnce(key, time.Second, func(ctx context.Context) error {
		called.Add(1)
		return nil
	}))

	assert.True(t, s.Cancel(key))
	assert.False(t, s.Cancel(key))
	assert.False(t, s.Cancel(timer.TurnKey(1, 8)))
	clock.Advance(time.Minute)
	assert.Equal(t, int32(0), called.Load())
	assert.Zero(t, clock.Pending())
}

func TestCancel_AfterFireReturnsFalse(t *testing.T) {
	s, clock := newScheduler(t)
	key := timer.BidKey(2)
	require.NoError(t, s.ScheduleOnce(key, time.Second, func(ctx context.Context) error { return nil }))
	clock.Advance(time.Second)
	assert.False(t, s.Cancel(key))
}

func TestScheduleOnce_ReplacesExisting(t *testing.T) {
	s, clock := newScheduler(t)
	key := timer.TurnKey(1, 7)
	var first, second atomic.Int32
	require.NoError(t, s.ScheduleOnce(key, time.Second, func(ctx context.Context) error {
		first.Add(1)
		return nil
	}))
	require.NoError(t, s.ScheduleOnce(key, 2*time.Second, func(ctx context.Context) error {
		second.Add(1)
		return nil
	}))
	assert.Equal(t, 1, s.Len())

	clock.Advance(3 * time.Second)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestScheduleInterval_ReportsRemaining(t *testing.T) {
	s, clock := newScheduler(t)
	var got []time.Duration
	key := timer.LobbyIntervalKey(1)
	require.NoError(t, s.ScheduleInterval(key, 15*time.Second, 5*time.Second, func(ctx context.Context, remaining time.Duration) error {
		got = append(got, remaining)
		return nil
	}))

	clock.Advance(time.Minute)
	assert.Equal(t, []time.Duration{10 * time.Second, 5 * time.Second}, got)
	assert.False(t, s.Pending(key))
}

func TestScheduleInterval_CancelMidway(t *testing.T) {
	s, clock := newScheduler(t)
	var got []time.Duration
	key := timer.LobbyIntervalKey(1)
	require.NoError(t, s.ScheduleInterval(key, 30*time.Second, 5*time.Second, func(ctx context.Context, remaining time.Duration) error {
		got = append(got, remaining)
		return nil
	}))

	clock.Advance(11 * time.Second)
	assert.True(t, s.Cancel(key))
	clock.Advance(time.Minute)
	assert.Equal(t, []time.Duration{25 * time.Second, 20 * time.Second}, got)
}

func TestScheduleInterval_ShortWindowNeverTicks(t *testing.T) {
	s, clock := newScheduler(t)
	called := false
	require.NoError(t, s.ScheduleInterval(timer.LobbyIntervalKey(1), 5*time.Second, 5*time.Second, func(ctx context.Context, remaining time.Duration) error {
		called = true
		return nil
	}))
	clock.Advance(time.Minute)
	assert.False(t, called)
	assert.Error(t, s.ScheduleInterval(timer.LobbyIntervalKey(1), time.Minute, 0, nil))
}

func TestCallbackFailure_IsLoggedNotPropagated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	clock := testutil.NewFakeClock(start)
	s := timer.NewScheduler(clock, zap.New(core))
	defer s.Stop()

	require.NoError(t, s.ScheduleOnce(timer.BidKey(1), time.Second, func(ctx context.Context) error {
		return errors.New("store unavailable")
	}))
	require.NoError(t, s.ScheduleOnce(timer.BidKey(2), time.Second, func(ctx context.Context) error {
		panic("boom")
	}))
	var ok atomic.Bool
	require.NoError(t, s.ScheduleOnce(timer.BidKey(3), time.Second, func(ctx context.Context) error {
		ok.Store(true)
		return nil
	}))

	clock.Advance(time.Second)
	assert.True(t, ok.Load())
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "timer callback failed", logs.All()[0].Message)
	assert.Equal(t, "game:bid:1", logs.All()[0].ContextMap()["timer"])
	assert.Equal(t, "timer callback panicked", logs.All()[1].Message)
}

func TestStop_CancelsAllAndRejects(t *testing.T) {
	clock := testutil.NewFakeClock(start)
	s := timer.NewScheduler(clock, zaptest.NewLogger(t))
	called := false
	require.NoError(t, s.ScheduleOnce(timer.BidKey(1), time.Second, func(ctx context.Context) error {
		called = true
		return nil
	}))

	done := make(chan struct{})
	go func() {
		_ = s.Start()
		close(done)
	}()
	s.Stop()
	s.Stop()
	<-done

	clock.Advance(time.Minute)
	assert.False(t, called)
	assert.Zero(t, s.Len())
	assert.ErrorIs(t, s.ScheduleOnce(timer.BidKey(1), time.Second, func(ctx context.Context) error { return nil }), timer.ErrStopped)
}

func TestRealClock_Fires(t *testing.T) {
	s := timer.NewScheduler(timer.RealClock{}, zaptest.NewLogger(t))
	defer s.Stop()
	fired := make(chan struct{})
	require.NoError(t, s.ScheduleOnce(timer.BidKey(1), 10*time.Millisecond, func(ctx context.Context) error {
		close(fired)
		return nil
	}))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

// Cancel cannot reach a one-shot callback that has already started; it only
// keeps callbacks from starting.
func TestCancel_DuringRunningCallback(t *testing.T) {
	s := timer.NewScheduler(timer.RealClock{}, zaptest.NewLogger(t))
	t.Cleanup(s.Stop)
	key := timer.TurnKey(-100, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.ScheduleOnce(key, time.Millisecond, func(context.Context) error {
		close(started)
		<-release
		close(finished)
		return nil
	}))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never started")
	}
	assert.False(t, s.Cancel(key))
	assert.False(t, s.Pending(key))
	close(release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("running callback was interrupted")
	}
}

func TestProperty_AtMostOnePendingPerKey(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clock := testutil.NewFakeClock(start)
		s := timer.NewScheduler(clock, zap.NewNop())
		defer s.Stop()

		fired := map[timer.Key]int{}
		live := map[timer.Key]bool{}
		keys := []timer.Key{timer.BidKey(1), timer.TurnKey(1, 1), timer.TurnKey(1, 2)}
		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			key := rapid.SampledFrom(keys).Draw(rt, "key")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				k := key
				_ = s.ScheduleOnce(k, time.Duration(rapid.IntRange(1, 10).Draw(rt, "delay"))*time.Second, func(ctx context.Context) error {
					fired[k]++
					return nil
				})
				live[k] = true
			case 1:
				if got := s.Cancel(key); got != live[key] {
					rt.Fatalf("Cancel(%s) = %v, pending %v", key, got, live[key])
				}
				live[key] = false
			case 2:
				clock.Advance(time.Duration(rapid.IntRange(1, 5).Draw(rt, "advance")) * time.Second)
				for k := range live {
					if live[k] && !s.Pending(k) {
						live[k] = false
					}
				}
			}
			if s.Len() > len(keys) {
				rt.Fatalf("%d timers pending for %d keys", s.Len(), len(keys))
			}
		}
	})
}
