package server_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/blackjack/internal/server"
)

// blocking starts, records the order of Stop calls, and returns from Start once stopped.
type blocking struct {
	name    string
	started chan struct{}
	stop    chan struct{}
	once    sync.Once
	order   *[]string
	mu      *sync.Mutex
}

func newBlocking(name string, order *[]string, mu *sync.Mutex) *blocking {
	return &blocking{name: name, started: make(chan struct{}), stop: make(chan struct{}), order: order, mu: mu}
}

func (b *blocking) Start() error {
	close(b.started)
	<-b.stop
	return nil
}

func (b *blocking) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		*b.order = append(*b.order, b.name)
		b.mu.Unlock()
		close(b.stop)
	})
}

func run(t *testing.T, lc *server.Lifecycle, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
		return nil
	}
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	lc := server.NewLifecycle(zaptest.NewLogger(t), time.Second)
	first := newBlocking("pool", &order, &mu)
	second := newBlocking("listener", &order, &mu)
	lc.Add(first.name, first)
	lc.Add(second.name, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(t, lc, ctx)
	<-first.started
	<-second.started
	cancel()

	require.NoError(t, wait(t, done))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"listener", "pool"}, order)
}

func TestLifecycle_FailureStopsEverything(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	lc := server.NewLifecycle(zaptest.NewLogger(t), time.Second)
	healthy := newBlocking("pool", &order, &mu)
	boom := errors.New("listener broke")
	lc.Add(healthy.name, healthy)
	lc.Add("listener", &server.FuncService{
		StartFn: func() error {
			<-healthy.started
			return boom
		},
		StopFn: func() {},
	})

	err := wait(t, run(t, lc, context.Background()))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "service listener")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pool"}, order)
}

func TestLifecycle_WarnsOnSlowStop(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	lc := server.NewLifecycle(zap.New(core), 20*time.Millisecond)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	started := make(chan struct{})
	lc.Add("stuck", &server.FuncService{
		StartFn: func() error {
			close(started)
			<-release
			return nil
		},
		StopFn: func() {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := run(t, lc, ctx)
	<-started
	cancel()
	require.NoError(t, wait(t, done))
	require.Equal(t, 1, logs.FilterMessage("service did not stop in time").Len())
}

func TestOnStop_RunsHookOnce(t *testing.T) {
	calls := 0
	svc := server.OnStop(func() { calls++ })
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	svc.Stop()
	svc.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
}
