package events

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// Handler applies one event. A nil return acknowledges it.
type Handler func(ctx context.Context, ev storage.Event) error

// Listener drains one topic, handing every event to the worker pool.
//
// Invariant: an event is acknowledged only after its handler returned nil,
// returned ErrMalformedPayload, or exhausted maxAttempts deliveries.
type Listener struct {
	topic       Topic
	bus         *Bus
	pool        *Pool
	handler     Handler
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewListener creates a Listener for topic.
//
// Precondition: maxAttempts >= 1; backoff > 0 is the pause after a failed read.
func NewListener(topic Topic, bus *Bus, pool *Pool, handler Handler, maxAttempts int, backoff time.Duration, logger *zap.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		topic:       topic,
		bus:         bus,
		pool:        pool,
		handler:     handler,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger.With(zap.String("topic", string(topic))),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start consumes the topic until Stop.
func (l *Listener) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("listener already started")
	}
	defer close(l.done)
	for {
		ev, err := l.bus.ConsumeNext(l.ctx, l.topic)
		if err != nil {
			if l.ctx.Err() != nil {
				return nil
			}
			l.logger.Error("reading event log", zap.Error(err))
			select {
			case <-l.ctx.Done():
				return nil
			case <-time.After(l.backoff):
			}
			continue
		}
		if ev.Attempts > l.maxAttempts {
			l.logger.Error("dropping event after repeated failures",
				zap.String("event_id", ev.ID),
				zap.Int("attempts", ev.Attempts),
			)
			l.ack(l.ctx, ev)
			continue
		}
		if err := l.pool.Submit(l.ctx, string(l.topic), func(ctx context.Context) error {
			return l.dispatch(ctx, ev)
		}); err != nil {
			// The lease lapses and the event is redelivered to whoever runs next.
			if l.ctx.Err() != nil || errors.Is(err, ErrPoolClosed) {
				return nil
			}
			l.logger.Error("queueing event", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
}

// Stop ends consumption and waits for Start to return.
func (l *Listener) Stop() {
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

func (l *Listener) dispatch(ctx context.Context, ev storage.Event) error {
	err := l.handler(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedPayload):
		l.logger.Error("discarding malformed event", zap.String("event_id", ev.ID), zap.Error(err))
	default:
		return err
	}
	l.ack(ctx, ev)
	return nil
}

func (l *Listener) ack(ctx context.Context, ev storage.Event) {
	if err := l.bus.Ack(ctx, ev.ID); err != nil {
		l.logger.Error("acknowledging event", zap.String("event_id", ev.ID), zap.Error(err))
	}
}
