package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

type entry struct {
	event      storage.Event
	leaseUntil time.Time
}

// EventLog is an in-memory storage.EventLog. Unacked events are redelivered
// after the lease ttl, like the durable adapters.
type EventLog struct {
	leaseTTL time.Duration
	now      func() time.Time

	mu     sync.Mutex
	topics map[string][]*entry
	notify chan struct{}
}

// NewEventLog creates an empty EventLog.
//
// Precondition: leaseTTL > 0.
func NewEventLog(leaseTTL time.Duration) *EventLog {
	return &EventLog{
		leaseTTL: leaseTTL,
		now:      time.Now,
		topics:   make(map[string][]*entry),
		notify:   make(chan struct{}),
	}
}

// Append implements storage.EventLog.
func (l *EventLog) Append(ctx context.Context, topic string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := storage.Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: l.now().UTC(),
	}
	l.topics[topic] = append(l.topics[topic], &entry{event: ev})
	close(l.notify)
	l.notify = make(chan struct{})
	return ev.ID, nil
}

// Next implements storage.EventLog.
func (l *EventLog) Next(ctx context.Context, topic string) (storage.Event, error) {
	for {
		l.mu.Lock()
		now := l.now()
		var wait time.Duration
		for _, e := range l.topics[topic] {
			if now.Before(e.leaseUntil) {
				if d := e.leaseUntil.Sub(now); wait == 0 || d < wait {
					wait = d
				}
				continue
			}
			e.leaseUntil = now.Add(l.leaseTTL)
			e.event.Attempts++
			ev := e.event
			l.mu.Unlock()
			return ev, nil
		}
		notify := l.notify
		l.mu.Unlock()

		var (
			t      *time.Timer
			expiry <-chan time.Time
		)
		if wait > 0 {
			t = time.NewTimer(wait)
			expiry = t.C
		}
		select {
		case <-ctx.Done():
			err := ctx.Err()
			if t != nil {
				t.Stop()
			}
			return storage.Event{}, err
		case <-notify:
		case <-expiry:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// Ack implements storage.EventLog.
func (l *EventLog) Ack(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for topic, entries := range l.topics {
		for i, e := range entries {
			if e.event.ID == id {
				l.topics[topic] = append(entries[:i], entries[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// Len returns the number of unacked events on topic.
func (l *EventLog) Len(topic string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.topics[topic])
}
