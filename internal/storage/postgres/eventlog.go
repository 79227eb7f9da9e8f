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

// EventLog implements storage.EventLog on the game_events table. Consumers
// lease rows with FOR UPDATE SKIP LOCKED, so several processes can share a topic.
type EventLog struct {
	db           *pgxpool.Pool
	consumer     string
	leaseTTL     time.Duration
	pollInterval time.Duration
}

// NewEventLog creates an EventLog.
//
// Precondition: leaseTTL > 0 and pollInterval > 0; consumer identifies this process.
func NewEventLog(db *pgxpool.Pool, consumer string, leaseTTL, pollInterval time.Duration) *EventLog {
	return &EventLog{db: db, consumer: consumer, leaseTTL: leaseTTL, pollInterval: pollInterval}
}

// Append implements storage.EventLog.
func (l *EventLog) Append(ctx context.Context, topic string, payload []byte) (string, error) {
	id := uuid.NewString()
	if _, err := l.db.Exec(ctx,
		`INSERT INTO game_events (id, topic, payload) VALUES ($1, $2, $3)`,
		id, topic, payload,
	); err != nil {
		return "", fmt.Errorf("appending to %s: %w", topic, err)
	}
	return id, nil
}

// Next implements storage.EventLog by polling until an event can be leased.
func (l *EventLog) Next(ctx context.Context, topic string) (storage.Event, error) {
	for {
		ev, ok, err := l.lease(ctx, topic)
		if err != nil {
			return storage.Event{}, err
		}
		if ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return storage.Event{}, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *EventLog) lease(ctx context.Context, topic string) (storage.Event, bool, error) {
	var ev storage.Event
	err := l.db.QueryRow(ctx,
		`UPDATE game_events
		 SET attempts = attempts + 1, leased_by = $2, lease_until = NOW() + $3::BIGINT * INTERVAL '1 millisecond'
		 WHERE seq = (
		     SELECT seq FROM game_events
		     WHERE topic = $1 AND (lease_until IS NULL OR lease_until <= NOW())
		     ORDER BY seq
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, topic, payload, attempts, created_at`,
		topic, l.consumer, millis(l.leaseTTL),
	).Scan(&ev.ID, &ev.Topic, &ev.Payload, &ev.Attempts, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Event{}, false, nil
		}
		return storage.Event{}, false, fmt.Errorf("leasing from %s: %w", topic, err)
	}
	return ev, true, nil
}

// Ack implements storage.EventLog.
func (l *EventLog) Ack(ctx context.Context, id string) error {
	if _, err := l.db.Exec(ctx, `DELETE FROM game_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("acking %s: %w", id, err)
	}
	return nil
}
