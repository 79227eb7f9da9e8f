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

// Append implements storage.EventLog.
func (s *Store) Append(ctx context.Context, topic string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO game_events (id, topic, payload, created_at) VALUES (?, ?, ?, ?)
`, id, topic, payload, s.nowMillis())
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", topic, err)
	}
	return id, nil
}

// Next implements storage.EventLog by polling until an event can be leased.
func (s *Store) Next(ctx context.Context, topic string) (storage.Event, error) {
	for {
		ev, ok, err := s.lease(ctx, topic)
		if err != nil {
			return storage.Event{}, err
		}
		if ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return storage.Event{}, ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Store) lease(ctx context.Context, topic string) (storage.Event, bool, error) {
	now := s.nowMillis()
	var (
		ev      storage.Event
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
UPDATE game_events
SET attempts = attempts + 1, leased_by = ?, lease_until = ?
WHERE seq = (
	SELECT seq FROM game_events
	WHERE topic = ? AND (lease_until IS NULL OR lease_until <= ?)
	ORDER BY seq
	LIMIT 1
)
RETURNING id, topic, payload, attempts, created_at
`, s.opts.Consumer, now+s.opts.LeaseTTL.Milliseconds(), topic, now).Scan(&ev.ID, &ev.Topic, &ev.Payload, &ev.Attempts, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Event{}, false, nil
		}
		return storage.Event{}, false, fmt.Errorf("lease from %s: %w", topic, err)
	}
	ev.CreatedAt = time.UnixMilli(created).UTC()
	return ev, true, nil
}

// Ack implements storage.EventLog.
func (s *Store) Ack(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM game_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}
