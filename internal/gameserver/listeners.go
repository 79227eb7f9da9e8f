package gameserver

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/events"
)

// NewListeners returns one listener per topic, each dispatching to games.
//
// Precondition: maxAttempts >= 1; backoff > 0.
func NewListeners(bus *events.Bus, pool *events.Pool, games *GameService, maxAttempts int, backoff time.Duration, logger *zap.Logger) map[events.Topic]*events.Listener {
	handlers := map[events.Topic]events.Handler{
		events.TopicLobbyStarted: events.Handle(games.HandleLobbyStarted),
		events.TopicDealerDue:    events.Handle(games.HandleDealerDue),
		events.TopicGameEnding:   events.Handle(games.HandleGameEnding),
	}
	out := make(map[events.Topic]*events.Listener, len(handlers))
	for _, topic := range events.Topics {
		out[topic] = events.NewListener(topic, bus, pool, handlers[topic], maxAttempts, backoff, logger)
	}
	return out
}
