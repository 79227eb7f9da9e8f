// Package events carries game triggers between the timers, the services that
// raise them, and the listeners that apply them to sessions: a typed bus over
// the durable event log, one listener per topic, and the worker pool that
// runs every handler.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

// Topic names one event log stream.
type Topic string

const (
	// TopicLobbyStarted fires when a lobby countdown ends and the game should be created.
	TopicLobbyStarted Topic = "lobby-started"
	// TopicDealerDue fires when the turn cursor runs past the last player.
	TopicDealerDue Topic = "dealer-due"
	// TopicGameEnding fires when the hand is over and settlement is due.
	TopicGameEnding Topic = "game-ending"
)

// Topics lists every topic a process must listen on.
var Topics = []Topic{TopicLobbyStarted, TopicDealerDue, TopicGameEnding}

// ErrMalformedPayload marks an event that can never be handled. Listeners
// acknowledge such events instead of letting them be redelivered.
var ErrMalformedPayload = errors.New("malformed event payload")

// LobbyStarted is the payload of TopicLobbyStarted.
type LobbyStarted struct {
	Lobby lobby.Lobby `json:"lobby"`
}

// DealerDue is the payload of TopicDealerDue.
type DealerDue struct {
	Room   int64                  `json:"room"`
	Action blackjack.DealerAction `json:"action"`
}

// GameEnding is the payload of TopicGameEnding.
type GameEnding struct {
	Room int64 `json:"room"`
	// Reason is empty for a hand that played out.
	Reason string `json:"reason,omitempty"`
}

// Decode unmarshals the payload of ev into T.
//
// Postcondition: A decoding failure wraps ErrMalformedPayload.
func Decode[T any](ev storage.Event) (T, error) {
	var v T
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: event %s on %s: %v", ErrMalformedPayload, ev.ID, ev.Topic, err)
	}
	return v, nil
}

// Handle adapts a typed handler into a Handler that decodes the payload first.
func Handle[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, ev storage.Event) error {
		payload, err := Decode[T](ev)
		if err != nil {
			return err
		}
		return fn(ctx, payload)
	}
}
