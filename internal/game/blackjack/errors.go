package blackjack

import (
	"errors"

	"github.com/cory-johannsen/blackjack/internal/game/card"
)

// Rule violations returned by Session operations. None of them mutate the session.
var (
	// ErrPlayerNotFound is returned when an operation names a player that is not seated at the table.
	ErrPlayerNotFound = errors.New("player not in this game")
	// ErrAnotherPlayerTurn is returned when a player acts out of turn.
	ErrAnotherPlayerTurn = errors.New("not your turn")
	// ErrDeckExhausted is returned when a draw is attempted on an empty deck.
	ErrDeckExhausted = card.ErrDeckExhausted
	// ErrBiddingClosed is returned for bids placed after betting closed or by an excluded player.
	ErrBiddingClosed = errors.New("bidding is closed")
	// ErrAlreadyBid is returned when a player bids a second time; the first bid is final.
	ErrAlreadyBid = errors.New("bid already placed")
	// ErrInvalidBid is returned for bids outside the table limits.
	ErrInvalidBid = errors.New("invalid bid")
	// ErrWrongPhase is returned when an operation does not apply to the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrAlreadySettled is returned when Settle is called a second time.
	ErrAlreadySettled = errors.New("session already settled")
	// ErrNoPlayers is returned when a session is created without players.
	ErrNoPlayers = errors.New("session requires at least one player")
	// ErrTooManyPlayers is returned when a session exceeds the table size.
	ErrTooManyPlayers = errors.New("too many players")
	// ErrDuplicatePlayer is returned when the same player id is seated twice.
	ErrDuplicatePlayer = errors.New("duplicate player")
)

// IsRuleViolation reports whether err is a recoverable rule violation that the
// messaging layer should surface to the user rather than log as a failure.
func IsRuleViolation(err error) bool {
	for _, target := range []error{
		ErrPlayerNotFound, ErrAnotherPlayerTurn, ErrBiddingClosed,
		ErrAlreadyBid, ErrInvalidBid, ErrWrongPhase, ErrAlreadySettled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
