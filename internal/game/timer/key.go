// Package timer schedules room-scoped one-shot and countdown callbacks,
// addressed by a composite key so that a pending timer can be cancelled the
// moment the action it is waiting for arrives.
package timer

import "fmt"

// Kind names the action window a timer guards.
type Kind string

const (
	// KindLobby fires when the lobby countdown expires and the game starts.
	KindLobby Kind = "lobby"
	// KindLobbyInterval narrates the lobby countdown.
	KindLobbyInterval Kind = "lobby:interval"
	// KindBid fires when the betting window closes.
	KindBid Kind = "game:bid"
	// KindTurn fires when a player fails to act on their turn.
	KindTurn Kind = "game:turn"
	// KindDealer re-raises a dealer or ending event whose publish failed.
	KindDealer Kind = "game:dealer"
)

// Key addresses one timer. Subject is zero for room-wide timers.
type Key struct {
	Kind    Kind
	Room    int64
	Subject int64
}

// String renders the key as "kind:room" or "kind:room:subject".
func (k Key) String() string {
	if k.Subject == 0 {
		return fmt.Sprintf("%s:%d", k.Kind, k.Room)
	}
	return fmt.Sprintf("%s:%d:%d", k.Kind, k.Room, k.Subject)
}

// LobbyKey addresses the lobby start timer of a room.
func LobbyKey(room int64) Key { return Key{Kind: KindLobby, Room: room} }

// LobbyIntervalKey addresses the lobby countdown narration of a room.
func LobbyIntervalKey(room int64) Key { return Key{Kind: KindLobbyInterval, Room: room} }

// BidKey addresses the betting window of a room.
func BidKey(room int64) Key { return Key{Kind: KindBid, Room: room} }

// TurnKey addresses one player's turn window.
func TurnKey(room, player int64) Key { return Key{Kind: KindTurn, Room: room, Subject: player} }

// DealerKey addresses the dealer event retry of a room.
func DealerKey(room int64) Key { return Key{Kind: KindDealer, Room: room} }
