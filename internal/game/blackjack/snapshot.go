package blackjack

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/blackjack/internal/game/card"
)

// Snapshot is the persisted form of a Session. Players are stored in turn
// order so that join order survives encodings without ordered maps.
type Snapshot struct {
	ID                 string      `json:"id"`
	Room               int64       `json:"room"`
	Players            []Player    `json:"players"`
	TurnOrder          []int64     `json:"turn_order"`
	CurrentPlayerIndex int         `json:"current_player_index"`
	Dealer             Dealer      `json:"dealer"`
	Deck               []card.Card `json:"deck"`
	CreatedAt          time.Time   `json:"created_at"`
	Round              int         `json:"round"`
	Phase              Phase       `json:"phase"`
	Rules              Rules       `json:"rules"`
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:                 s.id,
		Room:               s.room,
		Players:            make([]Player, 0, len(s.turnOrder)),
		TurnOrder:          append([]int64(nil), s.turnOrder...),
		CurrentPlayerIndex: s.cursor,
		Dealer:             s.dealer.clone(),
		Deck:               append([]card.Card(nil), s.deck...),
		CreatedAt:          s.createdAt,
		Round:              s.round,
		Phase:              s.phase,
		Rules:              s.rules,
	}
	for _, id := range s.turnOrder {
		snap.Players = append(snap.Players, s.players[id].clone())
	}
	return snap
}

// Restore rebuilds a Session from a snapshot.
//
// Postcondition: Returns an error when the snapshot is internally inconsistent.
func Restore(snap Snapshot) (*Session, error) {
	if len(snap.Players) == 0 {
		return nil, ErrNoPlayers
	}
	if len(snap.Players) != len(snap.TurnOrder) {
		return nil, fmt.Errorf("restoring session %s: %d players, %d turn entries", snap.ID, len(snap.Players), len(snap.TurnOrder))
	}
	if !snap.Phase.Valid() {
		return nil, fmt.Errorf("restoring session %s: unknown phase %q", snap.ID, snap.Phase)
	}
	if snap.Round != 1 && snap.Round != 2 {
		return nil, fmt.Errorf("restoring session %s: invalid round %d", snap.ID, snap.Round)
	}
	if snap.CurrentPlayerIndex < 0 || snap.CurrentPlayerIndex > len(snap.TurnOrder) {
		return nil, fmt.Errorf("restoring session %s: cursor %d out of range", snap.ID, snap.CurrentPlayerIndex)
	}
	s := &Session{
		id:        snap.ID,
		room:      snap.Room,
		players:   make(map[int64]*Player, len(snap.Players)),
		turnOrder: append([]int64(nil), snap.TurnOrder...),
		cursor:    snap.CurrentPlayerIndex,
		dealer:    snap.Dealer.clone(),
		deck:      append(card.Deck(nil), snap.Deck...),
		createdAt: snap.CreatedAt.UTC(),
		round:     snap.Round,
		phase:     snap.Phase,
		rules:     snap.Rules,
	}
	for i := range snap.Players {
		p := snap.Players[i].clone()
		if _, dup := s.players[p.ID]; dup {
			return nil, fmt.Errorf("restoring session %s: %w: %d", snap.ID, ErrDuplicatePlayer, p.ID)
		}
		s.players[p.ID] = &p
	}
	seen := make(map[int64]bool, len(s.turnOrder))
	for _, id := range s.turnOrder {
		if _, ok := s.players[id]; !ok {
			return nil, fmt.Errorf("restoring session %s: turn order names unknown player %d: %w", snap.ID, id, ErrPlayerNotFound)
		}
		if seen[id] {
			return nil, fmt.Errorf("restoring session %s: turn order repeats player %d: %w", snap.ID, id, ErrDuplicatePlayer)
		}
		seen[id] = true
	}
	return s, nil
}
