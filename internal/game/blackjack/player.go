package blackjack

import "github.com/cory-johannsen/blackjack/internal/game/card"

// Outcome is a player's terminal status for the round.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeBust      Outcome = "bust"
	OutcomeBlackjack Outcome = "blackjack"
	OutcomeOut       Outcome = "out"
	OutcomeWin       Outcome = "win"
	OutcomeLose      Outcome = "lose"
	OutcomePush      Outcome = "push"
)

// Participant identifies a user joining the table.
type Participant struct {
	ID   int64
	Name string
}

// Player is one seat at the table.
//
// Invariant: Bid == 0 means no bid has been placed yet.
type Player struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Bid     int64       `json:"bid"`
	Cards   []card.Card `json:"cards"`
	Outcome Outcome     `json:"outcome"`
}

// Score returns the best total of the player's hand.
func (p *Player) Score() int {
	return card.Score(p.Cards)
}

// Active reports whether the player still has decisions to make this round.
func (p *Player) Active() bool {
	return p.Outcome == OutcomeNone
}

// Seated reports whether the player has not been excluded from the table.
func (p *Player) Seated() bool {
	return p.Outcome != OutcomeOut
}

// View returns the player's public summary.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:        p.ID,
		Name:      p.Name,
		Bid:       p.Bid,
		Cards:     cloneCards(p.Cards),
		CardsText: card.Format(p.Cards),
		Score:     p.Score(),
		Outcome:   p.Outcome,
	}
}

func (p *Player) clone() Player {
	cp := *p
	cp.Cards = cloneCards(p.Cards)
	return cp
}

// PlayerView is the structured payload handed to the chat layer for one player.
type PlayerView struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Bid       int64       `json:"bid"`
	Cards     []card.Card `json:"cards"`
	CardsText string      `json:"cards_text"`
	Score     int         `json:"score"`
	Outcome   Outcome     `json:"outcome"`
}

func cloneCards(cards []card.Card) []card.Card {
	if len(cards) == 0 {
		return nil
	}
	return append([]card.Card(nil), cards...)
}
