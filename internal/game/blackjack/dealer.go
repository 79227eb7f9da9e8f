package blackjack

import "github.com/cory-johannsen/blackjack/internal/game/card"

// Dealer holds the house hand. Cards contains only the face-up card until
// the hole card is revealed at the start of round two.
type Dealer struct {
	Cards      []card.Card `json:"cards"`
	FirstCard  card.Card   `json:"first_card"`
	SecretCard card.Card   `json:"secret_card"`
	Revealed   bool        `json:"revealed"`
}

// Score returns the total of the visible cards.
func (d *Dealer) Score() int {
	return card.Score(d.Cards)
}

// IsBust reports whether the visible total exceeds 21.
func (d *Dealer) IsBust() bool {
	return card.IsBust(d.Cards)
}

// reveal turns the hole card face up. It is a no-op once revealed.
func (d *Dealer) reveal() {
	if d.Revealed {
		return
	}
	d.Cards = append(d.Cards, d.SecretCard)
	d.Revealed = true
}

// View returns the dealer's visible state.
func (d *Dealer) View() DealerView {
	return DealerView{
		Cards:     cloneCards(d.Cards),
		CardsText: card.Format(d.Cards),
		Score:     d.Score(),
		Hidden:    !d.Revealed,
	}
}

func (d *Dealer) clone() Dealer {
	cp := *d
	cp.Cards = cloneCards(d.Cards)
	return cp
}

// DealerView is the structured payload for the dealer's visible hand.
type DealerView struct {
	Cards     []card.Card `json:"cards"`
	CardsText string      `json:"cards_text"`
	Score     int         `json:"score"`
	Hidden    bool        `json:"hidden"`
}

// TurnSnapshot records the dealer's hand after one draw, for progressive narration.
type TurnSnapshot struct {
	Cards     []card.Card `json:"cards"`
	CardsText string      `json:"cards_text"`
	Score     int         `json:"score"`
}

// DealerAction is the dealer step due once every player has acted.
type DealerAction string

const (
	// DealerActionReveal turns the hole card and opens round two.
	DealerActionReveal DealerAction = "reveal"
	// DealerActionPlay draws the dealer out and ends the hand.
	DealerActionPlay DealerAction = "play"
)
