// Package card provides the playing-card model, the 52-card deck, and
// blackjack hand scoring.
package card

import (
	"fmt"
	"strings"
)

// Rank is a card rank as shown on the card face.
type Rank string

const (
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Suit is one of the four French suits.
type Suit string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
)

// Ranks lists every rank in ascending order.
var Ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// Suits lists every suit.
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

var suitSymbols = map[Suit]string{
	Hearts:   "♥",
	Diamonds: "♦",
	Clubs:    "♣",
	Spades:   "♠",
}

// Card is an immutable rank/suit pair.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// New returns the card with the given rank and suit.
//
// Postcondition: Returns an error if rank or suit is not recognised.
func New(rank Rank, suit Suit) (Card, error) {
	c := Card{Rank: rank, Suit: suit}
	if !c.Valid() {
		return Card{}, fmt.Errorf("invalid card %q of %q", rank, suit)
	}
	return c, nil
}

// Valid reports whether the card has a known rank and suit.
func (c Card) Valid() bool {
	if _, ok := suitSymbols[c.Suit]; !ok {
		return false
	}
	for _, r := range Ranks {
		if r == c.Rank {
			return true
		}
	}
	return false
}

// Value returns the blackjack value of the card: face value for 2-10,
// 10 for J/Q/K, and 11 for an ace. Soft aces are adjusted by Score.
func (c Card) Value() int {
	switch c.Rank {
	case Jack, Queen, King, Ten:
		return 10
	case Ace:
		return 11
	case Two:
		return 2
	case Three:
		return 3
	case Four:
		return 4
	case Five:
		return 5
	case Six:
		return 6
	case Seven:
		return 7
	case Eight:
		return 8
	case Nine:
		return 9
	default:
		return 0
	}
}

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// String renders the card as rank followed by the suit symbol, e.g. "10♣".
func (c Card) String() string {
	return string(c.Rank) + suitSymbols[c.Suit]
}

// Format renders a hand as space-separated cards, e.g. "10♣ A♠".
func Format(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
