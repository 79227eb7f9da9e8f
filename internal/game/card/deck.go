package card

import "errors"

// DeckSize is the number of cards in a single standard deck.
const DeckSize = 52

// ErrDeckExhausted is returned when drawing from an empty deck.
var ErrDeckExhausted = errors.New("deck exhausted")

// Deck is a stack of cards; the top of the deck is the end of the slice.
type Deck []Card

// NewOrderedDeck returns all 52 rank/suit combinations, suit-major.
//
// Postcondition: len(result) == DeckSize and every card is distinct.
func NewOrderedDeck() Deck {
	d := make(Deck, 0, DeckSize)
	for _, s := range Suits {
		for _, r := range Ranks {
			d = append(d, Card{Rank: r, Suit: s})
		}
	}
	return d
}

// NewShuffledDeck returns a uniformly shuffled 52-card deck.
//
// Precondition: src must be non-nil.
// Postcondition: result is a permutation of NewOrderedDeck().
func NewShuffledDeck(src Source) Deck {
	d := NewOrderedDeck()
	d.Shuffle(src)
	return d
}

// Shuffle permutes the deck in place with a Fisher-Yates shuffle.
//
// Precondition: src must be non-nil.
func (d Deck) Shuffle(src Source) {
	for i := len(d) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		d[i], d[j] = d[j], d[i]
	}
}

// Draw pops the top card.
//
// Postcondition: Returns ErrDeckExhausted and leaves the deck unchanged when empty.
func (d *Deck) Draw() (Card, error) {
	n := len(*d)
	if n == 0 {
		return Card{}, ErrDeckExhausted
	}
	c := (*d)[n-1]
	*d = (*d)[:n-1]
	return c, nil
}

// Len returns the number of cards left.
func (d Deck) Len() int {
	return len(d)
}

// Stacked builds a deck whose draws return cards in the given order:
// cards[0] is drawn first.
func Stacked(cards ...Card) Deck {
	d := make(Deck, len(cards))
	for i, c := range cards {
		d[len(cards)-1-i] = c
	}
	return d
}
