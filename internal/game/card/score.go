package card

const (
	// Target is the best possible hand total.
	Target = 21
	// softAdjustment is the difference between counting an ace as 11 and as 1.
	softAdjustment = 10
)

// Score returns the best total for cards: aces count as 11 until the
// total would exceed 21, then as 1 one at a time.
//
// Postcondition: Returns the highest total <= 21 if one exists, otherwise
// the lowest possible (bust) total.
func Score(cards []Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for total > Target && aces > 0 {
		total -= softAdjustment
		aces--
	}
	return total
}

// IsBust reports whether the best total exceeds 21.
func IsBust(cards []Card) bool {
	return Score(cards) > Target
}

// IsBlackjack reports whether cards is a natural: exactly two cards totalling 21.
func IsBlackjack(cards []Card) bool {
	return len(cards) == 2 && Score(cards) == Target
}

// IsSoft reports whether at least one ace is still counted as 11 in the best total.
func IsSoft(cards []Card) bool {
	hard := 0
	hasAce := false
	for _, c := range cards {
		if c.IsAce() {
			hard++
			hasAce = true
			continue
		}
		hard += c.Value()
	}
	return hasAce && Score(cards) != hard
}
