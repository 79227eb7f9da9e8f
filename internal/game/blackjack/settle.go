package blackjack

import "github.com/cory-johannsen/blackjack/internal/game/card"

// Payout is one player's settlement line. Amount is what the house pays back:
// zero for a loss, the stake for a push, stake plus winnings for a win.
type Payout struct {
	PlayerID  int64  `json:"player_id"`
	Name      string `json:"name"`
	Bid       int64  `json:"bid"`
	Score     int    `json:"score"`
	Amount    int64  `json:"amount"`
	Blackjack bool   `json:"blackjack"`
}

// Settlement is the result of Settle. Every player appears in exactly one of
// Wins, Losses, or Pushes. ID is the session id, so settling a reloaded copy
// of the same hand twice yields the same ID.
type Settlement struct {
	ID          string   `json:"id"`
	Room        int64    `json:"room"`
	DealerScore int      `json:"dealer_score"`
	DealerBust  bool     `json:"dealer_bust"`
	Wins        []Payout `json:"wins"`
	Losses      []Payout `json:"losses"`
	Pushes      []Payout `json:"pushes"`
}

// Credits returns the amount to credit per player. Losses are omitted because
// bids are debited when they are placed.
func (st Settlement) Credits() map[int64]int64 {
	out := make(map[int64]int64, len(st.Wins)+len(st.Pushes))
	for _, p := range st.Wins {
		out[p.PlayerID] += p.Amount
	}
	for _, p := range st.Pushes {
		out[p.PlayerID] += p.Amount
	}
	return out
}

// WinAmount returns the total paid on a winning bid: double the stake, plus a
// half-stake bonus for blackjack rounded down.
func WinAmount(bid int64, blackjack bool) int64 {
	if blackjack {
		return bid*2 + bid/2
	}
	return bid * 2
}

// Settle compares every player against the dealer and finalises outcomes.
//
// Precondition: Phase() == PhaseDealerDone, or no player remains seated.
// Postcondition: Phase() == PhaseSettled; a second call returns ErrAlreadySettled.
func (s *Session) Settle() (Settlement, error) {
	if s.phase == PhaseSettled {
		return Settlement{}, ErrAlreadySettled
	}
	if s.phase != PhaseDealerDone && s.Seated() > 0 {
		return Settlement{}, ErrWrongPhase
	}
	dealerScore := s.dealer.Score()
	dealerBust := dealerScore > card.Target
	st := Settlement{
		ID:          s.id,
		Room:        s.room,
		DealerScore: dealerScore,
		DealerBust:  dealerBust,
	}
	for _, id := range s.turnOrder {
		p := s.players[id]
		score := p.Score()
		line := Payout{PlayerID: p.ID, Name: p.Name, Bid: p.Bid, Score: score, Blackjack: p.Outcome == OutcomeBlackjack}
		switch {
		case p.Outcome == OutcomeBust || p.Outcome == OutcomeOut || (!dealerBust && dealerScore > score):
			p.Outcome = OutcomeLose
			st.Losses = append(st.Losses, line)
		case (line.Blackjack && dealerScore == card.Target) || score == dealerScore:
			p.Outcome = OutcomePush
			line.Amount = p.Bid
			st.Pushes = append(st.Pushes, line)
		default:
			p.Outcome = OutcomeWin
			line.Amount = WinAmount(p.Bid, line.Blackjack)
			st.Wins = append(st.Wins, line)
		}
	}
	s.phase = PhaseSettled
	return st, nil
}
