package blackjack_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/card"
)

const room int64 = -1001

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func c(r card.Rank, s card.Suit) card.Card {
	return card.Card{Rank: r, Suit: s}
}

func seats(n int) []blackjack.Participant {
	names := []string{"ann", "bob", "cy", "dee", "eve", "fay", "gus"}
	out := make([]blackjack.Participant, n)
	for i := range out {
		out[i] = blackjack.Participant{ID: int64(i + 1), Name: names[i]}
	}
	return out
}

// newStacked builds a session whose deck yields dealer first, dealer hole,
// then the remaining cards in order.
func newStacked(t *testing.T, players int, cards ...card.Card) *blackjack.Session {
	t.Helper()
	s, err := blackjack.NewSession(room, seats(players), card.Stacked(cards...), blackjack.DefaultRules(), t0)
	require.NoError(t, err)
	return s
}

func bidAll(t *testing.T, s *blackjack.Session, amount int64) blackjack.BidResult {
	t.Helper()
	var res blackjack.BidResult
	for _, p := range s.Players() {
		var err error
		res, err = s.PlaceBid(p.ID, amount)
		require.NoError(t, err)
	}
	require.Equal(t, blackjack.AllBetsIn, res.Kind)
	return res
}

func TestNewSession_DealsDealerOnce(t *testing.T) {
	s := newStacked(t, 2, c(card.Nine, card.Diamonds), c(card.Nine, card.Hearts), c(card.Two, card.Clubs))
	d := s.Dealer()
	assert.Equal(t, []card.Card{c(card.Nine, card.Diamonds)}, d.Cards)
	assert.Equal(t, 9, d.Score)
	assert.True(t, d.Hidden)
	assert.Equal(t, 1, s.DeckLen())
	assert.Equal(t, blackjack.PhaseBetting, s.Phase())
	assert.Equal(t, 1, s.Round())
	assert.Equal(t, t0, s.CreatedAt())
}

func TestNewSession_Rejects(t *testing.T) {
	deck := card.NewOrderedDeck()
	_, err := blackjack.NewSession(room, nil, deck, blackjack.DefaultRules(), t0)
	assert.ErrorIs(t, err, blackjack.ErrNoPlayers)

	dup := []blackjack.Participant{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}
	_, err = blackjack.NewSession(room, dup, card.NewOrderedDeck(), blackjack.DefaultRules(), t0)
	assert.ErrorIs(t, err, blackjack.ErrDuplicatePlayer)

	rules := blackjack.DefaultRules()
	rules.MaxPlayers = 1
	_, err = blackjack.NewSession(room, seats(2), card.NewOrderedDeck(), rules, t0)
	assert.ErrorIs(t, err, blackjack.ErrTooManyPlayers)
}

func TestPlaceBid_Errors(t *testing.T) {
	s := newStacked(t, 2, c(card.Two, card.Clubs), c(card.Three, card.Clubs))

	_, err := s.PlaceBid(99, 10)
	assert.ErrorIs(t, err, blackjack.ErrPlayerNotFound)

	_, err = s.PlaceBid(1, 0)
	assert.ErrorIs(t, err, blackjack.ErrInvalidBid)

	res, err := s.PlaceBid(1, 10)
	require.NoError(t, err)
	assert.Equal(t, blackjack.BidAccepted, res.Kind)
	assert.Nil(t, res.CurrentTurn)

	_, err = s.PlaceBid(1, 20)
	assert.ErrorIs(t, err, blackjack.ErrAlreadyBid)
	p, _ := s.Player(1)
	assert.Equal(t, int64(10), p.Bid)

	res, err = s.PlaceBid(2, 5)
	require.NoError(t, err)
	assert.Equal(t, blackjack.AllBetsIn, res.Kind)
	require.NotNil(t, res.CurrentTurn)
	assert.Equal(t, int64(1), res.CurrentTurn.ID)
	require.NotNil(t, res.Dealer)
	assert.True(t, res.Dealer.Hidden)

	_, err = s.PlaceBid(2, 5)
	assert.ErrorIs(t, err, blackjack.ErrBiddingClosed)
}

func TestPlaceBid_MaxBid(t *testing.T) {
	rules := blackjack.DefaultRules()
	rules.MaxBid = 100
	s, err := blackjack.NewSession(room, seats(1), card.NewOrderedDeck(), rules, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ValidateBid(1, 101), blackjack.ErrInvalidBid)
	assert.NoError(t, s.ValidateBid(1, 100))
}

// Blackjack on the deal against a dealer 18 pays one and a half to one plus the stake.
func TestScenario_BlackjackPays25(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Nine, card.Diamonds), c(card.Nine, card.Hearts),
		c(card.Ten, card.Clubs), c(card.Ace, card.Spades),
	)
	bidAll(t, s, 10)

	deal, err := s.Deal()
	require.NoError(t, err)
	require.Len(t, deal.Hands, 1)
	assert.Equal(t, "10♣ A♠", deal.Hands[0].CardsText)
	assert.Equal(t, blackjack.OutcomeBlackjack, deal.Hands[0].Outcome)
	assert.Nil(t, deal.CurrentTurn)
	assert.Equal(t, blackjack.PhaseDealerTurn, s.Phase())
	assert.Equal(t, blackjack.DealerActionReveal, s.DealerDueAction())

	rev, err := s.RevealSecondRound()
	require.NoError(t, err)
	assert.Equal(t, 18, rev.Dealer.Score)
	assert.Nil(t, rev.CurrentTurn)
	assert.Equal(t, blackjack.DealerActionPlay, s.DealerDueAction())

	steps, err := s.DealerPlays()
	require.NoError(t, err)
	assert.Empty(t, steps)

	st, err := s.Settle()
	require.NoError(t, err)
	require.Len(t, st.Wins, 1)
	assert.Empty(t, st.Losses)
	assert.Empty(t, st.Pushes)
	assert.Equal(t, int64(25), st.Wins[0].Amount)
	assert.True(t, st.Wins[0].Blackjack)
	assert.Equal(t, map[int64]int64{1: 25}, st.Credits())
}

// A bust ends the turn immediately without waiting for stand.
func TestScenario_HitBustAdvances(t *testing.T) {
	s := newStacked(t, 2,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Nine, card.Clubs), c(card.Two, card.Spades),
		c(card.Nine, card.Diamonds), c(card.Three, card.Spades),
		c(card.Five, card.Spades),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	res, err := s.Hit(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.HitBusted, res.Kind)
	assert.Equal(t, 23, res.Player.Score)
	assert.Equal(t, blackjack.OutcomeBust, res.Player.Outcome)
	assert.True(t, res.Advanced)
	require.NotNil(t, res.Next)
	assert.Equal(t, int64(2), res.Next.ID)
	assert.False(t, res.DealerTurn)
}

func TestHit_BelowTwentyOneKeepsTurn(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Two, card.Clubs), c(card.Three, card.Spades),
		c(card.Four, card.Spades), c(card.Ace, card.Hearts), c(card.Ace, card.Clubs),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	res, err := s.Hit(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.HitAccepted, res.Kind)
	assert.False(t, res.Advanced)
	assert.Equal(t, int64(1), s.CurrentPlayer().ID)

	res, err = s.Hit(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.HitAccepted, res.Kind)
	assert.Equal(t, 20, res.Player.Score)

	res, err = s.Hit(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.HitBlackjack, res.Kind)
	assert.Equal(t, blackjack.OutcomeBlackjack, res.Player.Outcome)
	assert.True(t, res.DealerTurn)
	assert.Equal(t, blackjack.PhaseDealerTurn, s.Phase())
}

// Acting out of turn is rejected without touching the session.
func TestScenario_OutOfTurnDoesNotMutate(t *testing.T) {
	s := newStacked(t, 2,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Two, card.Clubs), c(card.Three, card.Spades),
		c(card.Four, card.Spades), c(card.Five, card.Hearts),
		c(card.Six, card.Hearts),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	before := s.Snapshot()
	_, err = s.Hit(2)
	assert.ErrorIs(t, err, blackjack.ErrAnotherPlayerTurn)
	_, err = s.Stand(2)
	assert.ErrorIs(t, err, blackjack.ErrAnotherPlayerTurn)
	_, err = s.Hit(42)
	assert.ErrorIs(t, err, blackjack.ErrPlayerNotFound)
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, 1, s.DeckLen())
}

func TestHit_BeforeDealIsWrongPhase(t *testing.T) {
	s := newStacked(t, 1, c(card.Ten, card.Hearts), c(card.Seven, card.Clubs))
	_, err := s.Hit(1)
	assert.ErrorIs(t, err, blackjack.ErrWrongPhase)
}

// A dealer bust pays every standing player regardless of total.
func TestScenario_DealerBustPaysStander(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Six, card.Spades), c(card.Six, card.Hearts),
		c(card.Ten, card.Clubs), c(card.Eight, card.Diamonds),
		c(card.King, card.Diamonds),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	res, err := s.Stand(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.StandAccepted, res.Kind)
	assert.Equal(t, blackjack.OutcomeNone, res.Player.Outcome)
	assert.True(t, res.DealerTurn)

	rev, err := s.RevealSecondRound()
	require.NoError(t, err)
	assert.Equal(t, 12, rev.Dealer.Score)
	require.NotNil(t, rev.CurrentTurn)
	assert.Equal(t, int64(1), rev.CurrentTurn.ID)

	_, err = s.Stand(1)
	require.NoError(t, err)

	steps, err := s.DealerPlays()
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 22, steps[0].Score)
	assert.Equal(t, "6♠ 6♥ K♦", steps[0].CardsText)

	st, err := s.Settle()
	require.NoError(t, err)
	assert.True(t, st.DealerBust)
	require.Len(t, st.Wins, 1)
	assert.Equal(t, int64(20), st.Wins[0].Amount)
	assert.Equal(t, 18, st.Wins[0].Score)

	_, err = s.Settle()
	assert.ErrorIs(t, err, blackjack.ErrAlreadySettled)
}

// The bid timer excludes non-bidders; an empty table settles without dealer play.
func TestScenario_BidTimeoutExcludes(t *testing.T) {
	s := newStacked(t, 3,
		c(card.Six, card.Spades), c(card.Six, card.Hearts),
		c(card.Ten, card.Clubs), c(card.Eight, card.Diamonds),
	)
	_, err := s.PlaceBid(2, 10)
	require.NoError(t, err)

	excluded, err := s.CloseBetting()
	require.NoError(t, err)
	require.Len(t, excluded, 2)
	assert.Equal(t, int64(1), excluded[0].ID)
	assert.Equal(t, int64(3), excluded[1].ID)
	assert.Equal(t, 1, s.Seated())
	assert.Equal(t, blackjack.PhaseDealing, s.Phase())

	deal, err := s.Deal()
	require.NoError(t, err)
	require.Len(t, deal.Hands, 1)
	assert.Equal(t, int64(2), deal.CurrentTurn.ID)

	empty := newStacked(t, 2, c(card.Six, card.Spades), c(card.Six, card.Hearts))
	_, err = empty.CloseBetting()
	require.NoError(t, err)
	assert.Zero(t, empty.Seated())
	st, err := empty.Settle()
	require.NoError(t, err)
	assert.Len(t, st.Losses, 2)
	assert.Empty(t, st.Wins)
	assert.Empty(t, st.Credits())
}

func TestSettle_BeforeDealerDoneIsWrongPhase(t *testing.T) {
	s := newStacked(t, 1, c(card.Six, card.Spades), c(card.Six, card.Hearts))
	_, err := s.Settle()
	assert.ErrorIs(t, err, blackjack.ErrWrongPhase)
}

func TestSettle_PushOnTie(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Ten, card.Spades), c(card.Eight, card.Hearts),
		c(card.Nine, card.Clubs), c(card.Nine, card.Diamonds),
	)
	bidAll(t, s, 7)
	_, err := s.Deal()
	require.NoError(t, err)
	_, err = s.Stand(1)
	require.NoError(t, err)
	_, err = s.RevealSecondRound()
	require.NoError(t, err)
	_, err = s.Stand(1)
	require.NoError(t, err)
	_, err = s.DealerPlays()
	require.NoError(t, err)

	st, err := s.Settle()
	require.NoError(t, err)
	require.Len(t, st.Pushes, 1)
	assert.Equal(t, int64(7), st.Pushes[0].Amount)
	p, _ := s.Player(1)
	assert.Equal(t, blackjack.OutcomePush, p.Outcome)
}

func TestSettle_BlackjackPushesDealerTwentyOne(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Ten, card.Spades), c(card.Six, card.Hearts),
		c(card.Ace, card.Clubs), c(card.King, card.Diamonds),
		c(card.Five, card.Clubs),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)
	_, err = s.RevealSecondRound()
	require.NoError(t, err)
	steps, err := s.DealerPlays()
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 21, steps[0].Score)

	st, err := s.Settle()
	require.NoError(t, err)
	require.Len(t, st.Pushes, 1)
	assert.Equal(t, int64(10), st.Pushes[0].Amount)
	assert.Equal(t, s.ID(), st.ID)
}

func TestDealerPlays_DeckExhausted(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Two, card.Spades), c(card.Three, card.Hearts),
		c(card.Ten, card.Clubs), c(card.Nine, card.Diamonds),
		c(card.Two, card.Clubs),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)
	_, err = s.Stand(1)
	require.NoError(t, err)
	_, err = s.RevealSecondRound()
	require.NoError(t, err)
	_, err = s.Stand(1)
	require.NoError(t, err)

	steps, err := s.DealerPlays()
	assert.ErrorIs(t, err, blackjack.ErrDeckExhausted)
	assert.Len(t, steps, 1)
	assert.Equal(t, blackjack.PhaseDealerDone, s.Phase())
	_, err = s.Settle()
	assert.NoError(t, err)
}

func TestHit_DeckExhaustedLeavesHand(t *testing.T) {
	s := newStacked(t, 1,
		c(card.Two, card.Spades), c(card.Three, card.Hearts),
		c(card.Two, card.Clubs), c(card.Three, card.Diamonds),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)
	_, err = s.Hit(1)
	assert.ErrorIs(t, err, blackjack.ErrDeckExhausted)
	p, _ := s.Player(1)
	assert.Len(t, p.Cards, 2)
	assert.Equal(t, int64(1), s.CurrentPlayer().ID)

	d, err := s.Abort()
	require.NoError(t, err)
	assert.False(t, d.Hidden)
	assert.Equal(t, 5, d.Score)
	st, err := s.Settle()
	require.NoError(t, err)
	require.Len(t, st.Pushes, 1)
	assert.Equal(t, int64(10), st.Pushes[0].Amount)
}

func TestAbort_WrongPhase(t *testing.T) {
	s := newStacked(t, 1, c(card.Two, card.Spades), c(card.Three, card.Hearts))
	_, err := s.Abort()
	assert.ErrorIs(t, err, blackjack.ErrWrongPhase)
}

func TestExclude_CurrentPlayerAdvances(t *testing.T) {
	s := newStacked(t, 2,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Two, card.Clubs), c(card.Three, card.Spades),
		c(card.Four, card.Spades), c(card.Five, card.Hearts),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	res, err := s.Exclude(1)
	require.NoError(t, err)
	assert.Equal(t, blackjack.PlayerOut, res.Kind)
	require.NotNil(t, res.Next)
	assert.Equal(t, int64(2), res.Next.ID)

	res, err = s.Exclude(2)
	require.NoError(t, err)
	assert.True(t, res.DealerTurn)
	assert.Zero(t, s.Seated())
	st, err := s.Settle()
	require.NoError(t, err)
	assert.Len(t, st.Losses, 2)
}

func TestExclude_LastHoldoutClosesBetting(t *testing.T) {
	s := newStacked(t, 2, c(card.Ten, card.Hearts), c(card.Seven, card.Clubs))
	_, err := s.PlaceBid(1, 10)
	require.NoError(t, err)
	_, err = s.Exclude(2)
	require.NoError(t, err)
	assert.Equal(t, blackjack.PhaseDealing, s.Phase())
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := newStacked(t, 2,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Two, card.Clubs), c(card.Three, card.Spades),
		c(card.Four, card.Spades), c(card.Five, card.Hearts),
		c(card.Six, card.Hearts),
	)
	bidAll(t, s, 10)
	_, err := s.Deal()
	require.NoError(t, err)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	var snap blackjack.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored, err := blackjack.Restore(snap)
	require.NoError(t, err)

	assert.Equal(t, s.ID(), restored.ID())
	assert.Equal(t, s.Players(), restored.Players())
	assert.Equal(t, s.Dealer(), restored.Dealer())
	assert.Equal(t, s.DeckLen(), restored.DeckLen())
	assert.True(t, s.CreatedAt().Equal(restored.CreatedAt()))
	assert.Equal(t, s.CurrentPlayer(), restored.CurrentPlayer())

	res, err := restored.Hit(1)
	require.NoError(t, err)
	assert.Equal(t, "2♣ 4♠ 6♥", res.Player.CardsText)
}

func TestRestore_RejectsInconsistent(t *testing.T) {
	s := newStacked(t, 1, c(card.Ten, card.Hearts), c(card.Seven, card.Clubs))
	snap := s.Snapshot()
	snap.TurnOrder = append(snap.TurnOrder, 9)
	_, err := blackjack.Restore(snap)
	assert.Error(t, err)

	snap = s.Snapshot()
	snap.Round = 3
	_, err = blackjack.Restore(snap)
	assert.Error(t, err)

	snap = s.Snapshot()
	snap.Phase = "shuffling"
	_, err = blackjack.Restore(snap)
	assert.ErrorContains(t, err, `unknown phase "shuffling"`)
}

func TestRestore_RejectsDuplicatePlayers(t *testing.T) {
	s := newStacked(t, 2, c(card.Ten, card.Hearts), c(card.Seven, card.Clubs))

	// The second seat collapses onto the first while the turn order still lines up.
	snap := s.Snapshot()
	snap.Players[1] = snap.Players[0]
	snap.TurnOrder = []int64{snap.Players[0].ID, snap.Players[0].ID}
	_, err := blackjack.Restore(snap)
	assert.ErrorIs(t, err, blackjack.ErrDuplicatePlayer)

	snap = s.Snapshot()
	snap.TurnOrder = []int64{snap.TurnOrder[0], snap.TurnOrder[0]}
	_, err = blackjack.Restore(snap)
	assert.ErrorIs(t, err, blackjack.ErrDuplicatePlayer)
}

func TestWinAmount(t *testing.T) {
	assert.Equal(t, int64(20), blackjack.WinAmount(10, false))
	assert.Equal(t, int64(25), blackjack.WinAmount(10, true))
	assert.Equal(t, int64(7), blackjack.WinAmount(3, true))
}

// playRandomHand drives a session with rapid-chosen actions, checking the
// turn and settlement properties along the way.
func playRandomHand(t *rapid.T) {
	n := rapid.IntRange(1, 7).Draw(t, "players")
	seed := rapid.Uint64().Draw(t, "seed")
	s, err := blackjack.NewSession(room, seats(n), card.NewShuffledDeck(card.NewSeededSource(seed)), blackjack.DefaultRules(), t0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	allIn := 0
	for i, p := range s.Players() {
		res, err := s.PlaceBid(p.ID, rapid.Int64Range(1, 500).Draw(t, "bid"))
		if err != nil {
			t.Fatalf("bid: %v", err)
		}
		if res.Kind == blackjack.AllBetsIn {
			allIn++
			if i != n-1 {
				t.Fatalf("all bets in after %d of %d bids", i+1, n)
			}
		}
	}
	if allIn != 1 {
		t.Fatalf("AllBetsIn returned %d times", allIn)
	}
	if _, err := s.Deal(); err != nil {
		t.Fatalf("deal: %v", err)
	}

	for s.Phase() != blackjack.PhaseDealerDone {
		switch s.Phase() {
		case blackjack.PhasePlayerTurns:
			cur := s.CurrentPlayer()
			if cur == nil || cur.Outcome != blackjack.OutcomeNone {
				t.Fatalf("current player %+v in player turns", cur)
			}
			before := s.CurrentPlayerIndex()
			var err error
			if rapid.Bool().Draw(t, "hit") {
				_, err = s.Hit(cur.ID)
			} else {
				_, err = s.Stand(cur.ID)
			}
			if errors.Is(err, blackjack.ErrDeckExhausted) {
				return
			}
			if err != nil {
				t.Fatalf("action: %v", err)
			}
			if s.Phase() == blackjack.PhasePlayerTurns && s.CurrentPlayerIndex() < before {
				t.Fatalf("cursor moved backwards: %d -> %d", before, s.CurrentPlayerIndex())
			}
		case blackjack.PhaseDealerTurn:
			if s.DealerDueAction() == blackjack.DealerActionReveal {
				if _, err := s.RevealSecondRound(); err != nil {
					t.Fatalf("reveal: %v", err)
				}
				continue
			}
			if _, err := s.DealerPlays(); err != nil && !errors.Is(err, blackjack.ErrDeckExhausted) {
				t.Fatalf("dealer plays: %v", err)
			}
		default:
			t.Fatalf("unexpected phase %s", s.Phase())
		}
	}

	st, err := s.Settle()
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	seen := map[int64]int{}
	for _, group := range [][]blackjack.Payout{st.Wins, st.Losses, st.Pushes} {
		for _, p := range group {
			seen[p.PlayerID]++
		}
	}
	if len(seen) != n {
		t.Fatalf("settled %d of %d players", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("player %d settled %d times", id, count)
		}
	}
}

func TestProperty_HandPlaysOutAndSettlesEveryone(t *testing.T) {
	rapid.Check(t, playRandomHand)
}

func TestProperty_NextPlayerTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(t, "players")
		seed := rapid.Uint64().Draw(t, "seed")
		s, err := blackjack.NewSession(room, seats(n), card.NewShuffledDeck(card.NewSeededSource(seed)), blackjack.DefaultRules(), t0)
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		for _, p := range s.Players() {
			if rapid.Bool().Draw(t, "bids") {
				if _, err := s.PlaceBid(p.ID, 5); err != nil {
					t.Fatalf("bid: %v", err)
				}
			}
		}
		if s.Phase() == blackjack.PhaseBetting {
			if _, err := s.CloseBetting(); err != nil {
				t.Fatalf("close: %v", err)
			}
		}
		if s.Seated() == 0 {
			return
		}
		if _, err := s.Deal(); err != nil {
			t.Fatalf("deal: %v", err)
		}
		for i := 0; i <= n; i++ {
			next := s.NextPlayer()
			if next == nil {
				return
			}
			if next.Outcome != blackjack.OutcomeNone {
				t.Fatalf("next player %d has outcome %s", next.ID, next.Outcome)
			}
		}
		t.Fatalf("NextPlayer did not reach the dealer within %d calls", n+1)
	})
}

func TestProperty_SnapshotRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(t, "players")
		seed := rapid.Uint64().Draw(t, "seed")
		s, err := blackjack.NewSession(room, seats(n), card.NewShuffledDeck(card.NewSeededSource(seed)), blackjack.DefaultRules(), t0)
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		for _, p := range s.Players() {
			_, _ = s.PlaceBid(p.ID, rapid.Int64Range(1, 100).Draw(t, "bid"))
		}
		if _, err := s.Deal(); err != nil {
			t.Fatalf("deal: %v", err)
		}
		data, err := json.Marshal(s.Snapshot())
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var snap blackjack.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		restored, err := blackjack.Restore(snap)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		again, err := json.Marshal(restored.Snapshot())
		if err != nil {
			t.Fatalf("marshal restored: %v", err)
		}
		if string(data) != string(again) {
			t.Fatalf("round trip mismatch:\n%s\n%s", data, again)
		}
	})
}

func TestExclude_RejectedOutsideTheTurn(t *testing.T) {
	s := newStacked(t, 2,
		c(card.Ten, card.Hearts), c(card.Seven, card.Clubs),
		c(card.Two, card.Clubs), c(card.Three, card.Spades),
		c(card.Four, card.Spades), c(card.Five, card.Hearts),
	)
	bidAll(t, s, 10)
	_, err := s.Exclude(1)
	assert.ErrorIs(t, err, blackjack.ErrWrongPhase, "dealing")

	_, err = s.Deal()
	require.NoError(t, err)
	_, err = s.Exclude(2)
	assert.ErrorIs(t, err, blackjack.ErrAnotherPlayerTurn)
	p, _ := s.Player(2)
	assert.Equal(t, blackjack.OutcomeNone, p.Outcome)

	_, err = s.Stand(1)
	require.NoError(t, err)
	_, err = s.Stand(2)
	require.NoError(t, err)
	require.Equal(t, blackjack.PhaseDealerTurn, s.Phase())
	for _, id := range []int64{1, 2} {
		_, err = s.Exclude(id)
		assert.ErrorIs(t, err, blackjack.ErrWrongPhase)
		p, _ := s.Player(id)
		assert.Equal(t, blackjack.OutcomeNone, p.Outcome)
	}
	_, err = s.Exclude(9)
	assert.ErrorIs(t, err, blackjack.ErrPlayerNotFound)
}
