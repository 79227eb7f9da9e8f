// Package blackjack implements the per-room blackjack state machine: betting,
// dealing, player turns over two rounds, dealer play, and settlement.
//
// A Session is not safe for concurrent use. Callers serialise access per room
// and persist the result through a Snapshot.
package blackjack

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/blackjack/internal/game/card"
)

// Phase is the state-machine position of a session.
type Phase string

const (
	// PhaseBetting accepts bids until every seated player has bid or the bid timer fires.
	PhaseBetting Phase = "betting"
	// PhaseDealing means bets are closed and the opening hands are due.
	PhaseDealing Phase = "dealing"
	// PhasePlayerTurns accepts hit/stand from the player under the turn cursor.
	PhasePlayerTurns Phase = "player_turns"
	// PhaseDealerTurn means the cursor ran past the last player; see DealerDueAction.
	PhaseDealerTurn Phase = "dealer_turn"
	// PhaseDealerDone means the dealer has played out and settlement is due.
	PhaseDealerDone Phase = "dealer_done"
	// PhaseSettled is terminal.
	PhaseSettled Phase = "settled"
)

// Valid reports whether p is one of the declared phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseBetting, PhaseDealing, PhasePlayerTurns, PhaseDealerTurn, PhaseDealerDone, PhaseSettled:
		return true
	}
	return false
}

// Session is the game state of one room.
//
// Invariant: turnOrder is fixed at creation and lists every player id exactly once.
// Invariant: the dealer's two opening cards are drawn exactly once, at creation.
type Session struct {
	id        string
	room      int64
	players   map[int64]*Player
	turnOrder []int64
	cursor    int
	dealer    Dealer
	deck      card.Deck
	createdAt time.Time
	round     int
	phase     Phase
	rules     Rules
}

// NewSession seats participants in join order, draws the dealer's face-up and
// hole cards from deck, and opens betting.
//
// Precondition: participants are in join order; deck is shuffled; rules are valid.
// Postcondition: Returns a session in PhaseBetting, round 1, or an error if the
// player list is empty, too large, or contains duplicates.
func NewSession(room int64, participants []Participant, deck card.Deck, rules Rules, now time.Time) (*Session, error) {
	if len(participants) == 0 {
		return nil, ErrNoPlayers
	}
	if len(participants) > rules.MaxPlayers {
		return nil, fmt.Errorf("%w: %d seats, %d players", ErrTooManyPlayers, rules.MaxPlayers, len(participants))
	}
	s := &Session{
		id:        uuid.NewString(),
		room:      room,
		players:   make(map[int64]*Player, len(participants)),
		turnOrder: make([]int64, 0, len(participants)),
		deck:      deck,
		createdAt: now.UTC(),
		round:     1,
		phase:     PhaseBetting,
		rules:     rules,
	}
	for _, p := range participants {
		if _, exists := s.players[p.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePlayer, p.ID)
		}
		s.players[p.ID] = &Player{ID: p.ID, Name: p.Name, Outcome: OutcomeNone}
		s.turnOrder = append(s.turnOrder, p.ID)
	}
	if s.deck.Len() < 2 {
		return nil, ErrDeckExhausted
	}
	first, _ := s.deck.Draw()
	secret, _ := s.deck.Draw()
	s.dealer = Dealer{Cards: []card.Card{first}, FirstCard: first, SecretCard: secret}
	return s, nil
}

// ID returns the unique id of this hand.
func (s *Session) ID() string { return s.id }

// Room returns the room the session belongs to.
func (s *Session) Room() int64 { return s.room }

// Round returns the current round, 1 or 2.
func (s *Session) Round() int { return s.round }

// Phase returns the current state-machine phase.
func (s *Session) Phase() Phase { return s.phase }

// Rules returns the house rules of the table.
func (s *Session) Rules() Rules { return s.rules }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// DeckLen returns the number of undealt cards.
func (s *Session) DeckLen() int { return s.deck.Len() }

// CurrentPlayerIndex returns the turn cursor.
func (s *Session) CurrentPlayerIndex() int { return s.cursor }

// Dealer returns the dealer's visible state.
func (s *Session) Dealer() DealerView { return s.dealer.View() }

// Player returns the view of one player.
func (s *Session) Player(id int64) (PlayerView, bool) {
	p, ok := s.players[id]
	if !ok {
		return PlayerView{}, false
	}
	return p.View(), true
}

// Players returns every player in turn order.
func (s *Session) Players() []PlayerView {
	out := make([]PlayerView, 0, len(s.turnOrder))
	for _, id := range s.turnOrder {
		out = append(out, s.players[id].View())
	}
	return out
}

// Seated returns the number of players that have not been excluded.
func (s *Session) Seated() int {
	n := 0
	for _, p := range s.players {
		if p.Seated() {
			n++
		}
	}
	return n
}

// CurrentPlayer returns the player under the turn cursor, or nil when the
// cursor is past the last player.
//
// Postcondition: A non-nil result always has Outcome == OutcomeNone.
func (s *Session) CurrentPlayer() *PlayerView {
	s.skipInactive()
	return s.currentView()
}

// NextPlayer advances the turn cursor past the current player and any player
// with a terminal outcome. A nil result means it is the dealer's turn.
//
// Postcondition: the cursor never moves backwards; a non-nil result has Outcome == OutcomeNone.
func (s *Session) NextPlayer() *PlayerView {
	if s.cursor < len(s.turnOrder) {
		s.cursor++
	}
	s.skipInactive()
	next := s.currentView()
	if next == nil && s.phase == PhasePlayerTurns {
		s.phase = PhaseDealerTurn
	}
	return next
}

func (s *Session) skipInactive() {
	for s.cursor < len(s.turnOrder) && !s.players[s.turnOrder[s.cursor]].Active() {
		s.cursor++
	}
}

func (s *Session) currentView() *PlayerView {
	if s.cursor >= len(s.turnOrder) {
		return nil
	}
	v := s.players[s.turnOrder[s.cursor]].View()
	return &v
}

// DealerDueAction reports which dealer step applies once players are done:
// reveal in round one, play-out in round two.
func (s *Session) DealerDueAction() DealerAction {
	if s.round == 1 {
		return DealerActionReveal
	}
	return DealerActionPlay
}

// BidKind distinguishes the two successful bid results.
type BidKind string

const (
	// BidAccepted means the bid was recorded and other players still have to bid.
	BidAccepted BidKind = "bid_accepted"
	// AllBetsIn means this bid closed betting; Deal is due.
	AllBetsIn BidKind = "all_bets_in"
)

// BidResult is the outcome of PlaceBid.
type BidResult struct {
	Kind   BidKind    `json:"kind"`
	Player PlayerView `json:"player"`
	// CurrentTurn and Dealer are set only when Kind == AllBetsIn.
	CurrentTurn *PlayerView `json:"current_turn,omitempty"`
	Dealer      *DealerView `json:"dealer,omitempty"`
}

// ValidateBid reports whether PlaceBid(playerID, amount) would succeed, without mutating.
func (s *Session) ValidateBid(playerID int64, amount int64) error {
	p, ok := s.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if s.phase != PhaseBetting || !p.Seated() {
		return ErrBiddingClosed
	}
	if p.Bid > 0 {
		return ErrAlreadyBid
	}
	if amount < s.rules.MinBid {
		return fmt.Errorf("%w: minimum is %d", ErrInvalidBid, s.rules.MinBid)
	}
	if s.rules.MaxBid > 0 && amount > s.rules.MaxBid {
		return fmt.Errorf("%w: maximum is %d", ErrInvalidBid, s.rules.MaxBid)
	}
	return nil
}

// PlaceBid records a player's bid. The first bid is final. When the last
// seated player bids, betting closes and AllBetsIn is returned; this happens
// exactly once per session.
//
// Postcondition: on error the session is unchanged.
func (s *Session) PlaceBid(playerID int64, amount int64) (BidResult, error) {
	if err := s.ValidateBid(playerID, amount); err != nil {
		return BidResult{}, err
	}
	p := s.players[playerID]
	p.Bid = amount

	res := BidResult{Kind: BidAccepted, Player: p.View()}
	if !s.allSeatedHaveBid() {
		return res, nil
	}
	s.phase = PhaseDealing
	s.cursor = 0
	res.Kind = AllBetsIn
	res.CurrentTurn = s.CurrentPlayer()
	dealer := s.dealer.View()
	res.Dealer = &dealer
	return res, nil
}

func (s *Session) allSeatedHaveBid() bool {
	for _, p := range s.players {
		if p.Seated() && p.Bid == 0 {
			return false
		}
	}
	return true
}

// CloseBetting force-closes betting when the bid timer expires: every seated
// player without a bid is excluded.
//
// Postcondition: returns the excluded players; the session moves to PhaseDealing.
// If Seated() is zero afterwards the table is empty and the caller tears it down.
func (s *Session) CloseBetting() ([]PlayerView, error) {
	if s.phase != PhaseBetting {
		return nil, ErrBiddingClosed
	}
	var excluded []PlayerView
	for _, id := range s.turnOrder {
		p := s.players[id]
		if p.Seated() && p.Bid == 0 {
			p.Outcome = OutcomeOut
			excluded = append(excluded, p.View())
		}
	}
	s.phase = PhaseDealing
	s.cursor = 0
	return excluded, nil
}

// DealResult summarises the opening deal.
type DealResult struct {
	Hands       []PlayerView `json:"hands"`
	Dealer      DealerView   `json:"dealer"`
	CurrentTurn *PlayerView  `json:"current_turn,omitempty"`
}

// Deal gives two cards to every seated player, tags naturals as blackjack,
// and opens player turns.
//
// Precondition: Phase() == PhaseDealing.
// Postcondition: Phase() is PhasePlayerTurns, or PhaseDealerTurn when nobody can act.
func (s *Session) Deal() (DealResult, error) {
	if s.phase != PhaseDealing {
		return DealResult{}, ErrWrongPhase
	}
	seated := make([]*Player, 0, len(s.turnOrder))
	for _, id := range s.turnOrder {
		if p := s.players[id]; p.Seated() {
			seated = append(seated, p)
		}
	}
	if s.deck.Len() < 2*len(seated) {
		return DealResult{}, ErrDeckExhausted
	}
	for pass := 0; pass < 2; pass++ {
		for _, p := range seated {
			c, _ := s.deck.Draw()
			p.Cards = append(p.Cards, c)
		}
	}
	res := DealResult{Hands: make([]PlayerView, 0, len(seated))}
	for _, p := range seated {
		if card.IsBlackjack(p.Cards) {
			p.Outcome = OutcomeBlackjack
		}
		res.Hands = append(res.Hands, p.View())
	}
	s.cursor = 0
	s.phase = PhasePlayerTurns
	res.CurrentTurn = s.CurrentPlayer()
	if res.CurrentTurn == nil {
		s.phase = PhaseDealerTurn
	}
	res.Dealer = s.dealer.View()
	return res, nil
}

// TurnKind distinguishes the results of a player action.
type TurnKind string

const (
	HitAccepted   TurnKind = "hit_accepted"
	HitBusted     TurnKind = "hit_busted"
	HitBlackjack  TurnKind = "hit_blackjack"
	StandAccepted TurnKind = "stand_accepted"
	PlayerOut     TurnKind = "player_out"
)

// TurnResult is the outcome of Hit, Stand, or Exclude.
type TurnResult struct {
	Kind   TurnKind   `json:"kind"`
	Player PlayerView `json:"player"`
	// Advanced is true when the turn moved on; Next is then the new actor, or nil for the dealer.
	Advanced bool        `json:"advanced"`
	Next     *PlayerView `json:"next,omitempty"`
	// DealerTurn is true when no player is left to act.
	DealerTurn bool `json:"dealer_turn"`
}

func (s *Session) checkTurn(playerID int64) (*Player, error) {
	p, ok := s.players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if s.phase != PhasePlayerTurns {
		return nil, ErrWrongPhase
	}
	s.skipInactive()
	if s.cursor >= len(s.turnOrder) || s.turnOrder[s.cursor] != playerID {
		return nil, ErrAnotherPlayerTurn
	}
	return p, nil
}

// Hit draws one card for the player under the turn cursor. A bust or a total
// of exactly 21 ends the player's turn immediately.
//
// Postcondition: on error the session, including the deck, is unchanged.
func (s *Session) Hit(playerID int64) (TurnResult, error) {
	p, err := s.checkTurn(playerID)
	if err != nil {
		return TurnResult{}, err
	}
	c, err := s.deck.Draw()
	if err != nil {
		return TurnResult{}, err
	}
	p.Cards = append(p.Cards, c)

	switch score := p.Score(); {
	case score > card.Target:
		p.Outcome = OutcomeBust
		return s.advance(HitBusted, p), nil
	case score == card.Target:
		p.Outcome = OutcomeBlackjack
		return s.advance(HitBlackjack, p), nil
	default:
		return TurnResult{Kind: HitAccepted, Player: p.View()}, nil
	}
}

// Stand ends the player's turn for this round without tagging an outcome.
func (s *Session) Stand(playerID int64) (TurnResult, error) {
	p, err := s.checkTurn(playerID)
	if err != nil {
		return TurnResult{}, err
	}
	return s.advance(StandAccepted, p), nil
}

func (s *Session) advance(kind TurnKind, p *Player) TurnResult {
	next := s.NextPlayer()
	return TurnResult{
		Kind:       kind,
		Player:     p.View(),
		Advanced:   true,
		Next:       next,
		DealerTurn: next == nil,
	}
}

// Exclude removes a player who failed to act in time (AFK kick). Their bid is
// forfeited. During betting any seated player may be excluded; during player
// turns only the player holding the turn, and the turn advances.
//
// Postcondition: on success the player's outcome is OutcomeOut; on error the
// session is unchanged.
func (s *Session) Exclude(playerID int64) (TurnResult, error) {
	p, ok := s.players[playerID]
	if !ok {
		return TurnResult{}, ErrPlayerNotFound
	}
	switch s.phase {
	case PhasePlayerTurns:
		if _, err := s.checkTurn(playerID); err != nil {
			return TurnResult{}, err
		}
		p.Outcome = OutcomeOut
		return s.advance(PlayerOut, p), nil
	case PhaseBetting:
		p.Outcome = OutcomeOut
		if s.Seated() > 0 && s.allSeatedHaveBid() {
			// The excluded player was the last one holding up betting.
			s.phase = PhaseDealing
			s.cursor = 0
		}
		return TurnResult{Kind: PlayerOut, Player: p.View()}, nil
	case PhaseSettled:
		return TurnResult{}, ErrAlreadySettled
	default:
		return TurnResult{}, ErrWrongPhase
	}
}

// RevealResult is the outcome of RevealSecondRound.
type RevealResult struct {
	Dealer      DealerView  `json:"dealer"`
	CurrentTurn *PlayerView `json:"current_turn,omitempty"`
}

// RevealSecondRound turns the dealer's hole card and opens round two with
// the cursor back at the first player still able to act.
//
// Precondition: Phase() == PhaseDealerTurn and Round() == 1.
// Postcondition: Round() == 2. When CurrentTurn is nil the dealer plays immediately.
func (s *Session) RevealSecondRound() (RevealResult, error) {
	if s.phase != PhaseDealerTurn || s.round != 1 {
		return RevealResult{}, ErrWrongPhase
	}
	s.dealer.reveal()
	s.round = 2
	s.cursor = 0
	s.phase = PhasePlayerTurns
	res := RevealResult{Dealer: s.dealer.View(), CurrentTurn: s.CurrentPlayer()}
	if res.CurrentTurn == nil {
		s.phase = PhaseDealerTurn
	}
	return res, nil
}

// DealerPlays reveals the hole card if needed and draws until the dealer
// total reaches the table's stand threshold, soft or hard.
//
// Precondition: Phase() == PhaseDealerTurn and Round() == 2.
// Postcondition: Phase() == PhaseDealerDone, even when the deck runs out; in that
// case the draws made so far are returned together with ErrDeckExhausted.
func (s *Session) DealerPlays() ([]TurnSnapshot, error) {
	if s.phase != PhaseDealerTurn || s.round != 2 {
		return nil, ErrWrongPhase
	}
	s.dealer.reveal()
	s.phase = PhaseDealerDone
	var steps []TurnSnapshot
	for s.dealer.Score() < s.rules.DealerStandsOn {
		c, err := s.deck.Draw()
		if err != nil {
			return steps, err
		}
		s.dealer.Cards = append(s.dealer.Cards, c)
		steps = append(steps, TurnSnapshot{
			Cards:     cloneCards(s.dealer.Cards),
			CardsText: card.Format(s.dealer.Cards),
			Score:     s.dealer.Score(),
		})
	}
	return steps, nil
}

// Abort ends the hand early, typically after the deck ran out mid-round. The
// hole card is turned and the session becomes settleable with the hands as
// they stand.
//
// Precondition: Phase() is neither PhaseBetting nor PhaseSettled.
// Postcondition: Phase() == PhaseDealerDone.
func (s *Session) Abort() (DealerView, error) {
	switch s.phase {
	case PhaseBetting, PhaseSettled:
		return DealerView{}, ErrWrongPhase
	}
	s.dealer.reveal()
	s.phase = PhaseDealerDone
	return s.dealer.View(), nil
}
