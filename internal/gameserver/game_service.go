package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/events"
	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/card"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
	"github.com/cory-johannsen/blackjack/internal/game/timer"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

const (
	reasonNoPlayers = "no players left"
	// defaultRetryDelay applies when GameConfig.RetryDelay is zero.
	defaultRetryDelay = 5 * time.Second
)

// Publisher raises events for the listeners.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, payload any) (string, error)
}

// GameConfig holds the table settings of a GameService.
type GameConfig struct {
	BidTimeout   time.Duration
	TurnTimeout  time.Duration
	StartBalance int64
	Rules        blackjack.Rules
	Lock         storage.LockOptions
	// RetryDelay spaces attempts to re-raise a dealer or ending event
	// whose publish failed. Zero means five seconds.
	RetryDelay time.Duration
}

// DealerPlayed is the payload of NoticeDealerPlayed.
type DealerPlayed struct {
	Steps  []blackjack.TurnSnapshot `json:"steps"`
	Dealer blackjack.DealerView     `json:"dealer"`
}

// Ending is the payload of NoticeSettled.
type Ending struct {
	Settlement blackjack.Settlement `json:"settlement"`
	// Reason is empty for a hand that played out.
	Reason string `json:"reason,omitempty"`
}

// GameService applies player actions, timer expiries, and dealer events to
// blackjack sessions. Every operation loads the session, mutates it, and
// stores it back while holding the room lease.
type GameService struct {
	sessions  *storage.SessionRepository
	states    *storage.StateRepository
	accounts  storage.AccountStore
	bus       Publisher
	scheduler *timer.Scheduler
	notifier  Notifier
	clock     timer.Clock
	newDeck   func() card.Deck
	cfg       GameConfig
	guard     roomGuard
	logger    *zap.Logger
}

// NewGameService creates a GameService.
//
// Precondition: all arguments except newDeck must be non-nil; cfg timeouts must be > 0.
// newDeck may be nil, in which case every game gets a freshly shuffled 52-card deck.
// Postcondition: Returns a non-nil GameService.
func NewGameService(
	sessions *storage.SessionRepository,
	states *storage.StateRepository,
	locker storage.Locker,
	accounts storage.AccountStore,
	bus Publisher,
	scheduler *timer.Scheduler,
	notifier Notifier,
	clock timer.Clock,
	newDeck func() card.Deck,
	cfg GameConfig,
	logger *zap.Logger,
) *GameService {
	if newDeck == nil {
		newDeck = func() card.Deck { return card.NewShuffledDeck(card.NewCryptoSource()) }
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &GameService{
		sessions:  sessions,
		states:    states,
		accounts:  accounts,
		bus:       bus,
		scheduler: scheduler,
		notifier:  notifier,
		clock:     clock,
		newDeck:   newDeck,
		cfg:       cfg,
		guard:     newRoomGuard(locker, cfg.Lock, logger),
		logger:    logger,
	}
}

// Snapshot returns the stored state of the room's session without locking.
func (g *GameService) Snapshot(ctx context.Context, room int64) (blackjack.Snapshot, error) {
	s, err := g.load(ctx, room)
	if err != nil {
		return blackjack.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// ChatState returns the input routing tag of the room, empty when idle.
func (g *GameService) ChatState(ctx context.Context, room int64) (storage.ChatState, error) {
	return g.states.Get(ctx, room)
}

// CreateGame turns a lobby into a session and opens betting.
//
// Precondition: lb has at least one user.
// Postcondition: Returns ErrSessionExists if the room already has a game.
// Every player has an account, and the bid timer is armed.
func (g *GameService) CreateGame(ctx context.Context, lb lobby.Lobby) error {
	room := lb.Room
	return g.guard.do(ctx, room, "create_game", func(ctx context.Context) error {
		exists, err := g.sessions.Exists(ctx, room)
		if err != nil {
			return err
		}
		if exists {
			return ErrSessionExists
		}
		for _, u := range lb.Users {
			if _, err := g.accounts.Open(ctx, u.ID, u.Name, g.cfg.StartBalance); err != nil {
				return fmt.Errorf("opening account %d: %w", u.ID, err)
			}
		}
		s, err := blackjack.NewSession(room, lb.Users, g.newDeck(), g.cfg.Rules, g.clock.Now())
		if err != nil {
			return err
		}
		if err := g.sessions.Put(ctx, s); err != nil {
			return err
		}
		if err := g.states.Set(ctx, room, storage.StateBidding); err != nil {
			return err
		}
		g.scheduleBidTimeout(room)
		g.logger.Info("game created",
			zap.Int64("room_id", room),
			zap.String("session_id", s.ID()),
			zap.Int("players", len(lb.Users)),
		)
		g.notify(ctx, Notice{Room: room, Kind: NoticeGameCreated, Payload: s.Players()})
		return nil
	})
}

// PlaceBid debits the bid from the player's balance and records it. The bid
// that completes betting also deals the opening hands.
//
// Postcondition: On error nothing is debited and the session is unchanged,
// except that a failure after the bid was stored leaves both in place.
func (g *GameService) PlaceBid(ctx context.Context, room, playerID, amount int64) (blackjack.BidResult, error) {
	var res blackjack.BidResult
	err := g.guard.do(ctx, room, "place_bid", func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		if err := s.ValidateBid(playerID, amount); err != nil {
			g.logger.Debug("bid rejected", zap.Int64("room_id", room), zap.Int64("player_id", playerID), zap.Error(err))
			return err
		}
		if _, err := g.accounts.Adjust(ctx, playerID, -amount); err != nil {
			return err
		}
		res, err = s.PlaceBid(playerID, amount)
		if err != nil {
			g.refund(ctx, room, playerID, amount)
			return err
		}
		if err := g.sessions.Put(ctx, s); err != nil {
			g.refund(ctx, room, playerID, amount)
			return err
		}
		g.notify(ctx, Notice{Room: room, Kind: NoticeBidAccepted, Payload: res})
		if res.Kind != blackjack.AllBetsIn {
			return nil
		}
		g.scheduler.Cancel(timer.BidKey(room))
		return g.openTurnsLocked(ctx, s)
	})
	return res, err
}

// BidTimeout closes betting: players without a bid are excluded and the
// remaining players are dealt in. An emptied table is settled and removed.
// A room without a game is ignored.
func (g *GameService) BidTimeout(ctx context.Context, room int64) error {
	err := g.guard.do(ctx, room, "bid_timeout", func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		if s.Phase() != blackjack.PhaseBetting {
			return nil
		}
		excluded, err := s.CloseBetting()
		if err != nil {
			return err
		}
		if len(excluded) > 0 {
			g.logger.Info("players excluded for not bidding", zap.Int64("room_id", room), zap.Int("count", len(excluded)))
			g.notify(ctx, Notice{Room: room, Kind: NoticePlayersExcluded, Payload: excluded})
		}
		return g.openTurnsLocked(ctx, s)
	})
	return ignoreNoSession(err)
}

// Hit draws a card for the player. The player's turn timer is cancelled
// before the action is applied and re-armed if the turn continues.
func (g *GameService) Hit(ctx context.Context, room, playerID int64) (blackjack.TurnResult, error) {
	return g.act(ctx, room, playerID, "hit", (*blackjack.Session).Hit)
}

// Stand ends the player's turn for this round.
func (g *GameService) Stand(ctx context.Context, room, playerID int64) (blackjack.TurnResult, error) {
	return g.act(ctx, room, playerID, "stand", (*blackjack.Session).Stand)
}

func (g *GameService) act(
	ctx context.Context,
	room, playerID int64,
	op string,
	apply func(*blackjack.Session, int64) (blackjack.TurnResult, error),
) (blackjack.TurnResult, error) {
	g.scheduler.Cancel(timer.TurnKey(room, playerID))

	var res blackjack.TurnResult
	err := g.guard.do(ctx, room, op, func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		res, err = apply(s, playerID)
		if errors.Is(err, blackjack.ErrDeckExhausted) {
			if aerr := g.abortLocked(ctx, s); aerr != nil {
				return errors.Join(err, aerr)
			}
			return err
		}
		if err != nil {
			return err
		}
		g.notify(ctx, Notice{Room: room, Kind: NoticeTurnResolved, Payload: res})
		if res.Advanced {
			return g.afterTurnLocked(ctx, s, res.Next)
		}
		if err := g.sessions.Put(ctx, s); err != nil {
			return err
		}
		g.scheduleTurnTimeout(room, res.Player, s.Round())
		return nil
	})
	switch {
	case err == nil:
	case blackjack.IsRuleViolation(err):
		g.logger.Debug(op+" rejected", zap.Int64("room_id", room), zap.Int64("player_id", playerID), zap.Error(err))
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, blackjack.ErrDeckExhausted):
	default:
		// The action never landed; keep the player on the clock.
		g.scheduleLooseTurnTimeout(room, playerID)
	}
	return res, err
}

// KickAFK excludes a player from the hand. When the player held the turn,
// the turn moves on; when nobody is left, the table is settled and removed.
// A room without a game is ignored.
//
// Postcondition: a player who is not holding the turn during player turns, or
// a kick after the players are done, is rejected and leaves the hand as it was.
func (g *GameService) KickAFK(ctx context.Context, room, playerID int64) error {
	err := g.guard.do(ctx, room, "kick_afk", func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		return g.excludeLocked(ctx, s, playerID)
	})
	return ignoreNoSession(err)
}

// expireTurn is the turn timer callback. cards < 0 skips the hand check.
// The player is kicked only if they still hold the turn with the hand they
// had when the timer was armed.
func (g *GameService) expireTurn(ctx context.Context, room, playerID int64, round, cards int) error {
	err := g.guard.do(ctx, room, "turn_timeout", func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		cur := s.CurrentPlayer()
		if s.Phase() != blackjack.PhasePlayerTurns || cur == nil || cur.ID != playerID {
			return nil
		}
		if cards >= 0 && (s.Round() != round || len(cur.Cards) != cards) {
			return nil
		}
		g.logger.Info("player kicked for inactivity", zap.Int64("room_id", room), zap.Int64("player_id", playerID))
		return g.excludeLocked(ctx, s, playerID)
	})
	return ignoreNoSession(err)
}

// DealerReveal turns the hole card and opens round two.
func (g *GameService) DealerReveal(ctx context.Context, room int64) error {
	return g.HandleDealerDue(ctx, events.DealerDue{Room: room, Action: blackjack.DealerActionReveal})
}

// DealerPlay draws the dealer out and raises the game-ending event.
func (g *GameService) DealerPlay(ctx context.Context, room int64) error {
	return g.HandleDealerDue(ctx, events.DealerDue{Room: room, Action: blackjack.DealerActionPlay})
}

// HandleDealerDue applies a dealer-due event. Redelivered or stale events
// re-raise whatever step the session is actually waiting for.
func (g *GameService) HandleDealerDue(ctx context.Context, p events.DealerDue) error {
	room := p.Room
	err := g.guard.do(ctx, room, "dealer_"+string(p.Action), func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		switch {
		case s.Phase() == blackjack.PhaseDealerDone:
			g.raiseLocked(ctx, s)
			return nil
		case s.Phase() != blackjack.PhaseDealerTurn:
			g.logger.Debug("stale dealer event", zap.Int64("room_id", room), zap.String("action", string(p.Action)))
			return nil
		case s.DealerDueAction() != p.Action:
			g.raiseLocked(ctx, s)
			return nil
		}

		switch p.Action {
		case blackjack.DealerActionReveal:
			rev, err := s.RevealSecondRound()
			if err != nil {
				return err
			}
			g.notify(ctx, Notice{Room: room, Kind: NoticeDealerRevealed, Payload: rev})
			return g.afterTurnLocked(ctx, s, rev.CurrentTurn)
		case blackjack.DealerActionPlay:
			steps, err := s.DealerPlays()
			g.notify(ctx, Notice{Room: room, Kind: NoticeDealerPlayed, Payload: DealerPlayed{Steps: steps, Dealer: s.Dealer()}})
			if errors.Is(err, blackjack.ErrDeckExhausted) {
				return g.abortLocked(ctx, s)
			}
			if err != nil {
				return err
			}
			if err := g.sessions.Put(ctx, s); err != nil {
				return err
			}
			g.raiseLocked(ctx, s)
			return nil
		default:
			return fmt.Errorf("unknown dealer action %q", p.Action)
		}
	})
	return ignoreNoSession(err)
}

// EndGame settles the hand, pays out, and removes the session.
func (g *GameService) EndGame(ctx context.Context, room int64, reason string) error {
	return g.HandleGameEnding(ctx, events.GameEnding{Room: room, Reason: reason})
}

// HandleGameEnding applies a game-ending event. A room whose session is
// already gone is ignored, so a redelivered event never pays twice.
func (g *GameService) HandleGameEnding(ctx context.Context, p events.GameEnding) error {
	err := g.guard.do(ctx, p.Room, "end_game", func(ctx context.Context) error {
		s, err := g.load(ctx, p.Room)
		if err != nil {
			return err
		}
		if s.Phase() != blackjack.PhaseDealerDone && s.Seated() > 0 {
			g.logger.Warn("game ending before the dealer finished",
				zap.Int64("room_id", p.Room),
				zap.String("phase", string(s.Phase())),
			)
			return nil
		}
		return g.finishLocked(ctx, s, p.Reason)
	})
	return ignoreNoSession(err)
}

// HandleLobbyStarted creates the game of a finished lobby. A game that
// already exists means the event was delivered before.
func (g *GameService) HandleLobbyStarted(ctx context.Context, p events.LobbyStarted) error {
	err := g.CreateGame(ctx, p.Lobby)
	if errors.Is(err, ErrSessionExists) {
		g.logger.Debug("lobby already started", zap.Int64("room_id", p.Lobby.Room))
		return nil
	}
	return err
}

// openTurnsLocked deals once betting has closed.
//
// Precondition: s.Phase() == PhaseDealing.
func (g *GameService) openTurnsLocked(ctx context.Context, s *blackjack.Session) error {
	room := s.Room()
	if s.Seated() == 0 {
		return g.finishLocked(ctx, s, reasonNoPlayers)
	}
	deal, err := s.Deal()
	if errors.Is(err, blackjack.ErrDeckExhausted) {
		return g.abortLocked(ctx, s)
	}
	if err != nil {
		return err
	}
	g.notify(ctx, Notice{Room: room, Kind: NoticeDealt, Payload: deal})
	if err := g.states.Set(ctx, room, storage.StatePlaying); err != nil {
		return err
	}
	return g.afterTurnLocked(ctx, s, deal.CurrentTurn)
}

// afterTurnLocked stores s and hands the turn to next, or raises the dealer
// event when next is nil.
func (g *GameService) afterTurnLocked(ctx context.Context, s *blackjack.Session, next *blackjack.PlayerView) error {
	if err := g.sessions.Put(ctx, s); err != nil {
		return err
	}
	if next == nil {
		g.raiseLocked(ctx, s)
		return nil
	}
	g.scheduleTurnTimeout(s.Room(), *next, s.Round())
	g.notify(ctx, Notice{Room: s.Room(), Kind: NoticeTurnStarted, Payload: *next})
	return nil
}

func (g *GameService) excludeLocked(ctx context.Context, s *blackjack.Session, playerID int64) error {
	room := s.Room()
	before := s.Phase()
	res, err := s.Exclude(playerID)
	if err != nil {
		return err
	}
	g.scheduler.Cancel(timer.TurnKey(room, playerID))
	g.notify(ctx, Notice{Room: room, Kind: NoticePlayersExcluded, Payload: []blackjack.PlayerView{res.Player}})

	if s.Seated() == 0 {
		g.scheduler.Cancel(timer.BidKey(room))
		return g.finishLocked(ctx, s, reasonNoPlayers)
	}
	switch {
	case before == blackjack.PhaseBetting && s.Phase() == blackjack.PhaseDealing:
		g.scheduler.Cancel(timer.BidKey(room))
		return g.openTurnsLocked(ctx, s)
	case before == blackjack.PhasePlayerTurns && (res.Advanced || res.DealerTurn):
		return g.afterTurnLocked(ctx, s, res.Next)
	default:
		return g.sessions.Put(ctx, s)
	}
}

// abortLocked ends a hand that cannot continue and settles it as it stands.
func (g *GameService) abortLocked(ctx context.Context, s *blackjack.Session) error {
	const reason = "deck exhausted"
	g.logger.Error("aborting hand",
		zap.Int64("room_id", s.Room()),
		zap.String("session_id", s.ID()),
		zap.String("reason", reason),
	)
	dealer, err := s.Abort()
	if err != nil {
		return err
	}
	g.notify(ctx, Notice{Room: s.Room(), Kind: NoticeGameAborted, Payload: dealer})
	return g.finishLocked(ctx, s, reason)
}

// finishLocked settles s, credits wins and pushes, and removes the session.
// Payouts are keyed by the settlement id, so a retry after a failed teardown
// does not pay twice.
func (g *GameService) finishLocked(ctx context.Context, s *blackjack.Session, reason string) error {
	room := s.Room()
	st, err := s.Settle()
	if err != nil {
		return err
	}
	applied, err := g.accounts.ApplyPayouts(ctx, st.ID, st.Credits())
	if err != nil {
		return fmt.Errorf("paying out settlement %s: %w", st.ID, err)
	}
	if !applied {
		g.logger.Warn("settlement already paid", zap.Int64("room_id", room), zap.String("settlement_id", st.ID))
	}
	if err := g.teardownLocked(ctx, s); err != nil {
		return err
	}
	g.logger.Info("game settled",
		zap.Int64("room_id", room),
		zap.String("settlement_id", st.ID),
		zap.Int("wins", len(st.Wins)),
		zap.Int("losses", len(st.Losses)),
		zap.Int("pushes", len(st.Pushes)),
	)
	g.notify(ctx, Notice{Room: room, Kind: NoticeSettled, Payload: Ending{Settlement: st, Reason: reason}})
	return nil
}

func (g *GameService) teardownLocked(ctx context.Context, s *blackjack.Session) error {
	room := s.Room()
	g.scheduler.Cancel(timer.BidKey(room))
	g.scheduler.Cancel(timer.DealerKey(room))
	for _, p := range s.Players() {
		g.scheduler.Cancel(timer.TurnKey(room, p.ID))
	}
	if err := g.sessions.Delete(ctx, room); err != nil {
		return err
	}
	return g.states.Clear(ctx, room)
}

// raiseLocked publishes the event a stored session waits on once its players
// are done: dealer-due in PhaseDealerTurn, game-ending in PhaseDealerDone.
// The session is already stored, so a failed publish is not the caller's
// failure; it arms a retry that re-reads the session and raises again.
func (g *GameService) raiseLocked(ctx context.Context, s *blackjack.Session) {
	room := s.Room()
	var err error
	switch s.Phase() {
	case blackjack.PhaseDealerTurn:
		err = g.publishDealerDue(ctx, s)
	case blackjack.PhaseDealerDone:
		err = g.publishEnding(ctx, room, "")
	default:
		return
	}
	if err == nil {
		g.scheduler.Cancel(timer.DealerKey(room))
		return
	}
	g.logger.Error("raising dealer event",
		zap.Int64("room_id", room),
		zap.String("phase", string(s.Phase())),
		zap.Duration("retry_in", g.cfg.RetryDelay),
		zap.Error(err),
	)
	err = g.scheduler.ScheduleOnce(timer.DealerKey(room), g.cfg.RetryDelay, func(ctx context.Context) error {
		return g.retryDealer(ctx, room)
	})
	if err != nil {
		g.logger.Error("arming dealer retry", zap.Int64("room_id", room), zap.Error(err))
	}
}

func (g *GameService) retryDealer(ctx context.Context, room int64) error {
	err := g.guard.do(ctx, room, "dealer_retry", func(ctx context.Context) error {
		s, err := g.load(ctx, room)
		if err != nil {
			return err
		}
		g.raiseLocked(ctx, s)
		return nil
	})
	return ignoreNoSession(err)
}

func (g *GameService) publishDealerDue(ctx context.Context, s *blackjack.Session) error {
	_, err := g.bus.Publish(ctx, events.TopicDealerDue, events.DealerDue{Room: s.Room(), Action: s.DealerDueAction()})
	return err
}

func (g *GameService) publishEnding(ctx context.Context, room int64, reason string) error {
	_, err := g.bus.Publish(ctx, events.TopicGameEnding, events.GameEnding{Room: room, Reason: reason})
	return err
}

func (g *GameService) scheduleBidTimeout(room int64) {
	err := g.scheduler.ScheduleOnce(timer.BidKey(room), g.cfg.BidTimeout, func(ctx context.Context) error {
		return g.BidTimeout(ctx, room)
	})
	if err != nil {
		g.logger.Error("arming bid timer", zap.Int64("room_id", room), zap.Error(err))
	}
}

func (g *GameService) scheduleTurnTimeout(room int64, p blackjack.PlayerView, round int) {
	cards := len(p.Cards)
	err := g.scheduler.ScheduleOnce(timer.TurnKey(room, p.ID), g.cfg.TurnTimeout, func(ctx context.Context) error {
		return g.expireTurn(ctx, room, p.ID, round, cards)
	})
	if err != nil {
		g.logger.Error("arming turn timer", zap.Int64("room_id", room), zap.Int64("player_id", p.ID), zap.Error(err))
	}
}

func (g *GameService) scheduleLooseTurnTimeout(room, playerID int64) {
	err := g.scheduler.ScheduleOnce(timer.TurnKey(room, playerID), g.cfg.TurnTimeout, func(ctx context.Context) error {
		return g.expireTurn(ctx, room, playerID, 0, -1)
	})
	if err != nil {
		g.logger.Error("arming turn timer", zap.Int64("room_id", room), zap.Int64("player_id", playerID), zap.Error(err))
	}
}

func (g *GameService) refund(ctx context.Context, room, playerID, amount int64) {
	if _, err := g.accounts.Adjust(context.WithoutCancel(ctx), playerID, amount); err != nil {
		g.logger.Error("refunding bid",
			zap.Int64("room_id", room),
			zap.Int64("player_id", playerID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
	}
}

func (g *GameService) load(ctx context.Context, room int64) (*blackjack.Session, error) {
	s, err := g.sessions.Get(ctx, room)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return s, err
}

func (g *GameService) notify(ctx context.Context, n Notice) {
	if err := g.notifier.Notify(ctx, n); err != nil {
		g.logger.Warn("notifying chat", zap.Int64("room_id", n.Room), zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func ignoreNoSession(err error) error {
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	return err
}
