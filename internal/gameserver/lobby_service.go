package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/events"
	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
	"github.com/cory-johannsen/blackjack/internal/game/timer"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

// LobbyConfig bounds lobby countdowns.
type LobbyConfig struct {
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
	DefaultTimeout time.Duration
	// Tick is the spacing of countdown notices.
	Tick  time.Duration
	Seats int
	Lock  storage.LockOptions
}

// Countdown is the payload of NoticeLobbyCountdown.
type Countdown struct {
	Remaining time.Duration `json:"remaining"`
	Players   string        `json:"players"`
}

// LobbyService runs the waiting room that precedes each game. When the
// countdown ends the lobby is removed and a lobby-started event is raised.
type LobbyService struct {
	lobbies   *storage.LobbyRepository
	sessions  *storage.SessionRepository
	bus       Publisher
	scheduler *timer.Scheduler
	notifier  Notifier
	clock     timer.Clock
	cfg       LobbyConfig
	guard     roomGuard
	logger    *zap.Logger
}

// NewLobbyService creates a LobbyService.
//
// Precondition: all arguments must be non-nil; cfg.Tick > 0 and cfg.Seats >= 1.
func NewLobbyService(
	lobbies *storage.LobbyRepository,
	sessions *storage.SessionRepository,
	locker storage.Locker,
	bus Publisher,
	scheduler *timer.Scheduler,
	notifier Notifier,
	clock timer.Clock,
	cfg LobbyConfig,
	logger *zap.Logger,
) *LobbyService {
	return &LobbyService{
		lobbies:   lobbies,
		sessions:  sessions,
		bus:       bus,
		scheduler: scheduler,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		guard:     newRoomGuard(locker, cfg.Lock, logger),
		logger:    logger,
	}
}

// Open creates the room's lobby with creator seated and starts the countdown.
// A zero timeout selects the configured default.
//
// Postcondition: Returns ErrLobbyTimeout, ErrLobbyExists, or ErrSessionExists
// without side effects; otherwise the start timer and countdown are armed.
func (l *LobbyService) Open(ctx context.Context, room int64, creator blackjack.Participant, timeout time.Duration) (*lobby.Lobby, error) {
	if timeout == 0 {
		timeout = l.cfg.DefaultTimeout
	}
	if timeout < l.cfg.MinTimeout || timeout > l.cfg.MaxTimeout {
		return nil, fmt.Errorf("%w: must be between %s and %s", ErrLobbyTimeout, l.cfg.MinTimeout, l.cfg.MaxTimeout)
	}
	var lb *lobby.Lobby
	err := l.guard.do(ctx, room, "open_lobby", func(ctx context.Context) error {
		if _, err := l.lobbies.Get(ctx, room); err == nil {
			return ErrLobbyExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		exists, err := l.sessions.Exists(ctx, room)
		if err != nil {
			return err
		}
		if exists {
			return ErrSessionExists
		}
		lb = lobby.New(room, creator, timeout, l.cfg.Seats, l.clock.Now())
		if err := l.lobbies.Put(ctx, lb); err != nil {
			return err
		}
		l.arm(lb)
		l.logger.Info("lobby opened", zap.Int64("room_id", room), zap.Duration("timeout", timeout))
		l.notify(ctx, Notice{Room: room, Kind: NoticeLobbyOpened, Payload: *lb})
		return nil
	})
	return lb, err
}

// Join seats a user in the room's lobby.
func (l *LobbyService) Join(ctx context.Context, room int64, p blackjack.Participant) (*lobby.Lobby, error) {
	var lb *lobby.Lobby
	err := l.guard.do(ctx, room, "join_lobby", func(ctx context.Context) error {
		var err error
		if lb, err = l.load(ctx, room); err != nil {
			return err
		}
		if err := lb.Add(p); err != nil {
			return err
		}
		if err := l.lobbies.Put(ctx, lb); err != nil {
			return err
		}
		l.notify(ctx, Notice{Room: room, Kind: NoticeLobbyJoined, Payload: *lb})
		return nil
	})
	return lb, err
}

// Leave unseats a user. The last user leaving cancels the lobby.
func (l *LobbyService) Leave(ctx context.Context, room, userID int64) error {
	return l.guard.do(ctx, room, "leave_lobby", func(ctx context.Context) error {
		lb, err := l.load(ctx, room)
		if err != nil {
			return err
		}
		if err := lb.Remove(userID); err != nil {
			return err
		}
		if lb.Empty() {
			return l.cancelLocked(ctx, room)
		}
		if err := l.lobbies.Put(ctx, lb); err != nil {
			return err
		}
		l.notify(ctx, Notice{Room: room, Kind: NoticeLobbyLeft, Payload: *lb})
		return nil
	})
}

// Cancel removes the room's lobby and both of its timers.
func (l *LobbyService) Cancel(ctx context.Context, room int64) error {
	return l.guard.do(ctx, room, "cancel_lobby", func(ctx context.Context) error {
		if _, err := l.load(ctx, room); err != nil {
			return err
		}
		return l.cancelLocked(ctx, room)
	})
}

// Start ends the countdown early: the lobby is removed and a lobby-started
// event carries it to the game listener. A room without a lobby is ignored.
func (l *LobbyService) Start(ctx context.Context, room int64) error {
	err := l.guard.do(ctx, room, "start_lobby", func(ctx context.Context) error {
		lb, err := l.load(ctx, room)
		if err != nil {
			return err
		}
		l.scheduler.Cancel(timer.LobbyKey(room))
		l.scheduler.Cancel(timer.LobbyIntervalKey(room))
		if _, err := l.bus.Publish(ctx, events.TopicLobbyStarted, events.LobbyStarted{Lobby: *lb}); err != nil {
			return err
		}
		l.logger.Info("lobby started", zap.Int64("room_id", room), zap.Int("players", len(lb.Users)))
		return l.lobbies.Delete(ctx, room)
	})
	if errors.Is(err, ErrNoLobby) {
		return nil
	}
	return err
}

func (l *LobbyService) cancelLocked(ctx context.Context, room int64) error {
	l.scheduler.Cancel(timer.LobbyKey(room))
	l.scheduler.Cancel(timer.LobbyIntervalKey(room))
	if err := l.lobbies.Delete(ctx, room); err != nil {
		return err
	}
	l.logger.Info("lobby cancelled", zap.Int64("room_id", room))
	l.notify(ctx, Notice{Room: room, Kind: NoticeLobbyCancelled, Payload: nil})
	return nil
}

func (l *LobbyService) arm(lb *lobby.Lobby) {
	room := lb.Room
	if err := l.scheduler.ScheduleOnce(timer.LobbyKey(room), lb.Timeout, func(ctx context.Context) error {
		return l.Start(ctx, room)
	}); err != nil {
		l.logger.Error("arming lobby timer", zap.Int64("room_id", room), zap.Error(err))
		return
	}
	if err := l.scheduler.ScheduleInterval(timer.LobbyIntervalKey(room), lb.Timeout, l.cfg.Tick, func(ctx context.Context, remaining time.Duration) error {
		return l.countdown(ctx, room, remaining)
	}); err != nil {
		l.logger.Error("arming lobby countdown", zap.Int64("room_id", room), zap.Error(err))
	}
}

// countdown narrates the remaining time. It reads without the room lock;
// a notice racing a join shows a slightly stale player list.
func (l *LobbyService) countdown(ctx context.Context, room int64, remaining time.Duration) error {
	lb, err := l.load(ctx, room)
	if errors.Is(err, ErrNoLobby) {
		return nil
	}
	if err != nil {
		return err
	}
	l.notify(ctx, Notice{Room: room, Kind: NoticeLobbyCountdown, Payload: Countdown{Remaining: remaining, Players: lb.Names()}})
	return nil
}

func (l *LobbyService) load(ctx context.Context, room int64) (*lobby.Lobby, error) {
	lb, err := l.lobbies.Get(ctx, room)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoLobby
	}
	return lb, err
}

func (l *LobbyService) notify(ctx context.Context, n Notice) {
	if err := l.notifier.Notify(ctx, n); err != nil {
		l.logger.Warn("notifying chat", zap.Int64("room_id", n.Room), zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}
