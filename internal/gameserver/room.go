package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

const instrumentation = "github.com/cory-johannsen/blackjack/internal/gameserver"

var (
	// ErrNoActiveSession is returned when a room has no blackjack session.
	ErrNoActiveSession = errors.New("no active game in this chat")
	// ErrSessionExists is returned when creating a game in a room that already has one.
	ErrSessionExists = errors.New("a game is already running in this chat")
	// ErrLobbyExists is returned when opening a second lobby in a room.
	ErrLobbyExists = errors.New("a lobby is already open in this chat")
	// ErrNoLobby is returned when a room has no open lobby.
	ErrNoLobby = errors.New("no open lobby in this chat")
	// ErrLobbyTimeout is returned when a lobby countdown is outside the configured bounds.
	ErrLobbyTimeout = errors.New("lobby timeout out of range")
)

// roomGuard serialises every mutation of a room behind the room lease and
// traces it.
type roomGuard struct {
	locker storage.Locker
	opts   storage.LockOptions
	logger *zap.Logger
	tracer trace.Tracer
}

func newRoomGuard(locker storage.Locker, opts storage.LockOptions, logger *zap.Logger) roomGuard {
	return roomGuard{
		locker: locker,
		opts:   opts,
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer(instrumentation),
	}
}

// do runs fn while holding the room lease. fn sees a context that ends when
// the hold ceiling elapses, so a stuck store call cannot outlive the lease.
//
// Postcondition: The lease is released before do returns.
func (g roomGuard) do(ctx context.Context, room int64, op string, fn func(ctx context.Context) error) (err error) {
	ctx, span := g.tracer.Start(ctx, "gameserver."+op, trace.WithAttributes(attribute.Int64("room_id", room)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lease, err := storage.Acquire(ctx, g.locker, storage.RoomLockName(room), g.opts)
	if err != nil {
		if errors.Is(err, storage.ErrLockTimeout) {
			g.logger.Warn("room lock timed out", zap.Int64("room_id", room), zap.String("op", op))
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		// Released on a fresh context: the operation context may already be past its hold ceiling.
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			g.logger.Warn("room lock release failed",
				zap.Int64("room_id", room),
				zap.String("op", op),
				zap.Error(rerr),
			)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, g.opts.Hold)
	defer cancel()
	return fn(hctx)
}
