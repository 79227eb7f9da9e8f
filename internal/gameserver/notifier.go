package gameserver

import (
	"context"

	"go.uber.org/zap"
)

// NoticeKind names what happened in a room.
type NoticeKind string

const (
	NoticeLobbyOpened     NoticeKind = "lobby_opened"
	NoticeLobbyJoined     NoticeKind = "lobby_joined"
	NoticeLobbyLeft       NoticeKind = "lobby_left"
	NoticeLobbyCountdown  NoticeKind = "lobby_countdown"
	NoticeLobbyCancelled  NoticeKind = "lobby_cancelled"
	NoticeGameCreated     NoticeKind = "game_created"
	NoticeBidAccepted     NoticeKind = "bid_accepted"
	NoticePlayersExcluded NoticeKind = "players_excluded"
	NoticeDealt           NoticeKind = "dealt"
	NoticeTurnStarted     NoticeKind = "turn_started"
	NoticeTurnResolved    NoticeKind = "turn_resolved"
	NoticeDealerRevealed  NoticeKind = "dealer_revealed"
	NoticeDealerPlayed    NoticeKind = "dealer_played"
	NoticeGameAborted     NoticeKind = "game_aborted"
	NoticeSettled         NoticeKind = "settled"
)

// Notice is a structured result handed to the chat layer. Payload is one of
// the blackjack result types, a lobby.Lobby, or one of the payload structs
// declared next to the operation that emits it.
type Notice struct {
	Room    int64
	Kind    NoticeKind
	Payload any
}

// Notifier renders notices for users. Delivery failures are logged by the
// services and never undo a game operation.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// LogNotifier writes every notice to a zap logger. It stands in for the chat
// layer when the server runs headless.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
//
// Precondition: logger must be non-nil.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notice Notice) error {
	n.logger.Info("notice",
		zap.Int64("room_id", notice.Room),
		zap.String("kind", string(notice.Kind)),
		zap.Any("payload", notice.Payload),
	)
	return nil
}
