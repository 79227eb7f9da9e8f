package gameserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/blackjack/internal/events"
	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/card"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
	"github.com/cory-johannsen/blackjack/internal/game/timer"
	"github.com/cory-johannsen/blackjack/internal/gameserver"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

var (
	ann = blackjack.Participant{ID: 1, Name: "ann"}
	bob = blackjack.Participant{ID: 2, Name: "bob"}
)

func TestLobbyOpen_TimeoutBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lobbies.Open(ctx, room, ann, 5*time.Second)
	assert.ErrorIs(t, err, gameserver.ErrLobbyTimeout)
	_, err = h.lobbies.Open(ctx, room, ann, time.Hour)
	assert.ErrorIs(t, err, gameserver.ErrLobbyTimeout)
	assert.Zero(t, h.scheduler.Len())

	lb, err := h.lobbies.Open(ctx, room, ann, 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, lb.Timeout)
	assert.Equal(t, start, lb.CreatedAt)
	assert.True(t, h.scheduler.Pending(timer.LobbyKey(room)))
	assert.True(t, h.scheduler.Pending(timer.LobbyIntervalKey(room)))
}

func TestLobbyOpen_Conflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lobbies.Open(ctx, room, ann, 0)
	require.NoError(t, err)
	_, err = h.lobbies.Open(ctx, room, bob, 0)
	assert.ErrorIs(t, err, gameserver.ErrLobbyExists)

	require.NoError(t, h.lobbies.Cancel(ctx, room))
	assert.ErrorIs(t, h.lobbies.Cancel(ctx, room), gameserver.ErrNoLobby)

	h.create(t, 1)
	_, err = h.lobbies.Open(ctx, room, ann, 0)
	assert.ErrorIs(t, err, gameserver.ErrSessionExists)
}

func TestLobbyJoinAndLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lobbies.Join(ctx, room, bob)
	assert.ErrorIs(t, err, gameserver.ErrNoLobby)

	_, err = h.lobbies.Open(ctx, room, ann, 0)
	require.NoError(t, err)
	lb, err := h.lobbies.Join(ctx, room, bob)
	require.NoError(t, err)
	assert.Equal(t, "ann, bob", lb.Names())
	_, err = h.lobbies.Join(ctx, room, bob)
	assert.ErrorIs(t, err, lobby.ErrAlreadyJoined)

	require.NoError(t, h.lobbies.Leave(ctx, room, ann.ID))
	assert.ErrorIs(t, h.lobbies.Leave(ctx, room, ann.ID), lobby.ErrNotJoined)
	require.NoError(t, h.lobbies.Leave(ctx, room, bob.ID))

	assert.Zero(t, h.scheduler.Len())
	_, err = h.lobbies.Join(ctx, room, bob)
	assert.ErrorIs(t, err, gameserver.ErrNoLobby)
	assert.Equal(t, []gameserver.NoticeKind{
		gameserver.NoticeLobbyOpened,
		gameserver.NoticeLobbyJoined,
		gameserver.NoticeLobbyLeft,
		gameserver.NoticeLobbyCancelled,
	}, h.notices.kinds())
}

func TestLobbyCountdown_StartsGame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lobbies.Open(ctx, room, ann, 0)
	require.NoError(t, err)
	_, err = h.lobbies.Join(ctx, room, bob)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	n, ok := h.notices.last(gameserver.NoticeLobbyCountdown)
	require.True(t, ok)
	assert.Equal(t, gameserver.Countdown{Remaining: 25 * time.Second, Players: "ann, bob"}, n.Payload)
	assert.Zero(t, h.log.Len(string(events.TopicLobbyStarted)))

	h.clock.Advance(25 * time.Second)
	n, _ = h.notices.last(gameserver.NoticeLobbyCountdown)
	assert.Equal(t, 5*time.Second, n.Payload.(gameserver.Countdown).Remaining)
	assert.Zero(t, h.scheduler.Len())

	started := next[events.LobbyStarted](t, h, events.TopicLobbyStarted)
	assert.Equal(t, []blackjack.Participant{ann, bob}, started.Lobby.Users)
	_, err = h.lobbies.Join(ctx, room, blackjack.Participant{ID: 3, Name: "cy"})
	assert.ErrorIs(t, err, gameserver.ErrNoLobby)

	require.NoError(t, h.games.HandleLobbyStarted(ctx, started))
	assert.Len(t, h.snapshot(t).Players, 2)
	assert.Equal(t, storage.StateBidding, h.chatState(t))
}

func TestLobbyStart_WithoutLobbyIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.lobbies.Start(context.Background(), room))
	h.noEvents(t)
}

func startWorkers(t *testing.T, h *harness) {
	t.Helper()
	pool := events.NewPool(2, 16, h.logger)
	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Start() }()
	t.Cleanup(func() {
		pool.Stop()
		assert.NoError(t, <-poolDone)
	})
	for _, l := range gameserver.NewListeners(h.bus, pool, h.games, 3, time.Millisecond, h.logger) {
		l := l
		done := make(chan error, 1)
		go func() { done <- l.Start() }()
		t.Cleanup(func() {
			l.Stop()
			assert.NoError(t, <-done)
		})
	}
}

// A lobby countdown runs into a game that the listeners drive through the
// dealer steps to settlement.
func TestEndToEnd_LobbyToSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.stack(
		c(card.Ten, card.Hearts), c(card.Six, card.Clubs),
		c(card.Ten, card.Clubs), c(card.Nine, card.Spades),
		c(card.Ten, card.Spades), c(card.Eight, card.Hearts),
		c(card.King, card.Diamonds),
	)
	startWorkers(t, h)

	_, err := h.lobbies.Open(ctx, room, ann, 0)
	require.NoError(t, err)
	_, err = h.lobbies.Join(ctx, room, bob)
	require.NoError(t, err)
	h.clock.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		st, err := h.games.ChatState(ctx, room)
		return err == nil && st == storage.StateBidding
	}, 2*time.Second, 5*time.Millisecond)

	_, err = h.games.PlaceBid(ctx, room, ann.ID, 100)
	require.NoError(t, err)
	_, err = h.games.PlaceBid(ctx, room, bob.ID, 40)
	require.NoError(t, err)

	// ann 20 and bob 17 both stand; the dealer's 16 draws a king.
	_, err = h.games.Stand(ctx, room, ann.ID)
	require.NoError(t, err)
	_, err = h.games.Stand(ctx, room, bob.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := h.games.Snapshot(ctx, room)
		return err == nil && snap.Round == 2 && snap.Phase == blackjack.PhasePlayerTurns
	}, 2*time.Second, 5*time.Millisecond)
	_, err = h.games.Stand(ctx, room, ann.ID)
	require.NoError(t, err)
	_, err = h.games.Stand(ctx, room, bob.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := h.notices.last(gameserver.NoticeSettled)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	n, _ := h.notices.last(gameserver.NoticeSettled)
	st := n.Payload.(gameserver.Ending).Settlement
	assert.True(t, st.DealerBust)
	assert.Len(t, st.Wins, 2)
	assert.Equal(t, balance+100, h.balance(t, ann.ID))
	assert.Equal(t, balance+40, h.balance(t, bob.ID))
	assert.Contains(t, h.notices.kinds(), gameserver.NoticeDealerRevealed)
	assert.Contains(t, h.notices.kinds(), gameserver.NoticeDealerPlayed)
	_, err = h.games.Snapshot(ctx, room)
	assert.ErrorIs(t, err, gameserver.ErrNoActiveSession)
}
