package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
)

// ChatState tags what kind of input a room is currently waiting for.
type ChatState string

const (
	// StateBidding routes numeric messages to bids.
	StateBidding ChatState = "bidding"
	// StatePlaying routes hit/stand buttons to the turn handler.
	StatePlaying ChatState = "playing"
)

func sessionKey(room int64) string { return fmt.Sprintf("game:%d", room) }
func lobbyKey(room int64) string   { return fmt.Sprintf("lobby:%d", room) }
func stateKey(room int64) string   { return fmt.Sprintf("state:%d", room) }

// RoomLockName is the lock guarding every mutation of a room.
func RoomLockName(room int64) string { return fmt.Sprintf("lock:room:%d", room) }

// SessionRepository persists blackjack sessions as JSON snapshots.
type SessionRepository struct {
	kv  KV
	ttl time.Duration
}

// NewSessionRepository creates a SessionRepository. Entries expire after ttl
// so abandoned games do not accumulate; zero keeps them forever.
//
// Precondition: kv must be non-nil.
func NewSessionRepository(kv KV, ttl time.Duration) *SessionRepository {
	return &SessionRepository{kv: kv, ttl: ttl}
}

// Get loads the room's session.
//
// Postcondition: Returns ErrNotFound when the room has no session.
func (r *SessionRepository) Get(ctx context.Context, room int64) (*blackjack.Session, error) {
	data, err := r.kv.Get(ctx, sessionKey(room))
	if err != nil {
		return nil, err
	}
	var snap blackjack.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding session %d: %w", room, err)
	}
	s, err := blackjack.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("loading session %d: %w", room, err)
	}
	return s, nil
}

// Exists reports whether the room has a session.
func (r *SessionRepository) Exists(ctx context.Context, room int64) (bool, error) {
	_, err := r.kv.Get(ctx, sessionKey(room))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores the session, replacing any previous snapshot.
func (r *SessionRepository) Put(ctx context.Context, s *blackjack.Session) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding session %d: %w", s.Room(), err)
	}
	if err := r.kv.Set(ctx, sessionKey(s.Room()), data, r.ttl); err != nil {
		return fmt.Errorf("storing session %d: %w", s.Room(), err)
	}
	return nil
}

// Delete removes the room's session.
func (r *SessionRepository) Delete(ctx context.Context, room int64) error {
	return r.kv.Delete(ctx, sessionKey(room))
}

// LobbyRepository persists lobbies.
type LobbyRepository struct {
	kv KV
}

// NewLobbyRepository creates a LobbyRepository.
func NewLobbyRepository(kv KV) *LobbyRepository {
	return &LobbyRepository{kv: kv}
}

// Get returns ErrNotFound when the room has no lobby.
func (r *LobbyRepository) Get(ctx context.Context, room int64) (*lobby.Lobby, error) {
	data, err := r.kv.Get(ctx, lobbyKey(room))
	if err != nil {
		return nil, err
	}
	var l lobby.Lobby
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding lobby %d: %w", room, err)
	}
	return &l, nil
}

// Put stores the lobby. It expires shortly after its countdown would have
// ended, in case the start timer never ran.
func (r *LobbyRepository) Put(ctx context.Context, l *lobby.Lobby) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding lobby %d: %w", l.Room, err)
	}
	return r.kv.Set(ctx, lobbyKey(l.Room), data, 2*l.Timeout)
}

// Delete removes the room's lobby.
func (r *LobbyRepository) Delete(ctx context.Context, room int64) error {
	return r.kv.Delete(ctx, lobbyKey(room))
}

// StateRepository stores the chat-state tag of each room.
type StateRepository struct {
	kv KV
}

// NewStateRepository creates a StateRepository.
func NewStateRepository(kv KV) *StateRepository {
	return &StateRepository{kv: kv}
}

// Set tags the room.
func (r *StateRepository) Set(ctx context.Context, room int64, state ChatState) error {
	return r.kv.Set(ctx, stateKey(room), []byte(state), 0)
}

// Get returns the room's tag, or "" when untagged.
func (r *StateRepository) Get(ctx context.Context, room int64) (ChatState, error) {
	data, err := r.kv.Get(ctx, stateKey(room))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ChatState(data), nil
}

// Clear removes the room's tag.
func (r *StateRepository) Clear(ctx context.Context, room int64) error {
	return r.kv.Delete(ctx, stateKey(room))
}
