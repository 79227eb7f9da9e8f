// Package lobby models the pre-game waiting room of a chat: players join
// until the countdown runs out, then the lobby turns into a blackjack session.
package lobby

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
)

var (
	// ErrAlreadyJoined is returned when a user joins a lobby twice.
	ErrAlreadyJoined = errors.New("already in the lobby")
	// ErrNotJoined is returned when a user leaves a lobby they are not in.
	ErrNotJoined = errors.New("not in the lobby")
	// ErrFull is returned when the lobby has no free seat.
	ErrFull = errors.New("lobby is full")
)

// Lobby is the waiting room of one chat.
//
// Invariant: Users holds unique ids in join order.
type Lobby struct {
	Room      int64                   `json:"room"`
	Users     []blackjack.Participant `json:"users"`
	CreatedAt time.Time               `json:"created_at"`
	Timeout   time.Duration           `json:"timeout"`
	Seats     int                     `json:"seats"`
}

// New opens a lobby with its creator seated first.
//
// Precondition: seats >= 1.
func New(room int64, creator blackjack.Participant, timeout time.Duration, seats int, now time.Time) *Lobby {
	return &Lobby{
		Room:      room,
		Users:     []blackjack.Participant{creator},
		CreatedAt: now.UTC(),
		Timeout:   timeout,
		Seats:     seats,
	}
}

// Has reports whether the user is seated.
func (l *Lobby) Has(userID int64) bool {
	for _, u := range l.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Add seats a user at the end of the join order.
func (l *Lobby) Add(p blackjack.Participant) error {
	if l.Has(p.ID) {
		return ErrAlreadyJoined
	}
	if len(l.Users) >= l.Seats {
		return fmt.Errorf("%w: %d seats", ErrFull, l.Seats)
	}
	l.Users = append(l.Users, p)
	return nil
}

// Remove unseats a user.
func (l *Lobby) Remove(userID int64) error {
	for i, u := range l.Users {
		if u.ID == userID {
			l.Users = append(l.Users[:i], l.Users[i+1:]...)
			return nil
		}
	}
	return ErrNotJoined
}

// Empty reports whether nobody is left.
func (l *Lobby) Empty() bool { return len(l.Users) == 0 }

// StartsAt returns the time the countdown ends.
func (l *Lobby) StartsAt() time.Time { return l.CreatedAt.Add(l.Timeout) }

// Names returns the seated users' names joined for display.
func (l *Lobby) Names() string {
	names := make([]string, len(l.Users))
	for i, u := range l.Users {
		names[i] = u.Name
	}
	return strings.Join(names, ", ")
}
