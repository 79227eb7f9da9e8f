// Package gameserver drives blackjack tables in chat rooms. LobbyService
// gathers players and counts down to the deal; GameService owns the session
// state machine, arms the bid and turn timers, settles balances, and handles
// the events those timers publish. Every mutation of a room runs under that
// room's distributed lock.
package gameserver
