package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/lobby"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

var (
	// ErrUnknownCommand is returned for text that names no command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command's arguments are malformed.
	ErrUsage = errors.New("usage")
)

const (
	defaultTopCount = 10
	maxTopCount     = 50
)

// Lobbies is the part of gameserver.LobbyService the dispatcher drives.
type Lobbies interface {
	Open(ctx context.Context, room int64, creator blackjack.Participant, timeout time.Duration) (*lobby.Lobby, error)
	Join(ctx context.Context, room int64, p blackjack.Participant) (*lobby.Lobby, error)
	Leave(ctx context.Context, room, userID int64) error
	Cancel(ctx context.Context, room int64) error
	Start(ctx context.Context, room int64) error
}

// Games is the part of gameserver.GameService the dispatcher drives.
type Games interface {
	PlaceBid(ctx context.Context, room, playerID, amount int64) (blackjack.BidResult, error)
	Hit(ctx context.Context, room, playerID int64) (blackjack.TurnResult, error)
	Stand(ctx context.Context, room, playerID int64) (blackjack.TurnResult, error)
	Snapshot(ctx context.Context, room int64) (blackjack.Snapshot, error)
}

// Invocation is one line of chat text from a user in a room.
type Invocation struct {
	Room int64
	User blackjack.Participant
	Text string
}

// Dispatcher routes parsed commands to the services. Mutating commands
// answer through the services' notices; queries answer with a reply string.
type Dispatcher struct {
	registry *Registry
	lobbies  Lobbies
	games    Games
	accounts storage.AccountStore
	bonus    storage.BonusTerms
	now      func() time.Time
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher. bonus sets the terms of the bonus
// command; now supplies the claim time, nil meaning time.Now.
//
// Precondition: all arguments other than now must be non-nil.
func NewDispatcher(registry *Registry, lobbies Lobbies, games Games, accounts storage.AccountStore, bonus storage.BonusTerms, now func() time.Time, logger *zap.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{registry: registry, lobbies: lobbies, games: games, accounts: accounts, bonus: bonus, now: now, logger: logger}
}

// Execute runs the command in inv.Text.
//
// Postcondition: Returns ErrUnknownCommand when the text names no command,
// ErrUsage (wrapped with the expected shape) for malformed arguments, or the
// service error unchanged.
func (d *Dispatcher) Execute(ctx context.Context, inv Invocation) (string, error) {
	parsed := Parse(inv.Text)
	cmd, ok := d.registry.Resolve(parsed.Command)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, parsed.Command)
	}
	d.logger.Debug("command",
		zap.Int64("room_id", inv.Room),
		zap.Int64("player_id", inv.User.ID),
		zap.String("command", cmd.Name),
		zap.Strings("args", parsed.Args),
	)

	switch cmd.Handler {
	case HandlerLobby:
		timeout, err := secondsArg(cmd, parsed.Args)
		if err != nil {
			return "", err
		}
		_, err = d.lobbies.Open(ctx, inv.Room, inv.User, timeout)
		return "", err
	case HandlerJoin:
		_, err := d.lobbies.Join(ctx, inv.Room, inv.User)
		return "", err
	case HandlerLeave:
		return "", d.lobbies.Leave(ctx, inv.Room, inv.User.ID)
	case HandlerCancel:
		return "", d.lobbies.Cancel(ctx, inv.Room)
	case HandlerStart:
		return "", d.lobbies.Start(ctx, inv.Room)
	case HandlerBid:
		amount, err := amountArg(cmd, parsed.Args)
		if err != nil {
			return "", err
		}
		_, err = d.games.PlaceBid(ctx, inv.Room, inv.User.ID, amount)
		return "", err
	case HandlerHit:
		_, err := d.games.Hit(ctx, inv.Room, inv.User.ID)
		return "", err
	case HandlerStand:
		_, err := d.games.Stand(ctx, inv.Room, inv.User.ID)
		return "", err
	case HandlerTable:
		snap, err := d.games.Snapshot(ctx, inv.Room)
		if err != nil {
			return "", err
		}
		return RenderTable(snap), nil
	case HandlerProfile:
		balance, err := d.accounts.Balance(ctx, inv.User.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Sprintf("%s has not played yet", inv.User.Name), nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: balance %d", inv.User.Name, balance), nil
	case HandlerTop:
		n, err := countArg(cmd, parsed.Args)
		if err != nil {
			return "", err
		}
		top, err := d.accounts.Top(ctx, n)
		if err != nil {
			return "", err
		}
		return RenderTop(top), nil
	case HandlerBonus:
		return d.claimBonus(ctx, inv.User)
	case HandlerHelp:
		return d.registry.Help(), nil
	default:
		return "", fmt.Errorf("command %q has no handler", cmd.Name)
	}
}

// claimBonus answers every refusal with a reply; only storage failures are errors.
func (d *Dispatcher) claimBonus(ctx context.Context, user blackjack.Participant) (string, error) {
	now := d.now()
	claim, err := d.accounts.ClaimBonus(ctx, user.ID, d.bonus, now)
	switch {
	case err == nil:
		d.logger.Info("bonus paid",
			zap.Int64("player_id", user.ID),
			zap.Int64("amount", d.bonus.Amount),
			zap.Int64("balance", claim.Balance),
		)
		return fmt.Sprintf("%s: bonus %d paid, balance %d", user.Name, d.bonus.Amount, claim.Balance), nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Sprintf("%s has not played yet", user.Name), nil
	case errors.Is(err, storage.ErrBonusBalanceTooHigh):
		return fmt.Sprintf("%s: bonus only below %d, balance %d", user.Name, d.bonus.Below, claim.Balance), nil
	case errors.Is(err, storage.ErrBonusTooEarly):
		wait := claim.NextAt.Sub(now).Round(time.Minute)
		return fmt.Sprintf("%s: next bonus in %s", user.Name, wait), nil
	default:
		return "", err
	}
}

// countArg reads the optional leaderboard length.
func countArg(cmd *Command, args []string) (int, error) {
	if len(args) == 0 {
		return defaultTopCount, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || len(args) > 1 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, cmd.Usage)
	}
	return min(n, maxTopCount), nil
}

// secondsArg reads the optional lobby countdown; zero selects the default.
func secondsArg(cmd *Command, args []string) (time.Duration, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, cmd.Usage)
	}
	return time.Duration(n) * time.Second, nil
}

func amountArg(cmd *Command, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, cmd.Usage)
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, cmd.Usage)
	}
	return n, nil
}

// RenderTable formats a session as plain text: the dealer, then each player
// in turn order with a marker on the one to act.
func RenderTable(snap blackjack.Snapshot) string {
	var b strings.Builder
	dealer := snap.Dealer.View()
	hole := ""
	if dealer.Hidden {
		hole = " ??"
	}
	fmt.Fprintf(&b, "round %d, %s\n", snap.Round, snap.Phase)
	fmt.Fprintf(&b, "dealer: %s%s (%d)\n", dealer.CardsText, hole, dealer.Score)
	for i := range snap.Players {
		p := snap.Players[i].View()
		marker := " "
		if snap.Phase == blackjack.PhasePlayerTurns && i == snap.CurrentPlayerIndex {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %s: %s (%d) bid %d", marker, p.Name, p.CardsText, p.Score, p.Bid)
		if p.Outcome != blackjack.OutcomeNone {
			fmt.Fprintf(&b, " [%s]", p.Outcome)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderTop formats the leaderboard one numbered line per account.
func RenderTop(accounts []storage.Account) string {
	if len(accounts) == 0 {
		return "no players yet"
	}
	var b strings.Builder
	for i, acct := range accounts {
		fmt.Fprintf(&b, "%d. %s %d\n", i+1, acct.Name, acct.Balance)
	}
	return b.String()
}
