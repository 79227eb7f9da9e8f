// Package command parses chat text into table commands and dispatches them
// to the lobby and game services.
package command

// Categories for organizing commands.
const (
	CategoryLobby   = "lobby"
	CategoryTable   = "table"
	CategoryAccount = "account"
	CategorySystem  = "system"
)

// Handler identifiers mapping commands to service operations.
const (
	HandlerLobby   = "lobby"
	HandlerJoin    = "join"
	HandlerLeave   = "leave"
	HandlerCancel  = "cancel"
	HandlerStart   = "start"
	HandlerBid     = "bid"
	HandlerHit     = "hit"
	HandlerStand   = "stand"
	HandlerTable   = "table"
	HandlerProfile = "profile"
	HandlerTop     = "top"
	HandlerBonus   = "bonus"
	HandlerHelp    = "help"
)

// Command defines a player-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument shape, e.g. "bid <amount>".
	Usage string
	// Help is the short help text displayed to players.
	Help string
	// Category groups the command.
	Category string
	// Handler maps to the service operation.
	Handler string
}

// BuiltinCommands returns all built-in commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "lobby", Aliases: []string{"startgame"}, Usage: "lobby [seconds]", Help: "Open a lobby; the game starts when the countdown ends", Category: CategoryLobby, Handler: HandlerLobby},
		{Name: "join", Help: "Take a seat in the open lobby", Category: CategoryLobby, Handler: HandlerJoin},
		{Name: "leave", Help: "Leave the open lobby", Category: CategoryLobby, Handler: HandlerLeave},
		{Name: "cancel", Help: "Close the open lobby", Category: CategoryLobby, Handler: HandlerCancel},
		{Name: "go", Aliases: []string{"now"}, Help: "Start the game without waiting for the countdown", Category: CategoryLobby, Handler: HandlerStart},

		{Name: "bid", Aliases: []string{"bet", "ставка"}, Usage: "bid <amount>", Help: "Place your bid for this hand", Category: CategoryTable, Handler: HandlerBid},
		{Name: "hit", Aliases: []string{"h", "card"}, Help: "Draw a card", Category: CategoryTable, Handler: HandlerHit},
		{Name: "stand", Aliases: []string{"s", "stay"}, Help: "Keep your hand", Category: CategoryTable, Handler: HandlerStand},
		{Name: "table", Aliases: []string{"t"}, Help: "Show the hands on the table", Category: CategoryTable, Handler: HandlerTable},

		{Name: "profile", Aliases: []string{"balance", "bal"}, Help: "Show your balance", Category: CategoryAccount, Handler: HandlerProfile},
		{Name: "top", Aliases: []string{"leaderboard", "lb"}, Usage: "top [count]", Help: "Show the richest players", Category: CategoryAccount, Handler: HandlerTop},
		{Name: "bonus", Aliases: []string{"daily"}, Help: "Claim the daily top-up when you are broke", Category: CategoryAccount, Handler: HandlerBonus},

		{Name: "help", Aliases: []string{"?"}, Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
	}
}
