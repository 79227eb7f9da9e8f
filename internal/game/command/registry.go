package command

import (
	"fmt"
	"sort"
	"strings"
)

// Registry resolves command words, canonical or alias, to commands.
type Registry struct {
	// lookup holds every word a player may type, canonical names included.
	lookup map[string]*Command
	byName []*Command
}

// NewRegistry indexes cmds by name and alias.
//
// Precondition: every name and alias is non-empty and lower case.
// Postcondition: Returns an error naming the first word claimed twice.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{lookup: make(map[string]*Command, len(cmds)*2)}
	claim := func(word string, cmd *Command) error {
		if word == "" || word != strings.ToLower(word) {
			return fmt.Errorf("command %q: word %q must be non-empty lower case", cmd.Name, word)
		}
		if owner, taken := r.lookup[word]; taken {
			return fmt.Errorf("duplicate command word %q: claimed by %q and %q", word, owner.Name, cmd.Name)
		}
		r.lookup[word] = cmd
		return nil
	}
	for i := range cmds {
		cmd := &cmds[i]
		if err := claim(cmd.Name, cmd); err != nil {
			return nil, err
		}
		for _, alias := range cmd.Aliases {
			if err := claim(alias, cmd); err != nil {
				return nil, err
			}
		}
		r.byName = append(r.byName, cmd)
	}
	sort.Slice(r.byName, func(i, j int) bool { return r.byName[i].Name < r.byName[j].Name })
	return r, nil
}

// DefaultRegistry returns a Registry of BuiltinCommands. It panics if the
// built-in table is inconsistent.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by name or alias.
func (r *Registry) Resolve(word string) (*Command, bool) {
	cmd, ok := r.lookup[word]
	return cmd, ok
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	return append([]*Command(nil), r.byName...)
}

// CommandsByCategory returns commands grouped by category, each group sorted by name.
func (r *Registry) CommandsByCategory() map[string][]*Command {
	categories := make(map[string][]*Command)
	for _, cmd := range r.byName {
		categories[cmd.Category] = append(categories[cmd.Category], cmd)
	}
	return categories
}

var categoryOrder = []string{CategoryLobby, CategoryTable, CategoryAccount, CategorySystem}

// Help renders the command list grouped by category, one command per line.
func (r *Registry) Help() string {
	cats := r.CommandsByCategory()
	var b strings.Builder
	for _, cat := range categoryOrder {
		if len(cats[cat]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", cat)
		for _, cmd := range cats[cat] {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&b, "  %s - %s\n", usage, cmd.Help)
		}
	}
	return b.String()
}
