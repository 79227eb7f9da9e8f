package blackjack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules are the house rules of a table.
type Rules struct {
	// MinBid is the smallest accepted bid.
	MinBid int64 `yaml:"min_bid" json:"min_bid"`
	// MaxBid is the largest accepted bid; zero means unlimited.
	MaxBid int64 `yaml:"max_bid" json:"max_bid"`
	// MaxPlayers caps the number of seats.
	MaxPlayers int `yaml:"max_players" json:"max_players"`
	// DealerStandsOn is the total at which the dealer stops drawing (soft or hard).
	DealerStandsOn int `yaml:"dealer_stands_on" json:"dealer_stands_on"`
}

// DefaultRules returns the standard single-deck table: dealer stands on 17,
// seven seats, minimum bid 1.
func DefaultRules() Rules {
	return Rules{
		MinBid:         1,
		MaxBid:         0,
		MaxPlayers:     7,
		DealerStandsOn: 17,
	}
}

// Validate checks the rule invariants.
//
// Postcondition: Returns nil if the rules are playable, or an error describing all violations.
func (r Rules) Validate() error {
	var errs []string
	if r.MinBid < 1 {
		errs = append(errs, fmt.Sprintf("min_bid must be >= 1, got %d", r.MinBid))
	}
	if r.MaxBid != 0 && r.MaxBid < r.MinBid {
		errs = append(errs, fmt.Sprintf("max_bid must be 0 or >= min_bid, got %d", r.MaxBid))
	}
	// Two cards per seat plus the dealer's two must fit in one deck with room to hit.
	if r.MaxPlayers < 1 || r.MaxPlayers > 10 {
		errs = append(errs, fmt.Sprintf("max_players must be 1-10, got %d", r.MaxPlayers))
	}
	if r.DealerStandsOn < 12 || r.DealerStandsOn > 21 {
		errs = append(errs, fmt.Sprintf("dealer_stands_on must be 12-21, got %d", r.DealerStandsOn))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// LoadRules reads house rules from a YAML file. Fields absent from the file
// keep their DefaultRules values.
//
// Precondition: path names a readable YAML file.
// Postcondition: Returns valid Rules or a non-nil error.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes house rules from YAML, rejecting unknown keys.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("parsing rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}
