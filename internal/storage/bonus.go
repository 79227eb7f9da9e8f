package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBonusTooEarly is returned when the bonus cooldown has not elapsed.
	ErrBonusTooEarly = errors.New("bonus not available yet")
	// ErrBonusBalanceTooHigh is returned when the balance is not below the bonus threshold.
	ErrBonusBalanceTooHigh = errors.New("bonus only for low balances")
)

// BonusTerms describe the top-up a broke player may claim.
type BonusTerms struct {
	// Amount is credited per claim.
	Amount int64
	// Below is the exclusive balance ceiling for a claim.
	Below int64
	// Cooldown is the minimum time between two claims of one user.
	Cooldown time.Duration
}

// DefaultBonusTerms pays 125 to balances under 5, once a day.
func DefaultBonusTerms() BonusTerms {
	return BonusTerms{Amount: 125, Below: 5, Cooldown: 24 * time.Hour}
}

// BonusClaim is the outcome of a bonus request.
type BonusClaim struct {
	// Balance is the balance after the claim, or the unchanged balance on refusal.
	Balance int64
	// NextAt is when the next claim opens. It is set on success and on ErrBonusTooEarly.
	NextAt time.Time
}

// Check applies the terms to an account state. last is zero when the user
// never claimed. The balance rule is checked before the cooldown.
//
// Postcondition: on nil error claim.Balance includes Amount.
func (t BonusTerms) Check(balance int64, last, now time.Time) (BonusClaim, error) {
	if balance >= t.Below {
		return BonusClaim{Balance: balance}, fmt.Errorf("%w: balance %d, limit %d", ErrBonusBalanceTooHigh, balance, t.Below)
	}
	if !last.IsZero() {
		if next := last.Add(t.Cooldown); now.Before(next) {
			return BonusClaim{Balance: balance, NextAt: next}, ErrBonusTooEarly
		}
	}
	return BonusClaim{Balance: balance + t.Amount, NextAt: now.Add(t.Cooldown)}, nil
}
