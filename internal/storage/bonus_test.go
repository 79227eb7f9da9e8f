package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

func TestBonusTerms_Check(t *testing.T) {
	terms := storage.DefaultBonusTerms()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claim, err := terms.Check(4, time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(129), claim.Balance)
	assert.Equal(t, now.Add(24*time.Hour), claim.NextAt)

	claim, err = terms.Check(5, time.Time{}, now)
	assert.ErrorIs(t, err, storage.ErrBonusBalanceTooHigh)
	assert.Equal(t, int64(5), claim.Balance)

	last := now.Add(-time.Hour)
	claim, err = terms.Check(0, last, now)
	assert.ErrorIs(t, err, storage.ErrBonusTooEarly)
	assert.Equal(t, last.Add(24*time.Hour), claim.NextAt)

	// A rich player hears about the balance rule, not the cooldown.
	_, err = terms.Check(500, last, now)
	assert.ErrorIs(t, err, storage.ErrBonusBalanceTooHigh)

	_, err = terms.Check(0, now.Add(-24*time.Hour), now)
	assert.NoError(t, err)
}

func TestBonusTerms_CheckPaysOnlyBelowThreshold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		terms := storage.BonusTerms{
			Amount:   rapid.Int64Range(1, 1000).Draw(t, "amount"),
			Below:    rapid.Int64Range(1, 1000).Draw(t, "below"),
			Cooldown: time.Duration(rapid.Int64Range(1, 48).Draw(t, "hours")) * time.Hour,
		}
		balance := rapid.Int64Range(0, 2000).Draw(t, "balance")
		now := time.Unix(1_700_000_000, 0)

		claim, err := terms.Check(balance, time.Time{}, now)
		if balance >= terms.Below {
			if err == nil {
				t.Fatalf("balance %d paid with limit %d", balance, terms.Below)
			}
			if claim.Balance != balance {
				t.Fatalf("refused claim changed balance %d to %d", balance, claim.Balance)
			}
			return
		}
		if err != nil {
			t.Fatalf("balance %d refused: %v", balance, err)
		}
		if claim.Balance != balance+terms.Amount {
			t.Fatalf("paid %d, want %d", claim.Balance, balance+terms.Amount)
		}
	})
}
