package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// Accounts is an in-memory storage.AccountStore.
type Accounts struct {
	mu       sync.Mutex
	accounts map[int64]storage.Account
	applied  map[string]struct{}
}

// NewAccounts creates an empty Accounts.
func NewAccounts() *Accounts {
	return &Accounts{
		accounts: make(map[int64]storage.Account),
		applied:  make(map[string]struct{}),
	}
}

// Open implements storage.AccountStore.
func (a *Accounts) Open(ctx context.Context, userID int64, name string, initial int64) (storage.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acct, ok := a.accounts[userID]; ok {
		return acct, nil
	}
	acct := storage.Account{UserID: userID, Name: name, Balance: initial, CreatedAt: time.Now().UTC()}
	a.accounts[userID] = acct
	return acct, nil
}

// Balance implements storage.AccountStore.
func (a *Accounts) Balance(ctx context.Context, userID int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
	}
	return acct.Balance, nil
}

// Adjust implements storage.AccountStore.
func (a *Accounts) Adjust(ctx context.Context, userID int64, delta int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
	}
	if acct.Balance+delta < 0 {
		return acct.Balance, storage.ErrInsufficientFunds
	}
	acct.Balance += delta
	a.accounts[userID] = acct
	return acct.Balance, nil
}

// ApplyPayouts implements storage.AccountStore.
func (a *Accounts) ApplyPayouts(ctx context.Context, settlementID string, credits map[int64]int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, done := a.applied[settlementID]; done {
		return false, nil
	}
	for userID := range credits {
		if _, ok := a.accounts[userID]; !ok {
			return false, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
		}
	}
	for userID, amount := range credits {
		acct := a.accounts[userID]
		acct.Balance += amount
		a.accounts[userID] = acct
	}
	a.applied[settlementID] = struct{}{}
	return true, nil
}

// Top implements storage.AccountStore.
func (a *Accounts) Top(ctx context.Context, n int) ([]storage.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]storage.Account, 0, len(a.accounts))
	for _, acct := range a.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].UserID < out[j].UserID
	})
	if n < len(out) {
		out = out[:max(n, 0)]
	}
	return out, nil
}

// ClaimBonus implements storage.AccountStore.
func (a *Accounts) ClaimBonus(ctx context.Context, userID int64, terms storage.BonusTerms, now time.Time) (storage.BonusClaim, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[userID]
	if !ok {
		return storage.BonusClaim{}, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
	}
	claim, err := terms.Check(acct.Balance, acct.LastBonusAt, now)
	if err != nil {
		return claim, err
	}
	acct.Balance = claim.Balance
	acct.LastBonusAt = now.UTC()
	a.accounts[userID] = acct
	return claim, nil
}
