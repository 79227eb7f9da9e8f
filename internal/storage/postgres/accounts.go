package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// AccountRepository implements storage.AccountStore on the accounts and
// applied_settlements tables.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Open implements storage.AccountStore. An existing account keeps its balance;
// its display name is refreshed.
func (r *AccountRepository) Open(ctx context.Context, userID int64, name string, initial int64) (storage.Account, error) {
	var acct storage.Account
	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (user_id, name, balance)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name
		 RETURNING user_id, name, balance, created_at`,
		userID, name, initial,
	).Scan(&acct.UserID, &acct.Name, &acct.Balance, &acct.CreatedAt)
	if err != nil {
		return storage.Account{}, fmt.Errorf("opening account %d: %w", userID, err)
	}
	return acct, nil
}

// Balance implements storage.AccountStore.
func (r *AccountRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("querying balance %d: %w", userID, err)
	}
	return balance, nil
}

// Adjust implements storage.AccountStore.
func (r *AccountRepository) Adjust(ctx context.Context, userID int64, delta int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		 WHERE user_id = $1 AND balance + $2 >= 0
		 RETURNING balance`,
		userID, delta,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjusting balance %d: %w", userID, err)
	}
	current, err := r.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return current, storage.ErrInsufficientFunds
}

// ApplyPayouts implements storage.AccountStore. The settlement marker and the
// credits commit together.
func (r *AccountRepository) ApplyPayouts(ctx context.Context, settlementID string, credits map[int64]int64) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO applied_settlements (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			settlementID,
		)
		if err != nil {
			return fmt.Errorf("recording settlement %s: %w", settlementID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		for userID, amount := range credits {
			tag, err := tx.Exec(ctx,
				`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE user_id = $1`,
				userID, amount,
			)
			if err != nil {
				return fmt.Errorf("crediting %d: %w", userID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Top implements storage.AccountStore.
func (r *AccountRepository) Top(ctx context.Context, n int) ([]storage.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, name, balance, created_at, last_bonus_at FROM accounts
		 ORDER BY balance DESC, user_id
		 LIMIT $1`,
		max(n, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("querying top accounts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Account, error) {
		var (
			acct  storage.Account
			bonus *time.Time
		)
		err := row.Scan(&acct.UserID, &acct.Name, &acct.Balance, &acct.CreatedAt, &bonus)
		if bonus != nil {
			acct.LastBonusAt = *bonus
		}
		return acct, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning top accounts: %w", err)
	}
	return out, nil
}

// ClaimBonus implements storage.AccountStore. The row is locked while the
// terms are checked, so concurrent claims cannot both pass the cooldown.
func (r *AccountRepository) ClaimBonus(ctx context.Context, userID int64, terms storage.BonusTerms, now time.Time) (storage.BonusClaim, error) {
	var claim storage.BonusClaim
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var (
			balance int64
			last    *time.Time
		)
		err := tx.QueryRow(ctx,
			`SELECT balance, last_bonus_at FROM accounts WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&balance, &last)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
			}
			return fmt.Errorf("reading bonus state %d: %w", userID, err)
		}
		var lastAt time.Time
		if last != nil {
			lastAt = *last
		}
		if claim, err = terms.Check(balance, lastAt, now); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = $2, last_bonus_at = $3, updated_at = NOW() WHERE user_id = $1`,
			userID, claim.Balance, now.UTC(),
		)
		if err != nil {
			return fmt.Errorf("crediting bonus %d: %w", userID, err)
		}
		return nil
	})
	return claim, err
}
