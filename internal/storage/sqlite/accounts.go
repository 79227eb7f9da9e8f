package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/blackjack/internal/storage"
)

// Open implements storage.AccountStore.
func (s *Store) Open(ctx context.Context, userID int64, name string, initial int64) (storage.Account, error) {
	now := s.nowMillis()
	var (
		acct    storage.Account
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO accounts (user_id, name, balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET name = excluded.name
RETURNING user_id, name, balance, created_at
`, userID, name, initial, now, now).Scan(&acct.UserID, &acct.Name, &acct.Balance, &created)
	if err != nil {
		return storage.Account{}, fmt.Errorf("open account %d: %w", userID, err)
	}
	acct.CreatedAt = time.UnixMilli(created).UTC()
	return acct, nil
}

// Balance implements storage.AccountStore.
func (s *Store) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("balance %d: %w", userID, err)
	}
	return balance, nil
}

// Adjust implements storage.AccountStore.
func (s *Store) Adjust(ctx context.Context, userID int64, delta int64) (int64, error) {
	var balance int64
	err := s.sqlDB.QueryRowContext(ctx, `
UPDATE accounts SET balance = balance + ?, updated_at = ?
WHERE user_id = ? AND balance + ? >= 0
RETURNING balance
`, delta, s.nowMillis(), userID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust %d: %w", userID, err)
	}
	current, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return current, storage.ErrInsufficientFunds
}

// ApplyPayouts implements storage.AccountStore.
func (s *Store) ApplyPayouts(ctx context.Context, settlementID string, credits map[int64]int64) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin payouts: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.nowMillis()
	res, err := tx.ExecContext(ctx, `INSERT INTO applied_settlements (id, applied_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, settlementID, now)
	if err != nil {
		return false, fmt.Errorf("record settlement %s: %w", settlementID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("record settlement %s: %w", settlementID, err)
	} else if n == 0 {
		return false, nil
	}
	for userID, amount := range credits {
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE user_id = ?`, amount, now, userID)
		if err != nil {
			return false, fmt.Errorf("credit %d: %w", userID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return false, fmt.Errorf("credit %d: %w", userID, err)
		} else if n == 0 {
			return false, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit payouts: %w", err)
	}
	return true, nil
}

// Top implements storage.AccountStore.
func (s *Store) Top(ctx context.Context, n int) ([]storage.Account, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, name, balance, created_at, last_bonus_at FROM accounts
ORDER BY balance DESC, user_id
LIMIT ?
`, max(n, 0))
	if err != nil {
		return nil, fmt.Errorf("top accounts: %w", err)
	}
	defer rows.Close()

	var out []storage.Account
	for rows.Next() {
		var (
			acct    storage.Account
			created int64
			bonus   sql.NullInt64
		)
		if err := rows.Scan(&acct.UserID, &acct.Name, &acct.Balance, &created, &bonus); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acct.CreatedAt = time.UnixMilli(created).UTC()
		if bonus.Valid {
			acct.LastBonusAt = time.UnixMilli(bonus.Int64).UTC()
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top accounts: %w", err)
	}
	return out, nil
}

// ClaimBonus implements storage.AccountStore.
func (s *Store) ClaimBonus(ctx context.Context, userID int64, terms storage.BonusTerms, now time.Time) (storage.BonusClaim, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.BonusClaim{}, fmt.Errorf("begin bonus: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		balance int64
		last    sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `SELECT balance, last_bonus_at FROM accounts WHERE user_id = ?`, userID).Scan(&balance, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BonusClaim{}, fmt.Errorf("account %d: %w", userID, storage.ErrNotFound)
		}
		return storage.BonusClaim{}, fmt.Errorf("read bonus state %d: %w", userID, err)
	}
	var lastAt time.Time
	if last.Valid {
		lastAt = time.UnixMilli(last.Int64).UTC()
	}
	claim, err := terms.Check(balance, lastAt, now)
	if err != nil {
		return claim, err
	}
	at := now.UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, last_bonus_at = ?, updated_at = ? WHERE user_id = ?`,
		claim.Balance, at, at, userID,
	); err != nil {
		return storage.BonusClaim{}, fmt.Errorf("credit bonus %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.BonusClaim{}, fmt.Errorf("commit bonus: %w", err)
	}
	return claim, nil
}
