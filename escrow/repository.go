package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"arbflow/db"
	"arbflow/fault"
)

var (
	// ErrNoBalance is returned when an account holds no deposit.
	ErrNoBalance = fault.Precondition("escrow: account has no deposit")
	// ErrOverdraw guards against debiting more than an account holds.
	ErrOverdraw = fault.Invariant("escrow: debit exceeds held balance")
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Balance reads an account's current deposit.
func (r *Repository) Balance(ctx context.Context, q db.Querier, account string) (Balance, error) {
	var b Balance
	err := q.QueryRow(ctx, `
        SELECT account, amount, updated_at FROM balances WHERE account = $1
    `, account).Scan(&b.Account, &b.Amount, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrNoBalance
		}
		return Balance{}, fmt.Errorf("escrow: load balance: %w", err)
	}
	return b, nil
}

// AddBalance credits an account, creating the row on first deposit.
func (r *Repository) AddBalance(ctx context.Context, tx pgx.Tx, account string, amount int64) error {
	if amount <= 0 {
		return fault.Precondition("escrow: credit must be positive")
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO balances (account, amount)
        VALUES ($1, $2)
        ON CONFLICT (account) DO UPDATE
        SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
    `, account, amount)
	if err != nil {
		return fmt.Errorf("escrow: add balance: %w", err)
	}
	return nil
}

// SubBalance debits an account under a row lock. Draining the balance to
// exactly zero deletes the row, so the positive-amount check never trips.
func (r *Repository) SubBalance(ctx context.Context, tx pgx.Tx, account string, amount int64) error {
	if amount <= 0 {
		return fault.Precondition("escrow: debit must be positive")
	}

	var held int64
	err := tx.QueryRow(ctx, `
        SELECT amount FROM balances WHERE account = $1 FOR UPDATE
    `, account).Scan(&held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoBalance
		}
		return fmt.Errorf("escrow: lock balance: %w", err)
	}
	if held < amount {
		return ErrOverdraw
	}

	if held == amount {
		_, err = tx.Exec(ctx, `DELETE FROM balances WHERE account = $1`, account)
	} else {
		_, err = tx.Exec(ctx, `
            UPDATE balances SET amount = amount - $2, updated_at = now() WHERE account = $1
        `, account, amount)
	}
	if err != nil {
		return fmt.Errorf("escrow: sub balance: %w", err)
	}
	return nil
}

// Erase removes an account's balance row and reports the amount it held.
func (r *Repository) Erase(ctx context.Context, tx pgx.Tx, account string) (int64, error) {
	var held int64
	err := tx.QueryRow(ctx, `
        DELETE FROM balances WHERE account = $1 RETURNING amount
    `, account).Scan(&held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoBalance
		}
		return 0, fmt.Errorf("escrow: erase balance: %w", err)
	}
	return held, nil
}
