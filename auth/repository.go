package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound signals that the account does not exist.
	ErrAccountNotFound = errors.New("auth: account not found")
	// ErrDuplicateAccount signals the account name or email is taken.
	ErrDuplicateAccount = errors.New("auth: account already registered")
)

// Repository handles data access for authentication.
type Repository interface {
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccount(ctx context.Context, account string) (Account, error)
}

// CreateAccountParams contains write parameters for creating accounts.
type CreateAccountParams struct {
	Account      string
	Email        string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed auth repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `account, email, password_hash, role, created_at, updated_at`

// CreateAccount inserts a new account with hashed password.
func (r *PGRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	const insertSQL = `
		INSERT INTO accounts (account, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.pool.QueryRow(ctx, insertSQL, params.Account, params.Email, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, fmt.Errorf("auth: create account: %w", err)
	}

	return acc, nil
}

// GetAccount retrieves an account by its on-ledger name.
func (r *PGRepository) GetAccount(ctx context.Context, account string) (Account, error) {
	const selectSQL = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE account = $1
	`

	acc, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, account))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("auth: get account: %w", err)
	}

	return acc, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acc Account
	err := row.Scan(
		&acc.Account,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Role,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}
