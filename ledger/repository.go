package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"arbflow/db"
	"arbflow/fault"
)

var (
	// ErrNotInitialized is returned while no config row exists yet.
	ErrNotInitialized = fault.Precondition("ledger: contract not initialized")
	// ErrAlreadyInitialized guards double initialization.
	ErrAlreadyInitialized = fault.Precondition("ledger: contract already initialized")
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const configColumns = `admin_account, contract_version, max_elected_arbs,
       election_voting_secs, runoff_voting_secs, add_candidates_secs,
       arb_term_secs, max_claims_per_case, fee_usd, offer_window_secs,
       available_funds, reserved_funds, current_election_id`

func scanConfig(row pgx.Row) (Config, error) {
	var c Config
	err := row.Scan(
		&c.AdminAccount,
		&c.ContractVersion,
		&c.MaxElectedArbs,
		&c.ElectionVotingSec,
		&c.RunoffVotingSec,
		&c.AddCandidatesSec,
		&c.ArbTermSec,
		&c.MaxClaimsPerCase,
		&c.FeeUSD,
		&c.OfferWindowSec,
		&c.AvailableFunds,
		&c.ReservedFunds,
		&c.CurrentElectionID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrNotInitialized
		}
		return Config{}, fmt.Errorf("ledger: load config: %w", err)
	}
	return c, nil
}

// Get reads the config row without locking it.
func (r *Repository) Get(ctx context.Context, q db.Querier) (Config, error) {
	return scanConfig(q.QueryRow(ctx, `SELECT `+configColumns+` FROM config`))
}

// GetForUpdate locks the config row for the remainder of the transaction.
// Every operation that moves funds or rotates the current election goes
// through here, which serializes them the way the host ledger would.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx) (Config, error) {
	return scanConfig(tx.QueryRow(ctx, `SELECT `+configColumns+` FROM config FOR UPDATE`))
}

// Save rewrites the config row.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, c Config) error {
	_, err := tx.Exec(ctx, `
        UPDATE config SET
            admin_account = $1,
            contract_version = $2,
            max_elected_arbs = $3,
            election_voting_secs = $4,
            runoff_voting_secs = $5,
            add_candidates_secs = $6,
            arb_term_secs = $7,
            max_claims_per_case = $8,
            fee_usd = $9,
            offer_window_secs = $10,
            available_funds = $11,
            reserved_funds = $12,
            current_election_id = $13
    `,
		c.AdminAccount,
		c.ContractVersion,
		c.MaxElectedArbs,
		c.ElectionVotingSec,
		c.RunoffVotingSec,
		c.AddCandidatesSec,
		c.ArbTermSec,
		c.MaxClaimsPerCase,
		c.FeeUSD,
		c.OfferWindowSec,
		c.AvailableFunds,
		c.ReservedFunds,
		c.CurrentElectionID,
	)
	if err != nil {
		return fmt.Errorf("ledger: save config: %w", err)
	}
	return nil
}

// Insert creates the config row during initialization.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, admin string) error {
	tag, err := tx.Exec(ctx, `
        INSERT INTO config (onerow, admin_account)
        VALUES (true, $1)
        ON CONFLICT (onerow) DO NOTHING
    `, admin)
	if err != nil {
		return fmt.Errorf("ledger: insert config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}
