package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/fault"
)

// Service exposes the administrative configuration surface.
type Service struct {
	pool *pgxpool.Pool
	repo *Repository
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, repo: NewRepository()}
}

func (s *Service) Repo() *Repository { return s.repo }

// Init creates the config row with the initial admin. It may run exactly once.
func (s *Service) Init(ctx context.Context, initialAdmin string) error {
	if initialAdmin == "" {
		return fault.Precondition("ledger: initial admin account required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Insert(ctx, tx, initialAdmin); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit init: %w", err)
	}
	return nil
}

// SetAdmin hands the admin role to another account.
func (s *Service) SetAdmin(ctx context.Context, caller, newAdmin string) error {
	if newAdmin == "" {
		return fault.Precondition("ledger: new admin account required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.repo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if caller != conf.AdminAccount {
		return fault.Authorization("ledger: only the admin can change the admin")
	}

	conf.AdminAccount = newAdmin
	if err := s.repo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit set admin: %w", err)
	}
	return nil
}

// SetVersion records a new contract version string.
func (s *Service) SetVersion(ctx context.Context, caller, version string) error {
	if version == "" {
		return fault.Precondition("ledger: version required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.repo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if caller != conf.AdminAccount {
		return fault.Authorization("ledger: only the admin can change the version")
	}

	conf.ContractVersion = version
	if err := s.repo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit set version: %w", err)
	}
	return nil
}

// SetParams updates the admin-settable domain parameters.
func (s *Service) SetParams(ctx context.Context, caller string, p Params) error {
	if p.MaxElectedArbs <= 0 {
		return fault.Precondition("ledger: elected seats must be greater than 0")
	}
	if p.MaxClaimsPerCase <= 0 {
		return fault.Precondition("ledger: minimum 1 claim per case")
	}
	if p.FeeUSD < 0 {
		return fault.Precondition("ledger: fee must not be negative")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.repo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if caller != conf.AdminAccount {
		return fault.Authorization("ledger: only the admin can change parameters")
	}

	conf.MaxElectedArbs = p.MaxElectedArbs
	conf.ElectionVotingSec = p.ElectionVotingSec
	conf.RunoffVotingSec = p.RunoffVotingSec
	conf.AddCandidatesSec = p.AddCandidatesSec
	conf.ArbTermSec = p.ArbTermSec
	conf.MaxClaimsPerCase = p.MaxClaimsPerCase
	conf.FeeUSD = p.FeeUSD
	conf.OfferWindowSec = p.OfferWindowSec

	if err := s.repo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit set params: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (s *Service) Get(ctx context.Context) (Config, error) {
	return s.repo.Get(ctx, s.pool)
}
