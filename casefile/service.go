package casefile

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/arbitrator"
	"arbflow/escrow"
	"arbflow/fault"
	"arbflow/ledger"
	"arbflow/oracle"
)

// Service runs the case lifecycle. Every operation is one transaction: lock
// the case row, re-validate authorization, existence, and status in that
// order, apply writes and any escrow movement, append the case event, commit.
type Service struct {
	pool       *pgxpool.Pool
	repo       *Repository
	escrowRepo *escrow.Repository
	ledgerRepo *ledger.Repository
	arbRepo    *arbitrator.Repository
	prices     oracle.PriceOracle
	now        func() time.Time
}

func NewService(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, escrowRepo *escrow.Repository, arbRepo *arbitrator.Repository, prices oracle.PriceOracle) *Service {
	return &Service{
		pool:       pool,
		repo:       NewRepository(),
		escrowRepo: escrowRepo,
		ledgerRepo: ledgerRepo,
		arbRepo:    arbRepo,
		prices:     prices,
		now:        time.Now,
	}
}

func (s *Service) Repo() *Repository { return s.repo }

// Get reads one casefile.
func (s *Service) Get(ctx context.Context, id int64) (Casefile, error) {
	return s.repo.Get(ctx, s.pool, id)
}

// Claims lists a case's claims.
func (s *Service) Claims(ctx context.Context, caseID int64) ([]Claim, error) {
	if _, err := s.repo.Get(ctx, s.pool, caseID); err != nil {
		return nil, err
	}
	return s.repo.Claims(ctx, s.pool, caseID)
}

func (s *Service) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("casefile: begin tx: %w", err)
	}
	return tx, nil
}

func commit(ctx context.Context, tx pgx.Tx, op string) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("casefile: commit %s: %w", op, err)
	}
	return nil
}

func requireClaimant(cf Casefile, caller string) error {
	if caller != cf.Claimant {
		return fault.Authorization("casefile: only the claimant may do this")
	}
	return nil
}

func requireAssignedArbitrator(cf Casefile, caller string) error {
	if cf.Arbitrator == nil || *cf.Arbitrator != caller {
		return fault.Authorization("casefile: only the assigned arbitrator may do this")
	}
	return nil
}

func requireStatus(cf Casefile, want Status) error {
	if cf.Status != want {
		return fault.Precondition(fmt.Sprintf("casefile: case %d is %s, not %s", cf.ID, cf.Status, want))
	}
	return nil
}

// releaseToClaimant returns the case's whole escrow to the claimant and
// reports the amount moved. The caller subtracts it from reserved_funds.
func (s *Service) releaseToClaimant(ctx context.Context, tx pgx.Tx, cf Casefile) (int64, error) {
	refund := cf.FeePaid + cf.ArbitratorCost
	if refund == 0 {
		return 0, nil
	}
	if err := s.escrowRepo.AddBalance(ctx, tx, cf.Claimant, refund); err != nil {
		return 0, err
	}
	return refund, nil
}
