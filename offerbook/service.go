package offerbook

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/arbitrator"
	"arbflow/casefile"
	"arbflow/fault"
)

// Service is the arbitrator-facing side of the offer book.
type Service struct {
	pool     *pgxpool.Pool
	repo     *Repository
	caseRepo *casefile.Repository
	arbRepo  *arbitrator.Repository
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, caseRepo *casefile.Repository, arbRepo *arbitrator.Repository) *Service {
	return &Service{
		pool:     pool,
		repo:     NewRepository(),
		caseRepo: caseRepo,
		arbRepo:  arbRepo,
		now:      time.Now,
	}
}

func (s *Service) Repo() *Repository { return s.repo }

// MakeOffer files a new bid, or reprices the caller's still-pending bid when
// offerID names one.
func (s *Service) MakeOffer(ctx context.Context, caller string, caseID int64, offerID *int64, hourlyRate int64, estimatedHours int16) (int64, error) {
	if hourlyRate <= 0 {
		return 0, fault.Precondition("offerbook: hourly rate must be positive")
	}
	if estimatedHours < 1 {
		return 0, fault.Precondition("offerbook: at least one estimated hour required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("offerbook: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cf, err := s.caseRepo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return 0, err
	}
	if cf.Status != casefile.StatusAwaitingArbs {
		return 0, fault.Precondition("offerbook: case is not taking offers")
	}
	now := s.now()
	if cf.OffersUntil == nil || now.After(*cf.OffersUntil) {
		return 0, fault.Precondition("offerbook: offer window has closed")
	}
	if caller == cf.Claimant || (cf.Respondant != nil && *cf.Respondant == caller) {
		return 0, fault.Precondition("offerbook: a party to the case cannot bid on it")
	}

	arb, err := s.arbRepo.Get(ctx, tx, caller)
	if err != nil {
		return 0, err
	}
	if arb.Status != arbitrator.StatusAvailable {
		return 0, fault.Precondition("offerbook: arbitrator is not available")
	}
	if !arb.TermValid(now) {
		return 0, fault.Precondition("offerbook: arbitrator term has expired")
	}

	if offerID == nil {
		id, err := s.repo.Insert(ctx, tx, caseID, caller, hourlyRate, estimatedHours)
		if err != nil {
			return 0, err
		}
		cf.NumberOffers++
		if err := s.caseRepo.Save(ctx, tx, cf); err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("offerbook: commit offer: %w", err)
		}
		return id, nil
	}

	offer, err := s.repo.GetForUpdate(ctx, tx, *offerID)
	if err != nil {
		return 0, err
	}
	if offer.Arbitrator != caller {
		return 0, fault.Authorization("offerbook: offer belongs to another arbitrator")
	}
	if offer.CaseID != caseID {
		return 0, fault.Precondition("offerbook: offer belongs to another case")
	}
	if offer.Status != StatusPending {
		return 0, fault.Precondition("offerbook: offer is no longer pending")
	}

	if err := s.repo.UpdateTerms(ctx, tx, offer.ID, hourlyRate, estimatedHours); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("offerbook: commit repriced offer: %w", err)
	}
	return offer.ID, nil
}

// DismissOffer withdraws the caller's own pending bid.
func (s *Service) DismissOffer(ctx context.Context, caller string, offerID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("offerbook: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	offer, err := s.repo.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return err
	}
	if offer.Arbitrator != caller {
		return fault.Authorization("offerbook: offer belongs to another arbitrator")
	}
	if offer.Status != StatusPending {
		return fault.Precondition("offerbook: offer is no longer pending")
	}

	if err := s.repo.SetStatus(ctx, tx, offerID, StatusDismissed); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("offerbook: commit dismiss offer: %w", err)
	}
	return nil
}

// ByCase lists a case's offers.
func (s *Service) ByCase(ctx context.Context, caseID int64) ([]Offer, error) {
	if _, err := s.caseRepo.Get(ctx, s.pool, caseID); err != nil {
		return nil, err
	}
	return s.repo.ByCase(ctx, s.pool, caseID)
}
