package arbitrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/fault"
)

// Service covers the self-service surface of a seated arbitrator.
type Service struct {
	pool *pgxpool.Pool
	repo *Repository
	now  func() time.Time
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, repo: NewRepository(), now: time.Now}
}

func (s *Service) Repo() *Repository { return s.repo }

// SetStatus lets an arbitrator toggle their own availability. Removed and
// out-of-term arbitrators cannot reinstate themselves; only an election can.
func (s *Service) SetStatus(ctx context.Context, caller string, status Status) error {
	if status != StatusAvailable && status != StatusUnavailable {
		return fault.Precondition("arbitrator: status must be available or unavailable")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("arbitrator: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	arb, err := s.repo.GetForUpdate(ctx, tx, caller)
	if err != nil {
		return err
	}
	if arb.Status == StatusRemoved {
		return fault.Precondition("arbitrator: removed from the roster")
	}
	if arb.Status == StatusSeatExpired || !arb.TermValid(s.now()) {
		return fault.Precondition("arbitrator: term has expired")
	}

	if err := s.repo.SetStatus(ctx, tx, caller, status); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("arbitrator: commit set status: %w", err)
	}
	return nil
}

// SetLanguages replaces an arbitrator's language capability set.
func (s *Service) SetLanguages(ctx context.Context, caller string, languages []int16) error {
	if len(languages) == 0 {
		return fault.Precondition("arbitrator: at least one language code required")
	}
	seen := make(map[int16]bool, len(languages))
	for _, l := range languages {
		if l < 0 {
			return fault.Precondition("arbitrator: language codes must not be negative")
		}
		if seen[l] {
			return fault.Precondition("arbitrator: duplicate language code")
		}
		seen[l] = true
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("arbitrator: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	arb, err := s.repo.GetForUpdate(ctx, tx, caller)
	if err != nil {
		return err
	}
	if arb.Status == StatusRemoved {
		return fault.Precondition("arbitrator: removed from the roster")
	}

	if _, err := tx.Exec(ctx, `UPDATE arbitrators SET languages = $2 WHERE account = $1`, caller, languages); err != nil {
		return fmt.Errorf("arbitrator: set languages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("arbitrator: commit set languages: %w", err)
	}
	return nil
}

// Get reads one roster row.
func (s *Service) Get(ctx context.Context, account string) (Arbitrator, error) {
	return s.repo.Get(ctx, s.pool, account)
}

// CaseLists derives the account's open, closed, and recused case lists.
func (s *Service) CaseLists(ctx context.Context, account string) (CaseLists, error) {
	if _, err := s.repo.Get(ctx, s.pool, account); err != nil {
		return CaseLists{}, err
	}
	return s.repo.CaseLists(ctx, s.pool, account)
}

// Roster lists every roster row.
func (s *Service) Roster(ctx context.Context) ([]Arbitrator, error) {
	return s.repo.Roster(ctx, s.pool)
}
