package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/fault"
	"arbflow/ledger"
	"arbflow/outbox"
)

// Service handles inbound deposits and outbound withdrawals.
type Service struct {
	pool         *pgxpool.Pool
	repo         *Repository
	ledgerRepo   *ledger.Repository
	depositToken string
}

func NewService(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, depositToken string) *Service {
	return &Service{
		pool:         pool,
		repo:         NewRepository(),
		ledgerRepo:   ledgerRepo,
		depositToken: depositToken,
	}
}

func (s *Service) Repo() *Repository { return s.repo }

// HandleDeposit applies one inbound transfer notification. The gateway may
// deliver the same notification more than once; the transfer id doubles as
// an idempotency key so replays are absorbed without double-crediting.
func (s *Service) HandleDeposit(ctx context.Context, d Deposit) error {
	if d.TransferID == "" {
		return fault.Precondition("escrow: transfer id required")
	}
	if d.From == "" || d.From == d.To {
		return nil
	}
	if !strings.EqualFold(d.Token, s.depositToken) {
		return fault.Precondition("escrow: only " + s.depositToken + " deposits are accepted")
	}
	if d.Amount <= 0 {
		return fault.Precondition("escrow: deposit must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        INSERT INTO idempotency (key) VALUES ($1) ON CONFLICT (key) DO NOTHING
    `, "deposit:"+d.TransferID)
	if err != nil {
		return fmt.Errorf("escrow: record transfer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	// Memo "skip" routes the transfer to the communal pool instead of the
	// sender's own deposit.
	if strings.TrimSpace(d.Memo) == "skip" {
		conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		conf.AvailableFunds += d.Amount
		if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
			return err
		}
	} else {
		if err := s.repo.AddBalance(ctx, tx, d.From, d.Amount); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow: commit deposit: %w", err)
	}
	return nil
}

// Withdraw returns an account's whole deposit. The transfer itself is carried
// out by the payout worker off the outbox; the balance row is gone as soon as
// this commits, so a second withdrawal finds nothing to take.
func (s *Service) Withdraw(ctx context.Context, account string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	held, err := s.repo.Erase(ctx, tx, account)
	if err != nil {
		return 0, err
	}

	err = outbox.Enqueue(ctx, tx, outbox.TopicTransferRequest, map[string]any{
		"to":     account,
		"amount": held,
		"token":  s.depositToken,
		"memo":   "withdrawal",
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("escrow: commit withdrawal: %w", err)
	}
	return held, nil
}

// BalanceOf reads an account's current deposit.
func (s *Service) BalanceOf(ctx context.Context, account string) (Balance, error) {
	return s.repo.Balance(ctx, s.pool, account)
}
