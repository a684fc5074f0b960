package offerbook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arbflow/db"
	"arbflow/fault"
)

var (
	// ErrNotFound is returned for unknown offer ids.
	ErrNotFound = fault.Precondition("offerbook: offer not found")
	// ErrDuplicatePending enforces one pending offer per case and arbitrator.
	ErrDuplicatePending = fault.Invariant("offerbook: a pending offer already exists for this case")
)

const uniqueViolation = "23505"

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const offerColumns = `id, case_id, arbitrator, hourly_rate, estimated_hours, status, created_at`

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	err := row.Scan(&o.ID, &o.CaseID, &o.Arbitrator, &o.HourlyRate, &o.EstimatedHours, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offerbook: load offer: %w", err)
	}
	return o, nil
}

// Get reads one offer.
func (r *Repository) Get(ctx context.Context, q db.Querier, id int64) (Offer, error) {
	return scanOffer(q.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

// GetForUpdate locks one offer for the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Offer, error) {
	return scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, id))
}

// Insert files a fresh pending offer. The partial unique index turns a second
// pending offer by the same arbitrator into ErrDuplicatePending.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, caseID int64, arb string, hourlyRate int64, hours int16) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
        INSERT INTO offers (case_id, arbitrator, hourly_rate, estimated_hours)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, caseID, arb, hourlyRate, hours).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicatePending
		}
		return 0, fmt.Errorf("offerbook: insert offer: %w", err)
	}
	return id, nil
}

// UpdateTerms rewrites a pending offer's rate and hours.
func (r *Repository) UpdateTerms(ctx context.Context, tx pgx.Tx, id, hourlyRate int64, hours int16) error {
	if _, err := tx.Exec(ctx, `
        UPDATE offers SET hourly_rate = $2, estimated_hours = $3 WHERE id = $1
    `, id, hourlyRate, hours); err != nil {
		return fmt.Errorf("offerbook: update offer: %w", err)
	}
	return nil
}

// SetStatus moves one offer to a new status.
func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, id int64, status Status) error {
	if _, err := tx.Exec(ctx, `UPDATE offers SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("offerbook: set offer status: %w", err)
	}
	return nil
}

// ByCase lists a case's offers in filing order.
func (r *Repository) ByCase(ctx context.Context, q db.Querier, caseID int64) ([]Offer, error) {
	rows, err := q.Query(ctx, `
        SELECT `+offerColumns+` FROM offers WHERE case_id = $1 ORDER BY id
    `, caseID)
	if err != nil {
		return nil, fmt.Errorf("offerbook: list offers: %w", err)
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
