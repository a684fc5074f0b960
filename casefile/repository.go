package casefile

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
	// ErrCaseNotFound is returned for unknown case ids.
	ErrCaseNotFound = fault.Precondition("casefile: case not found")
	// ErrClaimNotFound is returned for unknown claim ids within a case.
	ErrClaimNotFound = fault.Precondition("casefile: claim not found")
	// ErrDuplicateLink rejects a second claim with the same evidence link.
	ErrDuplicateLink = fault.Invariant("casefile: evidence link already filed on this case")
)

const uniqueViolation = "23505"

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const caseColumns = `id, status, claimant, respondant, arbitrator, number_claims,
       next_claim_id, number_offers, fee_paid, arbitrator_cost, ruling_link,
       required_langs, offers_until, updated_at`

func scanCase(row pgx.Row) (Casefile, error) {
	var cf Casefile
	err := row.Scan(
		&cf.ID, &cf.Status, &cf.Claimant, &cf.Respondant, &cf.Arbitrator,
		&cf.NumberClaims, &cf.NextClaimID, &cf.NumberOffers, &cf.FeePaid,
		&cf.ArbitratorCost, &cf.RulingLink, &cf.RequiredLangs, &cf.OffersUntil,
		&cf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Casefile{}, ErrCaseNotFound
		}
		return Casefile{}, fmt.Errorf("casefile: load case: %w", err)
	}
	return cf, nil
}

// Get reads one casefile.
func (r *Repository) Get(ctx context.Context, q db.Querier, id int64) (Casefile, error) {
	return scanCase(q.QueryRow(ctx, `SELECT `+caseColumns+` FROM casefiles WHERE id = $1`, id))
}

// GetForUpdate locks one casefile for the transaction. Every mutating case
// operation locks the row first, then re-validates its precondition chain.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Casefile, error) {
	return scanCase(tx.QueryRow(ctx, `SELECT `+caseColumns+` FROM casefiles WHERE id = $1 FOR UPDATE`, id))
}

// Create inserts a fresh casefile in setup and returns its id.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, claimant string, respondant *string, requiredLangs []int16) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
        INSERT INTO casefiles (claimant, respondant, required_langs)
        VALUES ($1, $2, $3)
        RETURNING id
    `, claimant, respondant, requiredLangs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("casefile: create case: %w", err)
	}
	return id, nil
}

// Save rewrites the mutable casefile columns.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, cf Casefile) error {
	_, err := tx.Exec(ctx, `
        UPDATE casefiles SET
            claimant = $2,
            respondant = $3,
            arbitrator = $4,
            number_claims = $5,
            next_claim_id = $6,
            number_offers = $7,
            fee_paid = $8,
            arbitrator_cost = $9,
            ruling_link = $10,
            required_langs = $11,
            offers_until = $12,
            updated_at = now()
        WHERE id = $1
    `,
		cf.ID, cf.Claimant, cf.Respondant, cf.Arbitrator, cf.NumberClaims,
		cf.NextClaimID, cf.NumberOffers, cf.FeePaid, cf.ArbitratorCost,
		cf.RulingLink, cf.RequiredLangs, cf.OffersUntil,
	)
	if err != nil {
		return fmt.Errorf("casefile: save case: %w", err)
	}
	return nil
}

// Transition moves a case to next. The database re-checks the edge through
// case_validate_transition, so an illegal move cannot commit even if a caller
// skipped the status precondition.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, id int64, next Status) error {
	tag, err := tx.Exec(ctx, `
        UPDATE casefiles SET status = $2, updated_at = now()
        WHERE id = $1 AND case_validate_transition(status, $2)
    `, id, next)
	if err != nil {
		return fmt.Errorf("casefile: transition case %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Precondition(fmt.Sprintf("casefile: case %d cannot move to %s", id, next))
	}
	return nil
}

// Delete removes a casefile; its claims go with it.
func (r *Repository) Delete(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM casefiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("casefile: delete case %d: %w", id, err)
	}
	return nil
}

const claimColumns = `case_id, claim_id, summary_link, category, status,
       decision_link, response_link, claim_info_needed, claim_info_required,
       claimant_deadline, response_info_needed, response_info_required,
       respondant_deadline`

func scanClaim(row pgx.Row) (Claim, error) {
	var c Claim
	err := row.Scan(
		&c.CaseID, &c.ClaimID, &c.SummaryLink, &c.Category, &c.Status,
		&c.DecisionLink, &c.ResponseLink, &c.ClaimInfoNeeded, &c.ClaimInfoRequired,
		&c.ClaimantDeadline, &c.ResponseInfoNeeded, &c.ResponseInfoRequired,
		&c.RespondantDeadline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, ErrClaimNotFound
		}
		return Claim{}, fmt.Errorf("casefile: load claim: %w", err)
	}
	return c, nil
}

// GetClaim reads one claim of a case.
func (r *Repository) GetClaim(ctx context.Context, q db.Querier, caseID, claimID int64) (Claim, error) {
	return scanClaim(q.QueryRow(ctx, `
        SELECT `+claimColumns+` FROM claims WHERE case_id = $1 AND claim_id = $2
    `, caseID, claimID))
}

// Claims lists every claim of a case in filing order.
func (r *Repository) Claims(ctx context.Context, q db.Querier, caseID int64) ([]Claim, error) {
	rows, err := q.Query(ctx, `
        SELECT `+claimColumns+` FROM claims WHERE case_id = $1 ORDER BY claim_id
    `, caseID)
	if err != nil {
		return nil, fmt.Errorf("casefile: list claims: %w", err)
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertClaim files a claim under the case's next claim id.
func (r *Repository) InsertClaim(ctx context.Context, tx pgx.Tx, caseID, claimID int64, summaryLink string, category int16) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO claims (case_id, claim_id, summary_link, category)
        VALUES ($1, $2, $3, $4)
    `, caseID, claimID, summaryLink, category)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateLink
		}
		return fmt.Errorf("casefile: insert claim: %w", err)
	}
	return nil
}

// SaveClaim rewrites the mutable claim columns.
func (r *Repository) SaveClaim(ctx context.Context, tx pgx.Tx, c Claim) error {
	_, err := tx.Exec(ctx, `
        UPDATE claims SET
            summary_link = $3,
            status = $4,
            decision_link = $5,
            response_link = $6,
            claim_info_needed = $7,
            claim_info_required = $8,
            claimant_deadline = $9,
            response_info_needed = $10,
            response_info_required = $11,
            respondant_deadline = $12
        WHERE case_id = $1 AND claim_id = $2
    `,
		c.CaseID, c.ClaimID, c.SummaryLink, c.Status, c.DecisionLink,
		c.ResponseLink, c.ClaimInfoNeeded, c.ClaimInfoRequired,
		c.ClaimantDeadline, c.ResponseInfoNeeded, c.ResponseInfoRequired,
		c.RespondantDeadline,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateLink
		}
		return fmt.Errorf("casefile: save claim: %w", err)
	}
	return nil
}

// DeleteClaim removes one claim.
func (r *Repository) DeleteClaim(ctx context.Context, tx pgx.Tx, caseID, claimID int64) error {
	tag, err := tx.Exec(ctx, `DELETE FROM claims WHERE case_id = $1 AND claim_id = $2`, caseID, claimID)
	if err != nil {
		return fmt.Errorf("casefile: delete claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// UnsettledClaims counts claims still awaiting a decision.
func (r *Repository) UnsettledClaims(ctx context.Context, q db.Querier, caseID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
        SELECT count(*) FROM claims
        WHERE case_id = $1 AND status IN ('filed', 'responded')
    `, caseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("casefile: count unsettled claims: %w", err)
	}
	return n, nil
}

// OpenRespondantWindows arms the respondant deadline on every claim.
func (r *Repository) OpenRespondantWindows(ctx context.Context, tx pgx.Tx, caseID int64, days int) error {
	_, err := tx.Exec(ctx, `
        UPDATE claims SET respondant_deadline = now() + make_interval(days => $2)
        WHERE case_id = $1
    `, caseID, days)
	if err != nil {
		return fmt.Errorf("casefile: open respondant windows: %w", err)
	}
	return nil
}

// CasesByArbitrator lists an arbitrator's cases in the given statuses, locked
// for the transaction.
func (r *Repository) CasesByArbitrator(ctx context.Context, tx pgx.Tx, arbitrator string, statuses []Status) ([]Casefile, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := tx.Query(ctx, `
        SELECT `+caseColumns+` FROM casefiles
        WHERE arbitrator = $1 AND status = ANY($2::case_status[])
        ORDER BY id
        FOR UPDATE
    `, arbitrator, names)
	if err != nil {
		return nil, fmt.Errorf("casefile: cases by arbitrator: %w", err)
	}
	defer rows.Close()

	var out []Casefile
	for rows.Next() {
		cf, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}
