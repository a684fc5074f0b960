package arbitrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"arbflow/db"
	"arbflow/fault"
)

// ErrNotFound is returned for accounts that are not on the roster.
var ErrNotFound = fault.Precondition("arbitrator: not on the roster")

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const arbColumns = `account, status, credentials_link, languages, elected_at, term_expires`

func scanArb(row pgx.Row) (Arbitrator, error) {
	var a Arbitrator
	err := row.Scan(&a.Account, &a.Status, &a.CredentialsLink, &a.Languages, &a.ElectedAt, &a.TermExpires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Arbitrator{}, ErrNotFound
		}
		return Arbitrator{}, fmt.Errorf("arbitrator: load: %w", err)
	}
	return a, nil
}

// Get reads one roster row.
func (r *Repository) Get(ctx context.Context, q db.Querier, account string) (Arbitrator, error) {
	return scanArb(q.QueryRow(ctx, `SELECT `+arbColumns+` FROM arbitrators WHERE account = $1`, account))
}

// GetForUpdate locks one roster row for the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, account string) (Arbitrator, error) {
	return scanArb(tx.QueryRow(ctx, `SELECT `+arbColumns+` FROM arbitrators WHERE account = $1 FOR UPDATE`, account))
}

// InstallOrRenew seats an election winner. A returning arbitrator keeps the
// roster row and gets a fresh term and status; a new one is inserted. Newly
// seated arbitrators start unavailable and declare themselves available.
func (r *Repository) InstallOrRenew(ctx context.Context, tx pgx.Tx, account, credentialsLink string, termExpires time.Time) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO arbitrators (account, status, credentials_link, elected_at, term_expires)
        VALUES ($1, 'unavailable', $2, now(), $3)
        ON CONFLICT (account) DO UPDATE
        SET status = 'unavailable',
            credentials_link = EXCLUDED.credentials_link,
            elected_at = now(),
            term_expires = EXCLUDED.term_expires
    `, account, credentialsLink, termExpires)
	if err != nil {
		return fmt.Errorf("arbitrator: install %s: %w", account, err)
	}
	return nil
}

// SetStatus writes a new status for an account.
func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, account string, status Status) error {
	if _, err := tx.Exec(ctx, `UPDATE arbitrators SET status = $2 WHERE account = $1`, account, status); err != nil {
		return fmt.Errorf("arbitrator: set status: %w", err)
	}
	return nil
}

// SweepExpiredSeats flips every out-of-term seat to seat_expired and reports
// how many were swept. Removed arbitrators are left as they are.
func (r *Repository) SweepExpiredSeats(ctx context.Context, tx pgx.Tx, now time.Time) (int, error) {
	tag, err := tx.Exec(ctx, `
        UPDATE arbitrators SET status = 'seat_expired'
        WHERE term_expires <= $1 AND status IN ('available', 'unavailable')
    `, now)
	if err != nil {
		return 0, fmt.Errorf("arbitrator: sweep expired seats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountSeated counts arbitrators currently holding a live seat.
func (r *Repository) CountSeated(ctx context.Context, q db.Querier, now time.Time) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
        SELECT count(*) FROM arbitrators
        WHERE status IN ('available', 'unavailable') AND term_expires > $1
    `, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("arbitrator: count seated: %w", err)
	}
	return n, nil
}

// Roster lists every roster row, seated or not.
func (r *Repository) Roster(ctx context.Context, q db.Querier) ([]Arbitrator, error) {
	rows, err := q.Query(ctx, `SELECT `+arbColumns+` FROM arbitrators ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("arbitrator: list roster: %w", err)
	}
	defer rows.Close()

	var out []Arbitrator
	for rows.Next() {
		a, err := scanArb(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SeatedAccounts lists the accounts holding a live seat, sorted by identity.
// The multisig threshold update depends on this ordering being stable.
func (r *Repository) SeatedAccounts(ctx context.Context, q db.Querier, now time.Time) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT account FROM arbitrators
        WHERE status IN ('available', 'unavailable') AND term_expires > $1
        ORDER BY account
    `, now)
	if err != nil {
		return nil, fmt.Errorf("arbitrator: list seated: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CaseLists derives the open, closed, and recused case ids for one
// arbitrator from the casefiles they are assigned to.
func (r *Repository) CaseLists(ctx context.Context, q db.Querier, account string) (CaseLists, error) {
	rows, err := q.Query(ctx, `
        SELECT id, status FROM casefiles WHERE arbitrator = $1 ORDER BY id
    `, account)
	if err != nil {
		return CaseLists{}, fmt.Errorf("arbitrator: case lists: %w", err)
	}
	defer rows.Close()

	var lists CaseLists
	for rows.Next() {
		var (
			id     int64
			status string
		)
		if err := rows.Scan(&id, &status); err != nil {
			return CaseLists{}, err
		}
		switch status {
		case "case_investigation", "decision", "enforcement":
			lists.Open = append(lists.Open, id)
		case "resolved", "dismissed":
			lists.Closed = append(lists.Closed, id)
		case "mistrial":
			lists.Recused = append(lists.Recused, id)
		}
	}
	return lists, rows.Err()
}
