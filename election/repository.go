package election

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"arbflow/db"
	"arbflow/fault"
)

var (
	// ErrNotFound is returned for unknown election ids and ballot refs.
	ErrNotFound = fault.Precondition("election: election not found")
	// ErrNomineeNotFound is returned for accounts that never registered.
	ErrNomineeNotFound = fault.Precondition("election: not a registered nominee")
	// ErrDuplicateCandidate enforces one candidacy per election.
	ErrDuplicateCandidate = fault.Invariant("election: already a candidate of this election")
	// ErrDuplicateNominee rejects a second registration.
	ErrDuplicateNominee = fault.Precondition("election: already a registered nominee")
)

const uniqueViolation = "23505"

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const electionColumns = `id, status, info_link, available_seats, is_runoff, ballot_ref,
       add_candidates_from, add_candidates_until, voting_from, voting_until`

func scanElection(row pgx.Row) (Election, error) {
	var e Election
	err := row.Scan(
		&e.ID, &e.Status, &e.InfoLink, &e.AvailableSeats, &e.IsRunoff, &e.BallotRef,
		&e.AddCandidatesFrom, &e.AddCandidatesUntil, &e.VotingFrom, &e.VotingUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Election{}, ErrNotFound
		}
		return Election{}, fmt.Errorf("election: load election: %w", err)
	}
	return e, nil
}

// Get reads one election.
func (r *Repository) Get(ctx context.Context, q db.Querier, id int64) (Election, error) {
	return scanElection(q.QueryRow(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1`, id))
}

// GetForUpdate locks one election for the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Election, error) {
	return scanElection(tx.QueryRow(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1 FOR UPDATE`, id))
}

// GetByBallotForUpdate locks the election behind a ballot reference.
func (r *Repository) GetByBallotForUpdate(ctx context.Context, tx pgx.Tx, ballotRef string) (Election, error) {
	return scanElection(tx.QueryRow(ctx, `
        SELECT `+electionColumns+` FROM elections WHERE ballot_ref = $1 FOR UPDATE
    `, ballotRef))
}

// Create inserts a fresh election and returns its id.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, seats int, isRunoff bool, infoLink string, addUntil time.Time) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
        INSERT INTO elections (available_seats, is_runoff, info_link, add_candidates_until)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, seats, isRunoff, infoLink, addUntil).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("election: create election: %w", err)
	}
	return id, nil
}

// OpenVoting marks the election live with its ballot and voting window.
func (r *Repository) OpenVoting(ctx context.Context, tx pgx.Tx, id int64, ballotRef string, from, until time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE elections SET status = 'live', ballot_ref = $2, voting_from = $3, voting_until = $4
        WHERE id = $1
    `, id, ballotRef, from, until)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fault.Invariant("election: ballot reference already in use")
		}
		return fmt.Errorf("election: open voting: %w", err)
	}
	return nil
}

// End marks the election ended.
func (r *Repository) End(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `UPDATE elections SET status = 'ended' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("election: end election: %w", err)
	}
	return nil
}

// Candidates lists an election's candidates with their tallies.
func (r *Repository) Candidates(ctx context.Context, q db.Querier, electionID int64) ([]Candidate, error) {
	rows, err := q.Query(ctx, `
        SELECT account, tally FROM election_candidates WHERE election_id = $1 ORDER BY account
    `, electionID)
	if err != nil {
		return nil, fmt.Errorf("election: list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Account, &c.Tally); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddCandidate registers one candidate on an election.
func (r *Repository) AddCandidate(ctx context.Context, tx pgx.Tx, electionID int64, account string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO election_candidates (election_id, account) VALUES ($1, $2)
    `, electionID, account)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCandidate
		}
		return fmt.Errorf("election: add candidate: %w", err)
	}
	return nil
}

// RemoveCandidate withdraws one candidate.
func (r *Repository) RemoveCandidate(ctx context.Context, tx pgx.Tx, electionID int64, account string) error {
	tag, err := tx.Exec(ctx, `
        DELETE FROM election_candidates WHERE election_id = $1 AND account = $2
    `, electionID, account)
	if err != nil {
		return fmt.Errorf("election: remove candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Precondition("election: not a candidate of this election")
	}
	return nil
}

// IsCandidate reports whether the account contests the election.
func (r *Repository) IsCandidate(ctx context.Context, q db.Querier, electionID int64, account string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM election_candidates WHERE election_id = $1 AND account = $2
        )
    `, electionID, account).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("election: check candidacy: %w", err)
	}
	return exists, nil
}

// SetTally records one candidate's final weighted tally.
func (r *Repository) SetTally(ctx context.Context, tx pgx.Tx, electionID int64, account string, tally int64) error {
	_, err := tx.Exec(ctx, `
        UPDATE election_candidates SET tally = $3 WHERE election_id = $1 AND account = $2
    `, electionID, account, tally)
	if err != nil {
		return fmt.Errorf("election: set tally: %w", err)
	}
	return nil
}

// GetNominee reads one nominee registration.
func (r *Repository) GetNominee(ctx context.Context, q db.Querier, account string) (Nominee, error) {
	var n Nominee
	err := q.QueryRow(ctx, `
        SELECT account, credentials_link, applied_at FROM nominees WHERE account = $1
    `, account).Scan(&n.Account, &n.CredentialsLink, &n.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Nominee{}, ErrNomineeNotFound
		}
		return Nominee{}, fmt.Errorf("election: load nominee: %w", err)
	}
	return n, nil
}

// InsertNominee registers an account for candidacy.
func (r *Repository) InsertNominee(ctx context.Context, tx pgx.Tx, account, credentialsLink string) error {
	tag, err := tx.Exec(ctx, `
        INSERT INTO nominees (account, credentials_link) VALUES ($1, $2)
        ON CONFLICT (account) DO NOTHING
    `, account, credentialsLink)
	if err != nil {
		return fmt.Errorf("election: insert nominee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateNominee
	}
	return nil
}

// DeleteNominee drops a nominee registration.
func (r *Repository) DeleteNominee(ctx context.Context, tx pgx.Tx, account string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM nominees WHERE account = $1`, account)
	if err != nil {
		return fmt.Errorf("election: delete nominee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNomineeNotFound
	}
	return nil
}
