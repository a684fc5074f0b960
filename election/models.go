// Package election runs the arbitrator elections: nominee registration,
// candidacy, the handoff to the external ballot service, and the tie-break
// resolution that seats winners and spins up runoffs.
package election

import "time"

type Status string

const (
	StatusCreated Status = "created"
	StatusLive    Status = "live"
	StatusEnded   Status = "ended"
)

// Election mirrors one elections row.
type Election struct {
	ID                 int64
	Status             Status
	InfoLink           string
	AvailableSeats     int
	IsRunoff           bool
	BallotRef          *string
	AddCandidatesFrom  time.Time
	AddCandidatesUntil time.Time
	VotingFrom         *time.Time
	VotingUntil        *time.Time
}

// Candidate is one contestant with their final weighted tally.
type Candidate struct {
	Account string
	Tally   int64
}

// Nominee mirrors one nominees row.
type Nominee struct {
	Account         string
	CredentialsLink string
	AppliedAt       time.Time
}
