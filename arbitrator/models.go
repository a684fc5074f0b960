// Package arbitrator manages the elected roster: seat terms, availability,
// language capabilities, and the per-arbitrator case lists derived from the
// casefiles they were assigned to.
package arbitrator

import "time"

type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusRemoved     Status = "removed"
	StatusSeatExpired Status = "seat_expired"
)

// Arbitrator mirrors one roster row.
type Arbitrator struct {
	Account         string
	Status          Status
	CredentialsLink string
	Languages       []int16
	ElectedAt       time.Time
	TermExpires     time.Time
}

// TermValid reports whether the seat is still within its term.
func (a Arbitrator) TermValid(now time.Time) bool {
	return now.Before(a.TermExpires)
}

// CaseLists groups the case ids an arbitrator has touched, split by how each
// engagement ended. The three lists are disjoint.
type CaseLists struct {
	Open    []int64
	Closed  []int64
	Recused []int64
}
