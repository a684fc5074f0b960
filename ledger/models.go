// Package ledger owns the single-row on-ledger configuration: the admin
// identity, the domain parameters set by the admin, and the two global fund
// pools. Pools are never set directly by a user-facing operation; they move
// only as side effects of case and election transitions, inside the same
// transaction as the change they account for.
package ledger

import "time"

// Amounts are int64 at four decimal places of the reference currency (or USD
// where noted), matching the precision of the host ledger's asset type.
const AmountScale = 10_000

// Config mirrors the config row.
type Config struct {
	AdminAccount      string
	ContractVersion   string
	MaxElectedArbs    int
	ElectionVotingSec int64
	RunoffVotingSec   int64
	AddCandidatesSec  int64
	ArbTermSec        int64
	MaxClaimsPerCase  int
	FeeUSD            int64
	OfferWindowSec    int64
	AvailableFunds    int64
	ReservedFunds     int64
	CurrentElectionID *int64
}

// Params carries the admin-settable domain parameters.
type Params struct {
	MaxElectedArbs    int
	ElectionVotingSec int64
	RunoffVotingSec   int64
	AddCandidatesSec  int64
	ArbTermSec        int64
	MaxClaimsPerCase  int
	FeeUSD            int64
	OfferWindowSec    int64
}

// TermExpiration computes a fresh arbitrator term starting at now.
func (c Config) TermExpiration(now time.Time) time.Time {
	return now.Add(time.Duration(c.ArbTermSec) * time.Second)
}
