// Package casefile implements the case and claim state machine. A case walks
// setup, arbitrator selection, investigation, decision, and enforcement, with
// exits for cancellation, dismissal, and mistrial; every transition commits in
// one transaction together with the escrow movements it implies.
package casefile

import (
	"time"

	"arbflow/fault"
)

type Status string

const (
	StatusSetup         Status = "case_setup"
	StatusAwaitingArbs  Status = "awaiting_arbs"
	StatusArbsAssigned  Status = "arbs_assigned"
	StatusInvestigation Status = "case_investigation"
	StatusDecision      Status = "decision"
	StatusEnforcement   Status = "enforcement"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
	StatusCancelled     Status = "cancelled"
	StatusMistrial      Status = "mistrial"
)

type ClaimStatus string

const (
	ClaimFiled     ClaimStatus = "filed"
	ClaimResponded ClaimStatus = "responded"
	ClaimAccepted  ClaimStatus = "accepted"
	ClaimDismissed ClaimStatus = "dismissed"
)

// Claim categories.
const (
	CategoryUndecided = iota + 1
	CategoryLostKeyRecovery
	CategoryTrxReversal
	CategoryEmergencyIntervention
	CategoryContestedOwnership
	CategoryUnexecutedRelief
	CategoryContractBreach
	CategoryMisusedCrIp
	CategoryTort
	CategoryPenaltyRecovery
	CategoryWrongAssessment
	CategoryArbitratorMisconduct
	CategoryMisc
)

// Casefile mirrors one casefiles row.
type Casefile struct {
	ID             int64
	Status         Status
	Claimant       string
	Respondant     *string
	Arbitrator     *string
	NumberClaims   int
	NextClaimID    int64
	NumberOffers   int
	FeePaid        int64
	ArbitratorCost int64
	RulingLink     string
	RequiredLangs  []int16
	OffersUntil    *time.Time
	UpdatedAt      time.Time
}

// Claim mirrors one claims row.
type Claim struct {
	CaseID               int64
	ClaimID              int64
	SummaryLink          string
	Category             int16
	Status               ClaimStatus
	DecisionLink         string
	ResponseLink         string
	ClaimInfoNeeded      bool
	ClaimInfoRequired    string
	ClaimantDeadline     *time.Time
	ResponseInfoNeeded   bool
	ResponseInfoRequired string
	RespondantDeadline   *time.Time
}

// Settled reports whether the claim has reached a terminal status.
func (c Claim) Settled() bool {
	return c.Status == ClaimAccepted || c.Status == ClaimDismissed
}

// ValidateLink accepts the two well-formed content-hash string lengths.
func ValidateLink(link string) error {
	if len(link) != 46 && len(link) != 49 {
		return fault.Precondition("casefile: malformed content-hash link")
	}
	return nil
}

// ValidateRationale bounds recusal and dismissal rationale text.
func ValidateRationale(rationale string) error {
	if len(rationale) == 0 || len(rationale) > 254 {
		return fault.Precondition("casefile: rationale must be 1 to 254 characters")
	}
	return nil
}

// ValidateCategory bounds the claim category enum.
func ValidateCategory(category int16) error {
	if category < CategoryUndecided || category > CategoryMisc {
		return fault.Precondition("casefile: unknown claim category")
	}
	return nil
}

// ValidateLangCodes checks a required-language set.
func ValidateLangCodes(codes []int16) error {
	seen := make(map[int16]bool, len(codes))
	for _, c := range codes {
		if c < 0 {
			return fault.Precondition("casefile: language codes must not be negative")
		}
		if seen[c] {
			return fault.Precondition("casefile: duplicate language code")
		}
		seen[c] = true
	}
	return nil
}
