package casefile

import (
	"context"

	"arbflow/fault"
)

// Respond lets the respondant attach a response link to a claim during
// investigation. A claim can be answered while it is still filed, or again
// when the arbitrator has asked the respondant for more information.
func (s *Service) Respond(ctx context.Context, caller string, caseID, claimID int64, responseLink string) error {
	if err := ValidateLink(responseLink); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if cf.Respondant == nil || *cf.Respondant != caller {
		return fault.Authorization("casefile: only the respondant may do this")
	}
	if err := requireStatus(cf, StatusInvestigation); err != nil {
		return err
	}

	claim, err := s.repo.GetClaim(ctx, tx, caseID, claimID)
	if err != nil {
		return err
	}
	if claim.Settled() {
		return fault.Precondition("casefile: claim already settled")
	}
	if claim.Status == ClaimResponded && !claim.ResponseInfoNeeded {
		return fault.Precondition("casefile: no further response was requested for this claim")
	}

	claim.ResponseLink = responseLink
	claim.Status = ClaimResponded
	claim.ResponseInfoNeeded = false
	if err := s.repo.SaveClaim(ctx, tx, claim); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimResponded, caller, map[string]any{
		"claim_id":      claimID,
		"response_link": responseLink,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "respond")
}
