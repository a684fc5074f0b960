package casefile

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"arbflow/fault"
	"arbflow/outbox"
)

// StartCase opens the investigation. If the case names a respondant, every
// claim gets a response window of the given length.
func (s *Service) StartCase(ctx context.Context, caller string, caseID int64, respondantDays int) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireAssignedArbitrator(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusArbsAssigned); err != nil {
		return err
	}

	if cf.Respondant != nil {
		if respondantDays < 1 {
			return fault.Precondition("casefile: respondant must get at least one day")
		}
		if err := s.repo.OpenRespondantWindows(ctx, tx, caseID, respondantDays); err != nil {
			return err
		}
	}

	if err := s.repo.Transition(ctx, tx, caseID, StatusInvestigation); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventCaseStarted, caller, map[string]any{
		"respondant_days": respondantDays,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "start case")
}

// ReviewRequest arms the information flags on one claim. At least one side
// must be asked, and each asked side needs at least one day to answer.
type ReviewRequest struct {
	ClaimInfoRequired    string
	ClaimantDays         int
	ResponseInfoRequired string
	RespondantDays       int
}

// ReviewClaim requests additional information from the claimant, the
// respondant, or both, with fresh deadlines.
func (s *Service) ReviewClaim(ctx context.Context, caller string, caseID, claimID int64, req ReviewRequest) error {
	askClaimant := req.ClaimInfoRequired != ""
	askRespondant := req.ResponseInfoRequired != ""
	if !askClaimant && !askRespondant {
		return fault.Precondition("casefile: review must request information from at least one side")
	}
	if askClaimant && req.ClaimantDays < 1 {
		return fault.Precondition("casefile: claimant must get at least one day")
	}
	if askRespondant && req.RespondantDays < 1 {
		return fault.Precondition("casefile: respondant must get at least one day")
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
	if err := requireAssignedArbitrator(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusInvestigation); err != nil {
		return err
	}
	if askRespondant && cf.Respondant == nil {
		return fault.Precondition("casefile: case has no respondant to ask")
	}

	claim, err := s.repo.GetClaim(ctx, tx, caseID, claimID)
	if err != nil {
		return err
	}
	if claim.Settled() {
		return fault.Precondition("casefile: claim already settled")
	}

	now := s.now()
	if askClaimant {
		claim.ClaimInfoNeeded = true
		claim.ClaimInfoRequired = req.ClaimInfoRequired
		deadline := now.Add(time.Duration(req.ClaimantDays) * 24 * time.Hour)
		claim.ClaimantDeadline = &deadline
	}
	if askRespondant {
		claim.ResponseInfoNeeded = true
		claim.ResponseInfoRequired = req.ResponseInfoRequired
		deadline := now.Add(time.Duration(req.RespondantDays) * 24 * time.Hour)
		claim.RespondantDeadline = &deadline
	}
	if err := s.repo.SaveClaim(ctx, tx, claim); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimReviewed, caller, map[string]any{
		"claim_id":       claimID,
		"ask_claimant":   askClaimant,
		"ask_respondant": askRespondant,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "review claim")
}

// SettleClaim decides one claim. An outstanding information request blocks
// settlement until its deadline has elapsed or the party has answered.
func (s *Service) SettleClaim(ctx context.Context, caller string, caseID, claimID int64, accept bool, decisionLink string) error {
	if err := ValidateLink(decisionLink); err != nil {
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
	if err := requireAssignedArbitrator(cf, caller); err != nil {
		return err
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

	now := s.now()
	if claim.ClaimInfoNeeded && claim.ClaimantDeadline != nil && now.Before(*claim.ClaimantDeadline) {
		return fault.Precondition("casefile: claimant information window still open")
	}
	if claim.ResponseInfoNeeded && claim.RespondantDeadline != nil && now.Before(*claim.RespondantDeadline) {
		return fault.Precondition("casefile: respondant information window still open")
	}

	if accept {
		claim.Status = ClaimAccepted
	} else {
		claim.Status = ClaimDismissed
	}
	claim.DecisionLink = decisionLink
	if err := s.repo.SaveClaim(ctx, tx, claim); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimSettled, caller, map[string]any{
		"claim_id": claimID,
		"accepted": accept,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "settle claim")
}

// SetRuling records the ruling once every claim is settled and hands the
// case to the admin quorum for validation.
func (s *Service) SetRuling(ctx context.Context, caller string, caseID int64, rulingLink string) error {
	if err := ValidateLink(rulingLink); err != nil {
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
	if err := requireAssignedArbitrator(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusInvestigation); err != nil {
		return err
	}

	open, err := s.repo.UnsettledClaims(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if open > 0 {
		return fault.Precondition("casefile: every claim must be settled before ruling")
	}

	cf.RulingLink = rulingLink
	if err := s.repo.Save(ctx, tx, cf); err != nil {
		return err
	}
	if err := s.repo.Transition(ctx, tx, caseID, StatusDecision); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventRulingSet, caller, map[string]any{
		"ruling_link": rulingLink,
	})
	if err != nil {
		return err
	}

	err = outbox.Enqueue(ctx, tx, outbox.TopicRulingForReview, map[string]any{
		"case_id":     caseID,
		"ruling_link": rulingLink,
		"arbitrator":  caller,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "set ruling")
}

// Recuse lets the assigned arbitrator walk away from a live case. The whole
// escrow goes back to the claimant and the case ends as a mistrial.
func (s *Service) Recuse(ctx context.Context, caller string, caseID int64, rationale string) error {
	if err := ValidateRationale(rationale); err != nil {
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
	if err := requireAssignedArbitrator(cf, caller); err != nil {
		return err
	}
	if !Recusable(cf.Status) {
		return fault.Precondition("casefile: case can no longer end in mistrial")
	}

	if err := s.mistrial(ctx, tx, cf, caller, rationale, false); err != nil {
		return err
	}
	return commit(ctx, tx, "recuse")
}

// mistrial refunds the case escrow to the claimant, subtracts it from the
// reserved pool, and moves the case to mistrial. Caller holds the case lock.
func (s *Service) mistrial(ctx context.Context, tx pgx.Tx, cf Casefile, actor, rationale string, forced bool) error {
	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	refund, err := s.releaseToClaimant(ctx, tx, cf)
	if err != nil {
		return err
	}
	conf.ReservedFunds -= refund
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := s.repo.Transition(ctx, tx, cf.ID, StatusMistrial); err != nil {
		return err
	}

	return appendEvent(ctx, tx, cf.ID, EventArbitratorRecused, actor, map[string]any{
		"rationale": rationale,
		"forced":    forced,
		"refund":    refund,
	})
}
