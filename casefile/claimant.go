package casefile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"arbflow/fault"
	"arbflow/oracle"
)

// FileCase opens a new case in setup with its first claim filed.
func (s *Service) FileCase(ctx context.Context, claimant, evidenceLink string, category int16, requiredLangs []int16, respondant *string) (int64, error) {
	if err := ValidateLink(evidenceLink); err != nil {
		return 0, err
	}
	if err := ValidateCategory(category); err != nil {
		return 0, err
	}
	if err := ValidateLangCodes(requiredLangs); err != nil {
		return 0, err
	}
	if respondant != nil && *respondant == claimant {
		return 0, fault.Precondition("casefile: claimant cannot respond to their own case")
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	caseID, err := s.repo.Create(ctx, tx, claimant, respondant, requiredLangs)
	if err != nil {
		return 0, err
	}
	if err := s.repo.InsertClaim(ctx, tx, caseID, 1, evidenceLink, category); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
        UPDATE casefiles SET number_claims = 1, next_claim_id = 2 WHERE id = $1
    `, caseID); err != nil {
		return 0, fmt.Errorf("casefile: seed claim counter: %w", err)
	}

	err = appendEvent(ctx, tx, caseID, EventCaseFiled, claimant, map[string]any{
		"evidence_link": evidenceLink,
		"category":      category,
	})
	if err != nil {
		return 0, err
	}

	if err := commit(ctx, tx, "file case"); err != nil {
		return 0, err
	}
	return caseID, nil
}

// AddClaim files another claim while the case is still in setup.
func (s *Service) AddClaim(ctx context.Context, caller string, caseID int64, evidenceLink string, category int16) (int64, error) {
	if err := ValidateLink(evidenceLink); err != nil {
		return 0, err
	}
	if err := ValidateCategory(category); err != nil {
		return 0, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return 0, err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return 0, err
	}
	if err := requireStatus(cf, StatusSetup); err != nil {
		return 0, err
	}

	conf, err := s.ledgerRepo.Get(ctx, tx)
	if err != nil {
		return 0, err
	}
	if cf.NumberClaims >= conf.MaxClaimsPerCase {
		return 0, fault.Precondition("casefile: claim limit reached for this case")
	}

	claimID := cf.NextClaimID
	if err := s.repo.InsertClaim(ctx, tx, caseID, claimID, evidenceLink, category); err != nil {
		return 0, err
	}
	cf.NumberClaims++
	cf.NextClaimID++
	if err := s.repo.Save(ctx, tx, cf); err != nil {
		return 0, err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimAdded, caller, map[string]any{
		"claim_id":      claimID,
		"evidence_link": evidenceLink,
	})
	if err != nil {
		return 0, err
	}

	if err := commit(ctx, tx, "add claim"); err != nil {
		return 0, err
	}
	return claimID, nil
}

// UpdateClaim swaps in a new evidence link. Allowed in setup freely, and in
// investigation only while the claim is still undecided or the arbitrator
// asked the claimant for more information.
func (s *Service) UpdateClaim(ctx context.Context, caller string, caseID, claimID int64, evidenceLink string) error {
	if err := ValidateLink(evidenceLink); err != nil {
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
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if cf.Status != StatusSetup && cf.Status != StatusInvestigation {
		return fault.Precondition("casefile: claims can only be updated during setup or investigation")
	}

	claim, err := s.repo.GetClaim(ctx, tx, caseID, claimID)
	if err != nil {
		return err
	}
	if claim.Settled() {
		return fault.Precondition("casefile: claim already settled")
	}
	if claim.Status == ClaimResponded && !claim.ClaimInfoNeeded {
		return fault.Precondition("casefile: no further information was requested for this claim")
	}

	claim.SummaryLink = evidenceLink
	claim.ClaimInfoNeeded = false
	if err := s.repo.SaveClaim(ctx, tx, claim); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimUpdated, caller, map[string]any{
		"claim_id":      claimID,
		"evidence_link": evidenceLink,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "update claim")
}

// RemoveClaim withdraws a claim during setup.
func (s *Service) RemoveClaim(ctx context.Context, caller string, caseID, claimID int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusSetup); err != nil {
		return err
	}

	if err := s.repo.DeleteClaim(ctx, tx, caseID, claimID); err != nil {
		return err
	}
	cf.NumberClaims--
	if err := s.repo.Save(ctx, tx, cf); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventClaimRemoved, caller, map[string]any{
		"claim_id": claimID,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "remove claim")
}

// ShredCase deletes a setup-stage case and all its claims. No funds have
// moved yet at this point, so escrow is untouched.
func (s *Service) ShredCase(ctx context.Context, caller string, caseID int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusSetup); err != nil {
		return err
	}

	if err := appendEvent(ctx, tx, caseID, EventCaseShredded, caller, nil); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tx, caseID); err != nil {
		return err
	}
	return commit(ctx, tx, "shred case")
}

// ReadyCase escrows the filing fee and opens the case to offers. The USD fee
// is converted at the oracle's current median rate.
func (s *Service) ReadyCase(ctx context.Context, caller string, caseID int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusSetup); err != nil {
		return err
	}
	if cf.NumberClaims < 1 {
		return fault.Precondition("casefile: at least one claim required")
	}

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}

	rate, err := s.prices.MedianRate(ctx)
	if err != nil {
		return err
	}
	fee, err := oracle.ConvertUSD(conf.FeeUSD, rate)
	if err != nil {
		return err
	}

	if fee > 0 {
		if err := s.escrowRepo.SubBalance(ctx, tx, cf.Claimant, fee); err != nil {
			return err
		}
	}
	cf.FeePaid = fee
	until := s.now().Add(time.Duration(conf.OfferWindowSec) * time.Second)
	cf.OffersUntil = &until
	if err := s.repo.Save(ctx, tx, cf); err != nil {
		return err
	}

	conf.ReservedFunds += fee
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := s.repo.Transition(ctx, tx, caseID, StatusAwaitingArbs); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventCaseReadied, caller, map[string]any{
		"fee_paid": fee,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "ready case")
}

// RespondOffer accepts or declines one pending offer. Accepting escrows the
// arbitrator's cost, seats the arbitrator, and rejects every other pending
// offer on the case in the same transaction.
func (s *Service) RespondOffer(ctx context.Context, caller string, caseID, offerID int64, accept bool) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusAwaitingArbs); err != nil {
		return err
	}

	var (
		offerArb   string
		hourlyRate int64
		hours      int16
		status     string
	)
	err = tx.QueryRow(ctx, `
        SELECT arbitrator, hourly_rate, estimated_hours, status
        FROM offers WHERE id = $1 AND case_id = $2
        FOR UPDATE
    `, offerID, caseID).Scan(&offerArb, &hourlyRate, &hours, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.Precondition("casefile: offer not found on this case")
		}
		return fmt.Errorf("casefile: lock offer: %w", err)
	}
	if status != "pending" {
		return fault.Precondition("casefile: offer is no longer pending")
	}

	if !accept {
		if _, err := tx.Exec(ctx, `UPDATE offers SET status = 'rejected' WHERE id = $1`, offerID); err != nil {
			return fmt.Errorf("casefile: reject offer: %w", err)
		}
		err = appendEvent(ctx, tx, caseID, EventOfferDeclined, caller, map[string]any{
			"offer_id":   offerID,
			"arbitrator": offerArb,
		})
		if err != nil {
			return err
		}
		return commit(ctx, tx, "decline offer")
	}

	cost := hourlyRate * int64(hours)
	if err := s.escrowRepo.SubBalance(ctx, tx, cf.Claimant, cost); err != nil {
		return err
	}

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	conf.ReservedFunds += cost
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}

	cf.Arbitrator = &offerArb
	cf.ArbitratorCost = cost
	if err := s.repo.Save(ctx, tx, cf); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE offers SET status = 'accepted' WHERE id = $1`, offerID); err != nil {
		return fmt.Errorf("casefile: accept offer: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        UPDATE offers SET status = 'rejected' WHERE case_id = $1 AND status = 'pending'
    `, caseID); err != nil {
		return fmt.Errorf("casefile: reject remaining offers: %w", err)
	}

	if err := s.repo.Transition(ctx, tx, caseID, StatusArbsAssigned); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventOfferAccepted, caller, map[string]any{
		"offer_id":        offerID,
		"arbitrator":      offerArb,
		"arbitrator_cost": cost,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "accept offer")
}

// CancelCase abandons a case that never got an arbitrator seated. The filing
// fee goes back to the claimant only if no arbitrator ever engaged; once
// offers exist the fee is treated as earned and moves to the communal pool.
func (s *Service) CancelCase(ctx context.Context, caller string, caseID int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := requireClaimant(cf, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusAwaitingArbs); err != nil {
		return err
	}

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if cf.FeePaid > 0 {
		if cf.NumberOffers == 0 {
			if err := s.escrowRepo.AddBalance(ctx, tx, cf.Claimant, cf.FeePaid); err != nil {
				return err
			}
		} else {
			conf.AvailableFunds += cf.FeePaid
		}
		conf.ReservedFunds -= cf.FeePaid
	}
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := s.repo.Transition(ctx, tx, caseID, StatusCancelled); err != nil {
		return err
	}

	err = appendEvent(ctx, tx, caseID, EventCaseCancelled, caller, map[string]any{
		"fee_refunded": cf.NumberOffers == 0,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "cancel case")
}
