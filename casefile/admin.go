package casefile

import (
	"context"

	"arbflow/arbitrator"
	"arbflow/db"
	"arbflow/fault"
)

func (s *Service) requireAdmin(ctx context.Context, q db.Querier, caller string) error {
	conf, err := s.ledgerRepo.Get(ctx, q)
	if err != nil {
		return err
	}
	if caller != conf.AdminAccount {
		return fault.Authorization("casefile: only the admin may do this")
	}
	return nil
}

// ValidateCase is the admin quorum's verdict on a ruling. Proceeding pays the
// arbitrator their cost and books the filing fee as earned; overturning
// refunds the claimant everything and dismisses the case.
func (s *Service) ValidateCase(ctx context.Context, caller string, caseID int64, proceed bool) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusDecision); err != nil {
		return err
	}
	if cf.Arbitrator == nil {
		return fault.Precondition("casefile: case has no assigned arbitrator")
	}

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}

	if proceed {
		if cf.ArbitratorCost > 0 {
			if err := s.escrowRepo.AddBalance(ctx, tx, *cf.Arbitrator, cf.ArbitratorCost); err != nil {
				return err
			}
		}
		conf.AvailableFunds += cf.FeePaid
		conf.ReservedFunds -= cf.FeePaid + cf.ArbitratorCost
		if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
			return err
		}
		if err := s.repo.Transition(ctx, tx, caseID, StatusEnforcement); err != nil {
			return err
		}
		err = appendEvent(ctx, tx, caseID, EventCaseValidated, caller, map[string]any{
			"arbitrator_paid": cf.ArbitratorCost,
		})
		if err != nil {
			return err
		}
		return commit(ctx, tx, "validate case")
	}

	refund, err := s.releaseToClaimant(ctx, tx, cf)
	if err != nil {
		return err
	}
	conf.ReservedFunds -= refund
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}
	if err := s.repo.Transition(ctx, tx, caseID, StatusDismissed); err != nil {
		return err
	}
	err = appendEvent(ctx, tx, caseID, EventCaseDismissed, caller, map[string]any{
		"refund": refund,
	})
	if err != nil {
		return err
	}
	return commit(ctx, tx, "dismiss case")
}

// CloseCase finishes an enforced case. Funds were settled at validation, so
// this only moves the status.
func (s *Service) CloseCase(ctx context.Context, caller string, caseID int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cf, err := s.repo.GetForUpdate(ctx, tx, caseID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	if err := requireStatus(cf, StatusEnforcement); err != nil {
		return err
	}

	if err := s.repo.Transition(ctx, tx, caseID, StatusResolved); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, caseID, EventCaseClosed, caller, nil); err != nil {
		return err
	}
	return commit(ctx, tx, "close case")
}

// ForceRecusal is the admin's version of recuse, with the same refund rule.
func (s *Service) ForceRecusal(ctx context.Context, caller string, caseID int64, rationale string) error {
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
	if err := s.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	if cf.Arbitrator == nil {
		return fault.Precondition("casefile: case has no assigned arbitrator")
	}
	if !Recusable(cf.Status) {
		return fault.Precondition("casefile: case can no longer end in mistrial")
	}

	if err := s.mistrial(ctx, tx, cf, caller, rationale, true); err != nil {
		return err
	}
	return commit(ctx, tx, "force recusal")
}

// DismissArbitrator removes an arbitrator from the roster. With
// removeFromCases every live, pre-enforcement case they hold is forced into
// mistrial; the per-case refunds are accumulated and taken out of the
// reserved pool in one subtraction.
func (s *Service) DismissArbitrator(ctx context.Context, caller, arbAccount, rationale string, removeFromCases bool) error {
	if err := ValidateRationale(rationale); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}

	arb, err := s.arbRepo.GetForUpdate(ctx, tx, arbAccount)
	if err != nil {
		return err
	}
	if arb.Status == arbitrator.StatusRemoved {
		return fault.Precondition("casefile: arbitrator already removed")
	}
	if err := s.arbRepo.SetStatus(ctx, tx, arbAccount, arbitrator.StatusRemoved); err != nil {
		return err
	}

	if removeFromCases {
		live := []Status{StatusArbsAssigned, StatusInvestigation, StatusDecision}
		cases, err := s.repo.CasesByArbitrator(ctx, tx, arbAccount, live)
		if err != nil {
			return err
		}

		var total int64
		for _, cf := range cases {
			refund, err := s.releaseToClaimant(ctx, tx, cf)
			if err != nil {
				return err
			}
			total += refund
			if err := s.repo.Transition(ctx, tx, cf.ID, StatusMistrial); err != nil {
				return err
			}
			err = appendEvent(ctx, tx, cf.ID, EventArbitratorRecused, caller, map[string]any{
				"rationale": rationale,
				"forced":    true,
				"refund":    refund,
			})
			if err != nil {
				return err
			}
		}

		if total > 0 {
			conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
			if err != nil {
				return err
			}
			conf.ReservedFunds -= total
			if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
				return err
			}
		}
	}

	return commit(ctx, tx, "dismiss arbitrator")
}
