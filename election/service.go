package election

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/arbitrator"
	"arbflow/authority"
	"arbflow/ballot"
	"arbflow/casefile"
	"arbflow/fault"
	"arbflow/ledger"
	"arbflow/outbox"
)

// ballotFee is what the ballot service charges to list a ballot, at four
// decimal places of the reference currency. It comes out of available_funds.
const ballotFee int64 = 30 * ledger.AmountScale

// Service coordinates elections. State commits first; ballot and authority
// calls run after the commit, with the same commands mirrored on the outbox
// so a failed synchronous call can be replayed.
type Service struct {
	pool       *pgxpool.Pool
	repo       *Repository
	arbRepo    *arbitrator.Repository
	ledgerRepo *ledger.Repository
	ballots    ballot.Service
	signers    authority.Registry
	now        func() time.Time
	newRef     func() string
}

func NewService(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, arbRepo *arbitrator.Repository, ballots ballot.Service, signers authority.Registry) *Service {
	return &Service{
		pool:       pool,
		repo:       NewRepository(),
		arbRepo:    arbRepo,
		ledgerRepo: ledgerRepo,
		ballots:    ballots,
		signers:    signers,
		now:        time.Now,
		newRef:     uuid.NewString,
	}
}

func (s *Service) Repo() *Repository { return s.repo }

// StartElection opens a new election for every unfilled seat. Only one
// election runs at a time; expired seats are swept first so they count as
// open.
func (s *Service) StartElection(ctx context.Context, caller, infoLink string) (int64, error) {
	if err := casefile.ValidateLink(infoLink); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return 0, err
	}
	if caller != conf.AdminAccount {
		return 0, fault.Authorization("election: only the admin can start an election")
	}
	if conf.CurrentElectionID != nil {
		current, err := s.repo.Get(ctx, tx, *conf.CurrentElectionID)
		if err != nil {
			return 0, err
		}
		if current.Status != StatusEnded {
			return 0, fault.Precondition("election: an election is already underway")
		}
	}

	now := s.now()
	if _, err := s.arbRepo.SweepExpiredSeats(ctx, tx, now); err != nil {
		return 0, err
	}
	seated, err := s.arbRepo.CountSeated(ctx, tx, now)
	if err != nil {
		return 0, err
	}
	seats := conf.MaxElectedArbs - seated
	if seats <= 0 {
		return 0, fault.Precondition("election: no seats to fill")
	}

	addUntil := now.Add(time.Duration(conf.AddCandidatesSec) * time.Second)
	id, err := s.repo.Create(ctx, tx, seats, false, infoLink, addUntil)
	if err != nil {
		return 0, err
	}

	conf.CurrentElectionID = &id
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("election: commit start election: %w", err)
	}
	return id, nil
}

// RegisterNominee applies an account for candidacy. A seated arbitrator may
// only re-apply once their term is over or they were removed; doing so flips
// their seat to expired pending re-election.
func (s *Service) RegisterNominee(ctx context.Context, caller, credentialsLink string) error {
	if err := casefile.ValidateLink(credentialsLink); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	arb, err := s.arbRepo.GetForUpdate(ctx, tx, caller)
	switch {
	case err == nil:
		seated := arb.Status == arbitrator.StatusAvailable || arb.Status == arbitrator.StatusUnavailable
		if seated && arb.TermValid(s.now()) {
			return fault.Precondition("election: already holding a live seat")
		}
		if err := s.arbRepo.SetStatus(ctx, tx, caller, arbitrator.StatusSeatExpired); err != nil {
			return err
		}
	case fault.KindOf(err) == fault.KindPrecondition:
		// not on the roster, nothing to flip
	default:
		return err
	}

	if err := s.repo.InsertNominee(ctx, tx, caller, credentialsLink); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit register nominee: %w", err)
	}
	return nil
}

// UnregisterNominee withdraws a nominee application, unless the account is
// already contesting the current election.
func (s *Service) UnregisterNominee(ctx context.Context, caller string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.Get(ctx, tx)
	if err != nil {
		return err
	}
	if conf.CurrentElectionID != nil {
		current, err := s.repo.Get(ctx, tx, *conf.CurrentElectionID)
		if err != nil {
			return err
		}
		if current.Status != StatusEnded {
			contesting, err := s.repo.IsCandidate(ctx, tx, current.ID, caller)
			if err != nil {
				return err
			}
			if contesting {
				return fault.Precondition("election: withdraw candidacy before unregistering")
			}
		}
	}

	if err := s.repo.DeleteNominee(ctx, tx, caller); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit unregister nominee: %w", err)
	}
	return nil
}

// currentForUpdate locks the current election, which must exist.
func (s *Service) currentForUpdate(ctx context.Context, tx pgx.Tx, conf ledger.Config) (Election, error) {
	if conf.CurrentElectionID == nil {
		return Election{}, fault.Precondition("election: no election underway")
	}
	return s.repo.GetForUpdate(ctx, tx, *conf.CurrentElectionID)
}

// AddCandidate puts a registered nominee on the current election's ballot.
func (s *Service) AddCandidate(ctx context.Context, caller string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.Get(ctx, tx)
	if err != nil {
		return err
	}
	current, err := s.currentForUpdate(ctx, tx, conf)
	if err != nil {
		return err
	}
	if current.Status != StatusCreated {
		return fault.Precondition("election: candidacy is closed")
	}
	if !s.now().Before(current.AddCandidatesUntil) {
		return fault.Precondition("election: candidate deadline has passed")
	}
	if _, err := s.repo.GetNominee(ctx, tx, caller); err != nil {
		return err
	}

	if err := s.repo.AddCandidate(ctx, tx, current.ID, caller); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit add candidate: %w", err)
	}
	return nil
}

// RemoveCandidate withdraws the caller from the current election's ballot.
func (s *Service) RemoveCandidate(ctx context.Context, caller string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.Get(ctx, tx)
	if err != nil {
		return err
	}
	current, err := s.currentForUpdate(ctx, tx, conf)
	if err != nil {
		return err
	}
	if current.Status != StatusCreated {
		return fault.Precondition("election: candidacy is closed")
	}
	if !s.now().Before(current.AddCandidatesUntil) {
		return fault.Precondition("election: candidate deadline has passed")
	}

	if err := s.repo.RemoveCandidate(ctx, tx, current.ID, caller); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit remove candidate: %w", err)
	}
	return nil
}

// BeginVoting closes candidacy and opens the vote. When the field is no
// bigger than the seat count there is nothing to vote on: every candidate is
// seated directly and the election ends.
func (s *Service) BeginVoting(ctx context.Context, caller string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	if caller != conf.AdminAccount {
		return fault.Authorization("election: only the admin can begin voting")
	}
	current, err := s.currentForUpdate(ctx, tx, conf)
	if err != nil {
		return err
	}
	if current.Status != StatusCreated {
		return fault.Precondition("election: voting has already begun")
	}
	now := s.now()
	if now.Before(current.AddCandidatesUntil) {
		return fault.Precondition("election: candidate window still open")
	}

	candidates, err := s.repo.Candidates(ctx, tx, current.ID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fault.Precondition("election: no candidates to vote on")
	}

	if len(candidates) <= current.AvailableSeats {
		for _, c := range candidates {
			if err := s.install(ctx, tx, conf, c.Account, now); err != nil {
				return err
			}
		}
		if err := s.repo.End(ctx, tx, current.ID); err != nil {
			return err
		}
		update, err := s.enqueueAuthorityUpdate(ctx, tx, now)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("election: commit uncontested election: %w", err)
		}
		s.pushAuthority(ctx, update)
		return nil
	}

	if conf.AvailableFunds < ballotFee {
		return fault.Precondition("election: available funds do not cover the ballot fee")
	}
	conf.AvailableFunds -= ballotFee
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}
	err = outbox.Enqueue(ctx, tx, outbox.TopicTransferRequest, map[string]any{
		"to":     "ballot.service",
		"amount": ballotFee,
		"memo":   "ballot listing fee",
	})
	if err != nil {
		return err
	}

	window := time.Duration(conf.ElectionVotingSec) * time.Second
	if current.IsRunoff {
		window = time.Duration(conf.RunoffVotingSec) * time.Second
	}
	ref := s.newRef()
	until := now.Add(window)
	if err := s.repo.OpenVoting(ctx, tx, current.ID, ref, now, until); err != nil {
		return err
	}

	options := make([]string, len(candidates))
	for i, c := range candidates {
		options[i] = c.Account
	}
	err = outbox.Enqueue(ctx, tx, outbox.TopicBallotCommand, map[string]any{
		"command":   "open",
		"ref":       ref,
		"seats":     current.AvailableSeats,
		"options":   options,
		"ends_at":   until.UTC().Format(time.RFC3339),
		"is_runoff": current.IsRunoff,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit begin voting: %w", err)
	}

	s.openBallot(ctx, ref, current, options, until)
	return nil
}

// EndElection asks the ballot service to close a vote whose window has
// passed. The election stays live until the results notification lands.
func (s *Service) EndElection(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.Get(ctx, tx)
	if err != nil {
		return err
	}
	current, err := s.currentForUpdate(ctx, tx, conf)
	if err != nil {
		return err
	}
	if current.Status != StatusLive || current.BallotRef == nil {
		return fault.Precondition("election: no vote underway")
	}
	if current.VotingUntil != nil && s.now().Before(*current.VotingUntil) {
		return fault.Precondition("election: voting window still open")
	}

	ref := *current.BallotRef
	err = outbox.Enqueue(ctx, tx, outbox.TopicBallotCommand, map[string]any{
		"command": "close",
		"ref":     ref,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit end election: %w", err)
	}

	if err := s.ballots.CloseVoting(ctx, ref); err != nil {
		log.Printf("level=warn component=election msg=\"close ballot failed\" ref=%s err=%v", ref, err)
	}
	return nil
}

// Resolve consumes the final tally for a ballot: seats the winners, prunes
// beaten nominees, refreshes the signing authority, and opens a runoff for
// any seats a tie left undecided.
func (s *Service) Resolve(ctx context.Context, ballotRef string, results map[string]int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("election: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conf, err := s.ledgerRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	current, err := s.repo.GetByBallotForUpdate(ctx, tx, ballotRef)
	if err != nil {
		return err
	}
	if current.Status != StatusLive {
		return fault.Precondition("election: ballot already resolved")
	}

	candidates, err := s.repo.Candidates(ctx, tx, current.ID)
	if err != nil {
		return err
	}
	for i, c := range candidates {
		candidates[i].Tally = results[c.Account]
		if err := s.repo.SetTally(ctx, tx, current.ID, c.Account, results[c.Account]); err != nil {
			return err
		}
	}

	now := s.now()
	outcome := ResolveTally(candidates, current.AvailableSeats)

	for _, w := range outcome.Winners {
		if err := s.install(ctx, tx, conf, w.Account, now); err != nil {
			return err
		}
	}
	for _, u := range outcome.Unseated {
		if err := s.repo.DeleteNominee(ctx, tx, u.Account); err != nil {
			return err
		}
	}

	if err := s.repo.End(ctx, tx, current.ID); err != nil {
		return err
	}

	err = outbox.Enqueue(ctx, tx, outbox.TopicElectionResolved, map[string]any{
		"election_id":  current.ID,
		"ballot_ref":   ballotRef,
		"winners":      accountsOf(outcome.Winners),
		"tied":         accountsOf(outcome.Tied),
		"runoff_seats": outcome.RunoffSeats,
	})
	if err != nil {
		return err
	}

	update, err := s.enqueueAuthorityUpdate(ctx, tx, now)
	if err != nil {
		return err
	}

	// A tie with no seat left to contest means the tied candidates simply
	// stay nominees; a zero-seat runoff is never opened.
	var runoff *runoffPlan
	if len(outcome.Tied) > 0 && outcome.RunoffSeats > 0 {
		runoff, err = s.openRunoff(ctx, tx, &conf, current, outcome, now)
		if err != nil {
			return err
		}
	}
	if err := s.ledgerRepo.Save(ctx, tx, conf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("election: commit resolve: %w", err)
	}

	s.pushAuthority(ctx, update)
	if runoff != nil {
		s.openBallot(ctx, runoff.ref, runoff.election, runoff.options, runoff.until)
	}
	return nil
}

type runoffPlan struct {
	ref      string
	election Election
	options  []string
	until    time.Time
}

// openRunoff creates the follow-up election restricted to the tied
// candidates and opens its ballot immediately.
func (s *Service) openRunoff(ctx context.Context, tx pgx.Tx, conf *ledger.Config, prev Election, outcome Outcome, now time.Time) (*runoffPlan, error) {
	if conf.AvailableFunds < ballotFee {
		return nil, fault.Precondition("election: available funds do not cover the runoff ballot fee")
	}
	conf.AvailableFunds -= ballotFee
	err := outbox.Enqueue(ctx, tx, outbox.TopicTransferRequest, map[string]any{
		"to":     "ballot.service",
		"amount": ballotFee,
		"memo":   "runoff ballot listing fee",
	})
	if err != nil {
		return nil, err
	}

	id, err := s.repo.Create(ctx, tx, outcome.RunoffSeats, true, prev.InfoLink, now)
	if err != nil {
		return nil, err
	}
	options := make([]string, 0, len(outcome.Tied))
	for _, c := range outcome.Tied {
		if err := s.repo.AddCandidate(ctx, tx, id, c.Account); err != nil {
			return nil, err
		}
		options = append(options, c.Account)
	}

	ref := s.newRef()
	until := now.Add(time.Duration(conf.RunoffVotingSec) * time.Second)
	if err := s.repo.OpenVoting(ctx, tx, id, ref, now, until); err != nil {
		return nil, err
	}
	conf.CurrentElectionID = &id

	err = outbox.Enqueue(ctx, tx, outbox.TopicBallotCommand, map[string]any{
		"command":   "open",
		"ref":       ref,
		"seats":     outcome.RunoffSeats,
		"options":   options,
		"ends_at":   until.UTC().Format(time.RFC3339),
		"is_runoff": true,
	})
	if err != nil {
		return nil, err
	}

	runoff, err := s.repo.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return &runoffPlan{ref: ref, election: runoff, options: options, until: until}, nil
}

// install seats one winner with a fresh term and drops their nomination.
func (s *Service) install(ctx context.Context, tx pgx.Tx, conf ledger.Config, account string, now time.Time) error {
	nominee, err := s.repo.GetNominee(ctx, tx, account)
	if err != nil {
		return err
	}
	if err := s.arbRepo.InstallOrRenew(ctx, tx, account, nominee.CredentialsLink, conf.TermExpiration(now)); err != nil {
		return err
	}
	return s.repo.DeleteNominee(ctx, tx, account)
}

type authorityUpdate struct {
	signers   []string
	threshold int
}

// enqueueAuthorityUpdate records the new signer set on the outbox and hands
// it back for the post-commit push.
func (s *Service) enqueueAuthorityUpdate(ctx context.Context, tx pgx.Tx, now time.Time) (authorityUpdate, error) {
	seated, err := s.arbRepo.SeatedAccounts(ctx, tx, now)
	if err != nil {
		return authorityUpdate{}, err
	}
	update := authorityUpdate{signers: seated, threshold: authority.Threshold(len(seated))}
	err = outbox.Enqueue(ctx, tx, outbox.TopicAuthorityUpdate, map[string]any{
		"signers":   update.signers,
		"threshold": update.threshold,
	})
	if err != nil {
		return authorityUpdate{}, err
	}
	return update, nil
}

func (s *Service) pushAuthority(ctx context.Context, update authorityUpdate) {
	if err := s.signers.ReplaceSigners(ctx, update.signers, update.threshold); err != nil {
		log.Printf("level=warn component=election msg=\"authority update failed\" err=%v", err)
	}
}

// openBallot drives the ballot service through create, configure, and open.
func (s *Service) openBallot(ctx context.Context, ref string, e Election, options []string, until time.Time) {
	steps := []struct {
		name string
		call func() error
	}{
		{"create", func() error { return s.ballots.CreateBallot(ctx, ref, "election", options) }},
		{"details", func() error {
			title := "Arbitrator election"
			if e.IsRunoff {
				title = "Arbitrator runoff election"
			}
			return s.ballots.SetDetails(ctx, ref, title, "", e.InfoLink)
		}},
		{"minmax", func() error { return s.ballots.SetMinMax(ctx, ref, 1, e.AvailableSeats) }},
		{"stake_weight", func() error { return s.ballots.ToggleStakeWeight(ctx, ref) }},
		{"open", func() error { return s.ballots.OpenVoting(ctx, ref, until) }},
	}
	for _, step := range steps {
		if err := step.call(); err != nil {
			log.Printf("level=warn component=election msg=\"ballot %s failed\" ref=%s err=%v", step.name, ref, err)
			return
		}
	}
}

func accountsOf(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Account
	}
	return out
}
