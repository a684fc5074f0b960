package election

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/arbitrator"
	"arbflow/authority"
	"arbflow/ballot"
	"arbflow/db"
	"arbflow/ledger"
)

// The integration tests connect to a real PostgreSQL via DATABASE_URL and run
// elections end to end through Resolve. The service clock is pinned so the
// candidacy window can be opened and closed without sleeping.
type electionEnv struct {
	pool   *pgxpool.Pool
	svc    *Service
	ledger *ledger.Repository
	admin  string
	suffix string
	clock  time.Time
}

func setupElection(t *testing.T) (context.Context, *electionEnv) {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	if err := db.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	env := &electionEnv{
		pool:   pool,
		ledger: ledger.NewRepository(),
		admin:  "admin.arb",
		suffix: fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000),
		clock:  time.Now(),
	}

	_, err = pool.Exec(ctx, `
        INSERT INTO config (admin_account) VALUES ($1)
        ON CONFLICT (onerow) DO UPDATE SET admin_account = EXCLUDED.admin_account
    `, env.admin)
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	// Two open seats relative to whatever the roster already holds, a short
	// candidacy window, funds for two ballot listings, and no election carried
	// over from an earlier run.
	_, err = pool.Exec(ctx, `
        UPDATE config SET
            max_elected_arbs = (
                SELECT count(*) FROM arbitrators
                WHERE status IN ('available', 'unavailable') AND term_expires > now()
            ) + 2,
            add_candidates_secs = 3600,
            election_voting_secs = 3600,
            runoff_voting_secs = 3600,
            available_funds = available_funds + $1,
            current_election_id = NULL
    `, 200*ledger.AmountScale)
	if err != nil {
		t.Fatalf("tune config: %v", err)
	}

	env.svc = NewService(pool, env.ledger, arbitrator.NewRepository(), ballot.Nop{}, authority.Nop{})
	env.svc.now = func() time.Time { return env.clock }
	return ctx, env
}

func (e *electionEnv) account(name string) string {
	return name + "." + e.suffix
}

func validLink() string {
	return "Qm" + strings.Repeat("e", 44)
}

// runToBallot starts an election, puts the given nominees on its ballot, and
// opens the vote. It returns the election id and its ballot reference.
func (e *electionEnv) runToBallot(ctx context.Context, t *testing.T, nominees []string) (int64, string) {
	t.Helper()

	electionID, err := e.svc.StartElection(ctx, e.admin, validLink())
	if err != nil {
		t.Fatalf("start election: %v", err)
	}
	for _, n := range nominees {
		if err := e.svc.RegisterNominee(ctx, n, validLink()); err != nil {
			t.Fatalf("register nominee %s: %v", n, err)
		}
		if err := e.svc.AddCandidate(ctx, n); err != nil {
			t.Fatalf("add candidate %s: %v", n, err)
		}
	}

	e.clock = e.clock.Add(2 * time.Hour)
	if err := e.svc.BeginVoting(ctx, e.admin); err != nil {
		t.Fatalf("begin voting: %v", err)
	}

	var ref string
	if err := e.pool.QueryRow(ctx, `SELECT ballot_ref FROM elections WHERE id = $1`, electionID).Scan(&ref); err != nil {
		t.Fatalf("read ballot ref: %v", err)
	}
	return electionID, ref
}

func (e *electionEnv) nomineeCount(ctx context.Context, t *testing.T, accounts ...string) int {
	t.Helper()
	var n int
	err := e.pool.QueryRow(ctx, `
        SELECT count(*) FROM nominees WHERE account = ANY($1)
    `, accounts).Scan(&n)
	if err != nil {
		t.Fatalf("count nominees: %v", err)
	}
	return n
}

func TestResolveElection_TieOpensRunoff_Integration(t *testing.T) {
	ctx, env := setupElection(t)

	first := env.account("runwin")
	tiedA := env.account("runtie1")
	tiedB := env.account("runtie2")
	last := env.account("runlast")
	electionID, ref := env.runToBallot(ctx, t, []string{first, tiedA, tiedB, last})

	// Two seats, a clear winner, and a tie straddling the second seat.
	err := env.svc.Resolve(ctx, ref, map[string]int64{
		first: 100,
		tiedA: 80,
		tiedB: 80,
		last:  60,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var arbStatus string
	var termExpires time.Time
	err = env.pool.QueryRow(ctx, `
        SELECT status, term_expires FROM arbitrators WHERE account = $1
    `, first).Scan(&arbStatus, &termExpires)
	if err != nil {
		t.Fatalf("read winner's seat: %v", err)
	}
	if arbStatus != "unavailable" {
		t.Fatalf("winner's status: got %s want unavailable", arbStatus)
	}
	if !termExpires.After(env.clock) {
		t.Fatalf("winner's term already expired: %v", termExpires)
	}

	// The winner and the beaten nominee are pruned; the tied pair stays
	// registered for the runoff.
	if n := env.nomineeCount(ctx, t, first, last); n != 0 {
		t.Fatalf("expected winner and loser pruned from nominees, %d remain", n)
	}
	if n := env.nomineeCount(ctx, t, tiedA, tiedB); n != 2 {
		t.Fatalf("expected tied candidates to stay nominees, found %d", n)
	}

	var status string
	if err := env.pool.QueryRow(ctx, `SELECT status FROM elections WHERE id = $1`, electionID).Scan(&status); err != nil {
		t.Fatalf("read resolved election: %v", err)
	}
	if status != "ended" {
		t.Fatalf("resolved election status: got %s want ended", status)
	}

	conf, err := env.ledger.Get(ctx, env.pool)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if conf.CurrentElectionID == nil || *conf.CurrentElectionID == electionID {
		t.Fatalf("expected a fresh runoff election, current is %v", conf.CurrentElectionID)
	}

	runoff, err := env.svc.Repo().Get(ctx, env.pool, *conf.CurrentElectionID)
	if err != nil {
		t.Fatalf("read runoff: %v", err)
	}
	if !runoff.IsRunoff || runoff.Status != StatusLive {
		t.Fatalf("runoff shape: is_runoff=%v status=%s", runoff.IsRunoff, runoff.Status)
	}
	if runoff.AvailableSeats != 1 {
		t.Fatalf("runoff seats: got %d want 1", runoff.AvailableSeats)
	}
	if runoff.BallotRef == nil || *runoff.BallotRef == ref {
		t.Fatalf("runoff ballot ref not fresh: %v", runoff.BallotRef)
	}

	candidates, err := env.svc.Repo().Candidates(ctx, env.pool, runoff.ID)
	if err != nil {
		t.Fatalf("read runoff candidates: %v", err)
	}
	if len(candidates) != 2 || candidates[0].Account != tiedA || candidates[1].Account != tiedB {
		t.Fatalf("runoff field: got %+v want exactly [%s %s]", candidates, tiedA, tiedB)
	}

	// The refreshed signer set travels through the outbox and includes the
	// newly seated winner.
	var updates int
	err = env.pool.QueryRow(ctx, `
        SELECT count(*) FROM outbox
        WHERE topic = 'authority.update' AND payload -> 'signers' @> to_jsonb($1::text)
    `, first).Scan(&updates)
	if err != nil {
		t.Fatalf("count authority updates: %v", err)
	}
	if updates == 0 {
		t.Fatalf("no authority update carries the new winner %s", first)
	}
}

func TestResolveElection_TieBelowBoundaryEndsWithoutRunoff_Integration(t *testing.T) {
	ctx, env := setupElection(t)

	first := env.account("flatwin1")
	second := env.account("flatwin2")
	tiedA := env.account("flattie1")
	tiedB := env.account("flattie2")
	electionID, ref := env.runToBallot(ctx, t, []string{first, second, tiedA, tiedB})

	// Both seats are decided outright; the tie sits entirely below the
	// cutoff, so there is nothing left to contest.
	err := env.svc.Resolve(ctx, ref, map[string]int64{
		first:  100,
		second: 90,
		tiedA:  80,
		tiedB:  80,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, w := range []string{first, second} {
		var arbStatus string
		if err := env.pool.QueryRow(ctx, `SELECT status FROM arbitrators WHERE account = $1`, w).Scan(&arbStatus); err != nil {
			t.Fatalf("read seat of %s: %v", w, err)
		}
		if arbStatus != "unavailable" {
			t.Fatalf("winner %s status: got %s want unavailable", w, arbStatus)
		}
	}

	var status string
	if err := env.pool.QueryRow(ctx, `SELECT status FROM elections WHERE id = $1`, electionID).Scan(&status); err != nil {
		t.Fatalf("read resolved election: %v", err)
	}
	if status != "ended" {
		t.Fatalf("resolved election status: got %s want ended", status)
	}

	// No runoff was opened: the config still points at the ended election and
	// the tied candidates simply remain nominees for the next one.
	conf, err := env.ledger.Get(ctx, env.pool)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if conf.CurrentElectionID == nil || *conf.CurrentElectionID != electionID {
		t.Fatalf("current election moved: got %v want %d", conf.CurrentElectionID, electionID)
	}
	if n := env.nomineeCount(ctx, t, tiedA, tiedB); n != 2 {
		t.Fatalf("expected tied candidates to stay nominees, found %d", n)
	}
}
