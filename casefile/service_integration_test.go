package casefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/arbitrator"
	"arbflow/db"
	"arbflow/escrow"
	"arbflow/fault"
	"arbflow/ledger"
	"arbflow/oracle"
)

// The integration tests connect to a real PostgreSQL via DATABASE_URL and
// walk the case machine end to end, asserting fund conservation at each
// boundary. Amounts are deltas against the live config row so the tests
// coexist with whatever state earlier runs left behind.
type integrationEnv struct {
	pool   *pgxpool.Pool
	cases  *Service
	escrow *escrow.Service
	ledger *ledger.Repository
	admin  string
	suffix string
}

func setupIntegration(t *testing.T) (context.Context, *integrationEnv) {
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

	env := &integrationEnv{
		pool:   pool,
		ledger: ledger.NewRepository(),
		admin:  "admin.arb",
		suffix: fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000),
	}

	// Fee of 10 USD with a pegged 1:1 oracle rate keeps the expected
	// amounts easy to read.
	_, err = pool.Exec(ctx, `
        INSERT INTO config (admin_account, fee_usd, offer_window_secs, max_claims_per_case, arb_term_secs)
        VALUES ($1, $2, 604800, 5, 31536000)
        ON CONFLICT (onerow) DO UPDATE SET
            admin_account = EXCLUDED.admin_account,
            fee_usd = EXCLUDED.fee_usd,
            offer_window_secs = EXCLUDED.offer_window_secs,
            max_claims_per_case = EXCLUDED.max_claims_per_case
    `, env.admin, 10*ledger.AmountScale)
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	env.cases = NewService(pool, env.ledger, escrow.NewRepository(), arbitrator.NewRepository(), oracle.Static{Rate: ledger.AmountScale})
	env.escrow = escrow.NewService(pool, env.ledger, "TLOS")
	return ctx, env
}

func (e *integrationEnv) account(name string) string {
	return name + "." + e.suffix
}

func (e *integrationEnv) deposit(ctx context.Context, t *testing.T, account string, amount int64) {
	t.Helper()
	err := e.escrow.HandleDeposit(ctx, escrow.Deposit{
		TransferID: fmt.Sprintf("test-%s-%d", account, time.Now().UnixNano()),
		From:       account,
		To:         "arbflow",
		Amount:     amount,
		Token:      "TLOS",
		Memo:       "",
	})
	if err != nil {
		t.Fatalf("deposit for %s: %v", account, err)
	}
}

func (e *integrationEnv) seedArbitrator(ctx context.Context, t *testing.T, account string) {
	t.Helper()
	_, err := e.pool.Exec(ctx, `
        INSERT INTO arbitrators (account, status, credentials_link, term_expires)
        VALUES ($1, 'available', $2, now() + interval '1 year')
        ON CONFLICT (account) DO UPDATE SET status = 'available', term_expires = now() + interval '1 year'
    `, account, testLink('c'))
	if err != nil {
		t.Fatalf("seed arbitrator %s: %v", account, err)
	}
}

func (e *integrationEnv) balance(ctx context.Context, t *testing.T, account string) int64 {
	t.Helper()
	b, err := e.escrow.BalanceOf(ctx, account)
	if err != nil {
		if errors.Is(err, escrow.ErrNoBalance) {
			return 0
		}
		t.Fatalf("balance of %s: %v", account, err)
	}
	return b.Amount
}

func (e *integrationEnv) funds(ctx context.Context, t *testing.T) (available, reserved int64) {
	t.Helper()
	conf, err := e.ledger.Get(ctx, e.pool)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	return conf.AvailableFunds, conf.ReservedFunds
}

func testLink(c byte) string {
	return "Qm" + strings.Repeat(string(c), 44)
}

func TestCaseLifecycle_Integration(t *testing.T) {
	ctx, env := setupIntegration(t)

	claimant := env.account("claimant")
	arb := env.account("arb")
	env.seedArbitrator(ctx, t, arb)

	fee := int64(10 * ledger.AmountScale)
	cost := int64(2 * 5 * ledger.AmountScale) // 5 TLOS/hour for 2 hours
	env.deposit(ctx, t, claimant, fee+cost)

	availableBefore, reservedBefore := env.funds(ctx, t)
	arbBalanceBefore := env.balance(ctx, t, arb)

	caseID, err := env.cases.FileCase(ctx, claimant, testLink('a'), CategoryContractBreach, []int16{0}, nil)
	if err != nil {
		t.Fatalf("file case: %v", err)
	}

	if err := env.cases.ReadyCase(ctx, claimant, caseID); err != nil {
		t.Fatalf("ready case: %v", err)
	}
	if got := env.balance(ctx, t, claimant); got != cost {
		t.Fatalf("claimant balance after fee: got %d want %d", got, cost)
	}
	if _, reserved := env.funds(ctx, t); reserved != reservedBefore+fee {
		t.Fatalf("reserved after ready: got %d want %d", reserved, reservedBefore+fee)
	}

	// Offer accepted through raw SQL mirrors what the offerbook service
	// writes; RespondOffer is the behavior under test here.
	var offerID int64
	err = env.pool.QueryRow(ctx, `
        INSERT INTO offers (case_id, arbitrator, hourly_rate, estimated_hours)
        VALUES ($1, $2, $3, 2) RETURNING id
    `, caseID, arb, 5*ledger.AmountScale).Scan(&offerID)
	if err != nil {
		t.Fatalf("seed offer: %v", err)
	}

	if err := env.cases.RespondOffer(ctx, claimant, caseID, offerID, true); err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if got := env.balance(ctx, t, claimant); got != 0 {
		t.Fatalf("claimant balance after acceptance: got %d want 0", got)
	}
	if _, reserved := env.funds(ctx, t); reserved != reservedBefore+fee+cost {
		t.Fatalf("reserved after acceptance: got %d want %d", reserved, reservedBefore+fee+cost)
	}

	if err := env.cases.StartCase(ctx, arb, caseID, 0); err != nil {
		t.Fatalf("start case: %v", err)
	}
	if err := env.cases.SettleClaim(ctx, arb, caseID, 1, true, testLink('d')); err != nil {
		t.Fatalf("settle claim: %v", err)
	}
	if err := env.cases.SetRuling(ctx, arb, caseID, testLink('r')); err != nil {
		t.Fatalf("set ruling: %v", err)
	}

	if err := env.cases.ValidateCase(ctx, env.admin, caseID, true); err != nil {
		t.Fatalf("validate case: %v", err)
	}
	if got := env.balance(ctx, t, arb); got != arbBalanceBefore+cost {
		t.Fatalf("arbitrator payout: got %d want %d", got, arbBalanceBefore+cost)
	}
	available, reserved := env.funds(ctx, t)
	if reserved != reservedBefore {
		t.Fatalf("reserved after validation: got %d want %d", reserved, reservedBefore)
	}
	if available != availableBefore+fee {
		t.Fatalf("available after validation: got %d want %d", available, availableBefore+fee)
	}

	if err := env.cases.CloseCase(ctx, env.admin, caseID); err != nil {
		t.Fatalf("close case: %v", err)
	}
	cf, err := env.cases.Get(ctx, caseID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if cf.Status != StatusResolved {
		t.Fatalf("final status: got %s want %s", cf.Status, StatusResolved)
	}

	// The event log must cover the whole path with a gapless sequence.
	var gaps int
	err = env.pool.QueryRow(ctx, `
        SELECT count(*) FROM (
            SELECT seq - row_number() OVER (ORDER BY seq) AS drift
            FROM case_events WHERE case_id = $1
        ) d WHERE drift != 0
    `, caseID).Scan(&gaps)
	if err != nil {
		t.Fatalf("check event log: %v", err)
	}
	if gaps != 0 {
		t.Fatalf("case %d event log has gaps", caseID)
	}
}

func TestShredCase_LeavesNoTrace_Integration(t *testing.T) {
	ctx, env := setupIntegration(t)

	claimant := env.account("shredder")
	env.deposit(ctx, t, claimant, 50*ledger.AmountScale)

	balanceBefore := env.balance(ctx, t, claimant)
	availableBefore, reservedBefore := env.funds(ctx, t)

	caseID, err := env.cases.FileCase(ctx, claimant, testLink('a'), CategoryTrxReversal, nil, nil)
	if err != nil {
		t.Fatalf("file case: %v", err)
	}
	if _, err := env.cases.AddClaim(ctx, claimant, caseID, testLink('b'), CategoryTort); err != nil {
		t.Fatalf("add claim: %v", err)
	}
	if err := env.cases.ShredCase(ctx, claimant, caseID); err != nil {
		t.Fatalf("shred case: %v", err)
	}

	if _, err := env.cases.Get(ctx, caseID); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected case gone, got %v", err)
	}
	var claims int
	if err := env.pool.QueryRow(ctx, `SELECT count(*) FROM claims WHERE case_id = $1`, caseID).Scan(&claims); err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if claims != 0 {
		t.Fatalf("expected claims cascade-deleted, found %d", claims)
	}

	if got := env.balance(ctx, t, claimant); got != balanceBefore {
		t.Fatalf("claimant balance moved across file+shred: %d -> %d", balanceBefore, got)
	}
	available, reserved := env.funds(ctx, t)
	if available != availableBefore || reserved != reservedBefore {
		t.Fatalf("fund pools moved across file+shred: available %d -> %d, reserved %d -> %d",
			availableBefore, available, reservedBefore, reserved)
	}
}

func TestSettleClaim_DoubleApplyRejected_Integration(t *testing.T) {
	ctx, env := setupIntegration(t)

	claimant := env.account("double")
	arb := env.account("doublearb")
	env.seedArbitrator(ctx, t, arb)
	env.deposit(ctx, t, claimant, 100*ledger.AmountScale)

	caseID, err := env.cases.FileCase(ctx, claimant, testLink('a'), CategoryMisc, nil, nil)
	if err != nil {
		t.Fatalf("file case: %v", err)
	}
	if err := env.cases.ReadyCase(ctx, claimant, caseID); err != nil {
		t.Fatalf("ready case: %v", err)
	}
	var offerID int64
	err = env.pool.QueryRow(ctx, `
        INSERT INTO offers (case_id, arbitrator, hourly_rate, estimated_hours)
        VALUES ($1, $2, $3, 1) RETURNING id
    `, caseID, arb, ledger.AmountScale).Scan(&offerID)
	if err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	if err := env.cases.RespondOffer(ctx, claimant, caseID, offerID, true); err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if err := env.cases.StartCase(ctx, arb, caseID, 0); err != nil {
		t.Fatalf("start case: %v", err)
	}

	if err := env.cases.SettleClaim(ctx, arb, caseID, 1, true, testLink('d')); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	err = env.cases.SettleClaim(ctx, arb, caseID, 1, false, testLink('e'))
	if fault.KindOf(err) != fault.KindPrecondition {
		t.Fatalf("second settle: expected precondition fault, got %v", err)
	}

	// State from the rejected call must not have leaked.
	claims, err := env.cases.Claims(ctx, caseID)
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if len(claims) != 1 || claims[0].Status != ClaimAccepted || claims[0].DecisionLink != testLink('d') {
		t.Fatalf("claim state changed by rejected settle: %+v", claims[0])
	}
}

func TestCancelCase_RefundDependsOnOffers_Integration(t *testing.T) {
	ctx, env := setupIntegration(t)

	fee := int64(10 * ledger.AmountScale)

	// No offers: the filing fee comes straight back.
	claimant := env.account("cancel1")
	env.deposit(ctx, t, claimant, fee)
	caseID, err := env.cases.FileCase(ctx, claimant, testLink('a'), CategoryMisc, nil, nil)
	if err != nil {
		t.Fatalf("file case: %v", err)
	}
	if err := env.cases.ReadyCase(ctx, claimant, caseID); err != nil {
		t.Fatalf("ready case: %v", err)
	}
	if err := env.cases.CancelCase(ctx, claimant, caseID); err != nil {
		t.Fatalf("cancel case: %v", err)
	}
	if got := env.balance(ctx, t, claimant); got != fee {
		t.Fatalf("refund without offers: got %d want %d", got, fee)
	}

	// With an offer on the book the fee is forfeited to the communal pool.
	claimant2 := env.account("cancel2")
	arb := env.account("cancelarb")
	env.seedArbitrator(ctx, t, arb)
	env.deposit(ctx, t, claimant2, fee)
	caseID2, err := env.cases.FileCase(ctx, claimant2, testLink('b'), CategoryMisc, nil, nil)
	if err != nil {
		t.Fatalf("file second case: %v", err)
	}
	if err := env.cases.ReadyCase(ctx, claimant2, caseID2); err != nil {
		t.Fatalf("ready second case: %v", err)
	}
	if _, err := env.pool.Exec(ctx, `
        INSERT INTO offers (case_id, arbitrator, hourly_rate, estimated_hours)
        VALUES ($1, $2, $3, 1)
    `, caseID2, arb, ledger.AmountScale); err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	if _, err := env.pool.Exec(ctx, `
        UPDATE casefiles SET number_offers = 1 WHERE id = $1
    `, caseID2); err != nil {
		t.Fatalf("bump offer count: %v", err)
	}

	availableBefore, _ := env.funds(ctx, t)
	if err := env.cases.CancelCase(ctx, claimant2, caseID2); err != nil {
		t.Fatalf("cancel second case: %v", err)
	}
	if got := env.balance(ctx, t, claimant2); got != 0 {
		t.Fatalf("forfeited fee came back: got %d want 0", got)
	}
	if available, _ := env.funds(ctx, t); available != availableBefore+fee {
		t.Fatalf("available after forfeiture: got %d want %d", available, availableBefore+fee)
	}
}

func TestDismissArbitrator_BulkMistrial_Integration(t *testing.T) {
	ctx, env := setupIntegration(t)

	fee := int64(10 * ledger.AmountScale)
	arb := env.account("bulkarb")
	env.seedArbitrator(ctx, t, arb)

	// Two in-flight cases on the same arbitrator with distinct costs, so a
	// per-case slip in the accumulated refund shows up in the totals.
	assign := func(claimant string, rate int64, hours int16) int64 {
		t.Helper()
		env.deposit(ctx, t, claimant, fee+rate*int64(hours))
		caseID, err := env.cases.FileCase(ctx, claimant, testLink('a'), CategoryMisc, nil, nil)
		if err != nil {
			t.Fatalf("file case for %s: %v", claimant, err)
		}
		if err := env.cases.ReadyCase(ctx, claimant, caseID); err != nil {
			t.Fatalf("ready case for %s: %v", claimant, err)
		}
		var offerID int64
		err = env.pool.QueryRow(ctx, `
            INSERT INTO offers (case_id, arbitrator, hourly_rate, estimated_hours)
            VALUES ($1, $2, $3, $4) RETURNING id
        `, caseID, arb, rate, hours).Scan(&offerID)
		if err != nil {
			t.Fatalf("seed offer for %s: %v", claimant, err)
		}
		if err := env.cases.RespondOffer(ctx, claimant, caseID, offerID, true); err != nil {
			t.Fatalf("accept offer for %s: %v", claimant, err)
		}
		return caseID
	}

	claimantA := env.account("bulk1")
	claimantB := env.account("bulk2")
	costA := int64(2 * ledger.AmountScale)     // 2 TLOS/hour for 1 hour
	costB := int64(3 * 2 * ledger.AmountScale) // 3 TLOS/hour for 2 hours
	caseA := assign(claimantA, 2*ledger.AmountScale, 1)
	caseB := assign(claimantB, 3*ledger.AmountScale, 2)

	// One case still assigned, the other already under investigation.
	if err := env.cases.StartCase(ctx, arb, caseB, 0); err != nil {
		t.Fatalf("start second case: %v", err)
	}

	availableBefore, reservedBefore := env.funds(ctx, t)

	err := env.cases.DismissArbitrator(ctx, env.admin, arb, "conduct review found repeated conflicts", true)
	if err != nil {
		t.Fatalf("dismiss arbitrator: %v", err)
	}

	for _, caseID := range []int64{caseA, caseB} {
		cf, err := env.cases.Get(ctx, caseID)
		if err != nil {
			t.Fatalf("get case %d: %v", caseID, err)
		}
		if cf.Status != StatusMistrial {
			t.Fatalf("case %d status: got %s want %s", caseID, cf.Status, StatusMistrial)
		}
	}

	if got := env.balance(ctx, t, claimantA); got != fee+costA {
		t.Fatalf("first claimant refund: got %d want %d", got, fee+costA)
	}
	if got := env.balance(ctx, t, claimantB); got != fee+costB {
		t.Fatalf("second claimant refund: got %d want %d", got, fee+costB)
	}
	available, reserved := env.funds(ctx, t)
	if want := reservedBefore - (fee + costA) - (fee + costB); reserved != want {
		t.Fatalf("reserved after dismissal: got %d want %d", reserved, want)
	}
	if available != availableBefore {
		t.Fatalf("available moved across dismissal: %d -> %d", availableBefore, available)
	}

	var arbStatus string
	if err := env.pool.QueryRow(ctx, `SELECT status FROM arbitrators WHERE account = $1`, arb).Scan(&arbStatus); err != nil {
		t.Fatalf("read arbitrator status: %v", err)
	}
	if arbStatus != "removed" {
		t.Fatalf("arbitrator status: got %s want removed", arbStatus)
	}

	// Dismissing the same arbitrator twice must not refund a second time.
	err = env.cases.DismissArbitrator(ctx, env.admin, arb, "conduct review found repeated conflicts", true)
	if fault.KindOf(err) != fault.KindPrecondition {
		t.Fatalf("second dismissal: expected precondition fault, got %v", err)
	}
	if got := env.balance(ctx, t, claimantA); got != fee+costA {
		t.Fatalf("first claimant balance moved on rejected dismissal: got %d want %d", got, fee+costA)
	}
}
