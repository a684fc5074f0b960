package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"arbflow/arbitrator"
	"arbflow/casefile"
	"arbflow/escrow"
	"arbflow/ledger"
	"arbflow/offerbook"
	"arbflow/oracle"
	"arbflow/outbox"
	"arbflow/test/actors"
	"arbflow/test/chaos"
	"arbflow/test/infra"
	"arbflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 6, "number of concurrent claimants and arbitrators")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestCaseMachineConcurrency runs claimant, arbitrator, and admin actors
// against the real services under connection chaos, checking the fund and
// state invariants every couple of seconds.
func TestCaseMachineConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	var (
		pgC *infra.PGContainer
		dsn string
		err error
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, err := infra.PrepareDatabase(ctx, dsn)
	if err != nil {
		t.Fatalf("prepare database: %v", err)
	}
	defer pool.Close()

	admin := seedWorld(t, ctx, pool, *flConcurrency)

	ledgerRepo := ledger.NewRepository()
	svcs := actors.Services{
		Cases:  casefile.NewService(pool, ledgerRepo, escrow.NewRepository(), arbitrator.NewRepository(), oracle.Static{Rate: ledger.AmountScale}),
		Offers: offerbook.NewService(pool, casefile.NewRepository(), arbitrator.NewRepository()),
		Escrow: escrow.NewService(pool, ledgerRepo, "TLOS"),
	}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		claimant := fmt.Sprintf("claimant%d", i)
		arb := fmt.Sprintf("arb%d", i)
		g.Go(func() error { return actors.Claimant(ctx2, pool, svcs, claimant, stop) })
		g.Go(func() error { return actors.Arbiter(ctx2, pool, svcs, arb, stop) })
	}
	g.Go(func() error { return actors.Admin(ctx2, pool, svcs, admin, stop) })

	// The production relay drains the outbox while chaos kills backends.
	relayCtx, relayCancel := context.WithCancel(ctx2)
	defer relayCancel()
	go outbox.Relay(relayCtx, pool, outbox.NopPublisher{}, 200*time.Millisecond)
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				// Chaos can kill the oracle's own connection; retry next tick.
				t.Logf("oracle query error (retrying): %v", err)
				continue
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	relayCancel()
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

// seedWorld installs the config row and a roster of available arbitrators,
// and returns the admin account name.
func seedWorld(t *testing.T, ctx context.Context, pool *pgxpool.Pool, arbs int) string {
	t.Helper()
	admin := "stressadmin"

	_, err := pool.Exec(ctx, `
        INSERT INTO config (admin_account, fee_usd, offer_window_secs, max_claims_per_case, arb_term_secs)
        VALUES ($1, $2, 3600, 5, 31536000)
        ON CONFLICT (onerow) DO UPDATE SET
            admin_account = EXCLUDED.admin_account,
            fee_usd = EXCLUDED.fee_usd,
            offer_window_secs = EXCLUDED.offer_window_secs
    `, admin, 10*ledger.AmountScale)
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	link := "Qm" + strings.Repeat("s", 44)
	for i := 0; i < arbs; i++ {
		_, err := pool.Exec(ctx, `
            INSERT INTO arbitrators (account, status, credentials_link, term_expires)
            VALUES ($1, 'available', $2, now() + interval '1 year')
            ON CONFLICT (account) DO UPDATE SET status = 'available', term_expires = now() + interval '1 year'
        `, fmt.Sprintf("arb%d", i), link)
		if err != nil {
			t.Fatalf("seed arbitrator %d: %v", i, err)
		}
	}
	return admin
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"casefiles", `SELECT id, status, claimant, arbitrator, fee_paid, arbitrator_cost FROM casefiles ORDER BY id DESC LIMIT 50`},
		{"config", `SELECT admin_account, available_funds, reserved_funds FROM config`},
		{"case_events", `SELECT case_id, seq, type, actor FROM case_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%v", buf)
		}
		rows.Close()
	}
}
