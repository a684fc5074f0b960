package offerbook

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
	"arbflow/casefile"
	"arbflow/db"
	"arbflow/fault"
	"arbflow/ledger"
)

// TestOfferExclusivity_Integration verifies the one-pending-offer rule and
// the repricing path against a live PostgreSQL via DATABASE_URL.
func TestOfferExclusivity_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000)
	claimant := "offerclaimant." + suffix
	arb := "offerarb." + suffix
	link := "Qm" + strings.Repeat("o", 44)

	if _, err := pool.Exec(ctx, `
        INSERT INTO arbitrators (account, status, credentials_link, term_expires)
        VALUES ($1, 'available', $2, now() + interval '1 year')
    `, arb, link); err != nil {
		t.Fatalf("seed arbitrator: %v", err)
	}

	var caseID int64
	err = pool.QueryRow(ctx, `
        INSERT INTO casefiles (status, claimant, offers_until)
        VALUES ('awaiting_arbs', $1, now() + interval '1 day')
        RETURNING id
    `, claimant).Scan(&caseID)
	if err != nil {
		t.Fatalf("seed case: %v", err)
	}

	svc := NewService(pool, casefile.NewRepository(), arbitrator.NewRepository())

	offerID, err := svc.MakeOffer(ctx, arb, caseID, nil, 5*ledger.AmountScale, 2)
	if err != nil {
		t.Fatalf("make offer: %v", err)
	}

	// A second fresh bid from the same arbitrator must bounce off the
	// partial unique index.
	_, err = svc.MakeOffer(ctx, arb, caseID, nil, 6*ledger.AmountScale, 2)
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("second offer: expected ErrDuplicatePending, got %v", err)
	}
	if fault.KindOf(err) != fault.KindInvariant {
		t.Fatalf("second offer: expected invariant fault, got kind %s", fault.KindOf(err))
	}

	// Repricing the existing bid is fine and keeps the same id.
	repriced, err := svc.MakeOffer(ctx, arb, caseID, &offerID, 4*ledger.AmountScale, 3)
	if err != nil {
		t.Fatalf("reprice offer: %v", err)
	}
	if repriced != offerID {
		t.Fatalf("reprice returned new id %d, want %d", repriced, offerID)
	}

	offers, err := svc.ByCase(ctx, caseID)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected a single offer, got %d", len(offers))
	}
	if offers[0].HourlyRate != 4*ledger.AmountScale || offers[0].EstimatedHours != 3 {
		t.Fatalf("reprice did not stick: %+v", offers[0])
	}

	// The claimant cannot bid on their own case.
	if _, err := svc.MakeOffer(ctx, claimant, caseID, nil, ledger.AmountScale, 1); fault.KindOf(err) != fault.KindPrecondition {
		t.Fatalf("party bid: expected precondition fault, got %v", err)
	}

	// Dismissing frees the slot for a fresh bid.
	if err := svc.DismissOffer(ctx, arb, offerID); err != nil {
		t.Fatalf("dismiss offer: %v", err)
	}
	if _, err := svc.MakeOffer(ctx, arb, caseID, nil, 5*ledger.AmountScale, 1); err != nil {
		t.Fatalf("offer after dismissal: %v", err)
	}
}
