package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbflow/casefile"
	"arbflow/escrow"
	"arbflow/ledger"
	"arbflow/offerbook"
)

// Services bundles the domain services the actors drive. Actors go through
// the real operations, never raw writes, so every rejection they provoke is
// one the service is expected to absorb; errors are ignored on purpose since
// the oracles judge the resulting state.
type Services struct {
	Cases  *casefile.Service
	Offers *offerbook.Service
	Escrow *escrow.Service
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomLink() string {
	b := make([]byte, 44)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return "Qm" + string(b)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Claimant runs filing sagas: deposit, file, sometimes shred, ready, respond
// to whatever offers arrive, cancel when none do.
func Claimant(ctx context.Context, pool *pgxpool.Pool, svcs Services, account string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		_ = svcs.Escrow.HandleDeposit(ctx, escrow.Deposit{
			TransferID: fmt.Sprintf("stress-%s-%d", account, rand.Int63()),
			From:       account,
			To:         "arbflow",
			Amount:     200 * ledger.AmountScale,
			Token:      "TLOS",
			Memo:       "",
		})

		caseID, err := svcs.Cases.FileCase(ctx, account, randomLink(), int16(1+rand.Intn(13)), nil, nil)
		if err != nil {
			sleep(ctx, 50*time.Millisecond)
			continue
		}
		if rand.Intn(3) == 0 {
			_, _ = svcs.Cases.AddClaim(ctx, account, caseID, randomLink(), int16(1+rand.Intn(13)))
		}
		if rand.Intn(5) == 0 {
			_ = svcs.Cases.ShredCase(ctx, account, caseID)
			continue
		}
		if err := svcs.Cases.ReadyCase(ctx, account, caseID); err != nil {
			continue
		}

		accepted := false
		for i := 0; i < 40 && !accepted; i++ {
			if !sleep(ctx, time.Duration(50+rand.Intn(100))*time.Millisecond) {
				return nil
			}
			var offerID int64
			err := pool.QueryRow(ctx, `
                SELECT id FROM offers WHERE case_id = $1 AND status = 'pending' LIMIT 1
            `, caseID).Scan(&offerID)
			if err != nil {
				continue
			}
			if rand.Intn(5) == 0 {
				_ = svcs.Cases.RespondOffer(ctx, account, caseID, offerID, false)
				continue
			}
			if svcs.Cases.RespondOffer(ctx, account, caseID, offerID, true) == nil {
				accepted = true
			}
		}
		if !accepted {
			_ = svcs.Cases.CancelCase(ctx, account, caseID)
		}
	}
}

// Arbiter bids on open cases and works its assigned ones through
// investigation to a ruling, with the occasional recusal.
func Arbiter(ctx context.Context, pool *pgxpool.Pool, svcs Services, account string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var awaitingID int64
		err := pool.QueryRow(ctx, `
            SELECT id FROM casefiles
            WHERE status = 'awaiting_arbs' AND offers_until > now()
            ORDER BY random() LIMIT 1
        `).Scan(&awaitingID)
		if err == nil {
			rate := int64(1+rand.Intn(5)) * ledger.AmountScale
			_, _ = svcs.Offers.MakeOffer(ctx, account, awaitingID, nil, rate, int16(1+rand.Intn(4)))
		}

		rows, err := pool.Query(ctx, `
            SELECT id, status FROM casefiles
            WHERE arbitrator = $1 AND status IN ('arbs_assigned','case_investigation')
        `, account)
		if err != nil {
			sleep(ctx, 100*time.Millisecond)
			continue
		}
		type assigned struct {
			id     int64
			status string
		}
		var mine []assigned
		for rows.Next() {
			var a assigned
			if rows.Scan(&a.id, &a.status) == nil {
				mine = append(mine, a)
			}
		}
		rows.Close()

		for _, a := range mine {
			switch a.status {
			case "arbs_assigned":
				_ = svcs.Cases.StartCase(ctx, account, a.id, 0)
			case "case_investigation":
				if rand.Intn(30) == 0 {
					_ = svcs.Cases.Recuse(ctx, account, a.id, "stress recusal, conflict surfaced mid-investigation")
					continue
				}
				settleAndRule(ctx, pool, svcs, account, a.id)
			}
		}

		if !sleep(ctx, time.Duration(50+rand.Intn(100))*time.Millisecond) {
			return nil
		}
	}
}

func settleAndRule(ctx context.Context, pool *pgxpool.Pool, svcs Services, account string, caseID int64) {
	rows, err := pool.Query(ctx, `
        SELECT claim_id FROM claims
        WHERE case_id = $1 AND status IN ('filed','responded')
    `, caseID)
	if err != nil {
		return
	}
	var open []int64
	for rows.Next() {
		var id int64
		if rows.Scan(&id) == nil {
			open = append(open, id)
		}
	}
	rows.Close()

	for _, claimID := range open {
		_ = svcs.Cases.SettleClaim(ctx, account, caseID, claimID, rand.Intn(2) == 0, randomLink())
	}
	_ = svcs.Cases.SetRuling(ctx, account, caseID, randomLink())
}

// Admin reviews decided cases and closes enforced ones.
func Admin(ctx context.Context, pool *pgxpool.Pool, svcs Services, account string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var decidedID int64
		if pool.QueryRow(ctx, `
            SELECT id FROM casefiles WHERE status = 'decision' ORDER BY random() LIMIT 1
        `).Scan(&decidedID) == nil {
			_ = svcs.Cases.ValidateCase(ctx, account, decidedID, rand.Intn(4) != 0)
		}

		var enforcedID int64
		if pool.QueryRow(ctx, `
            SELECT id FROM casefiles WHERE status = 'enforcement' ORDER BY random() LIMIT 1
        `).Scan(&enforcedID) == nil {
			_ = svcs.Cases.CloseCase(ctx, account, enforcedID)
		}

		if rand.Intn(20) == 0 {
			var stuckID int64
			if pool.QueryRow(ctx, `
                SELECT id FROM casefiles WHERE status = 'case_investigation' ORDER BY random() LIMIT 1
            `).Scan(&stuckID) == nil {
				_ = svcs.Cases.ForceRecusal(ctx, account, stuckID, "stress forced recusal")
			}
		}

		if !sleep(ctx, time.Duration(100+rand.Intn(100))*time.Millisecond) {
			return nil
		}
	}
}
