package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked between actor ticks. Each query selects
// violations: an empty result set means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			// reserved_funds must equal the escrowed fees and costs of
			// every case that has not been finalized.
			Name: "O1_fund_conservation",
			SQL: `SELECT c.reserved_funds, COALESCE(s.held, 0) AS held
                  FROM config c
                  LEFT JOIN (
                      SELECT sum(fee_paid + arbitrator_cost) AS held
                      FROM casefiles
                      WHERE status IN ('awaiting_arbs','arbs_assigned','case_investigation','decision')
                  ) s ON true
                  WHERE c.reserved_funds != COALESCE(s.held, 0)`,
		},
		{
			Name: "O2_positive_balances",
			SQL:  `SELECT account, amount FROM balances WHERE amount <= 0`,
		},
		{
			Name: "O3_one_pending_offer",
			SQL: `SELECT case_id, arbitrator, count(*) FROM offers
                  WHERE status = 'pending'
                  GROUP BY case_id, arbitrator HAVING count(*) > 1`,
		},
		{
			Name: "O4_one_accepted_offer",
			SQL: `SELECT case_id, count(*) FROM offers
                  WHERE status = 'accepted'
                  GROUP BY case_id HAVING count(*) > 1`,
		},
		{
			Name: "O5_event_seq_gapless",
			SQL: `WITH seqs AS (
                      SELECT case_id, seq,
                             LAG(seq) OVER (PARTITION BY case_id ORDER BY seq) AS prev
                      FROM case_events)
                  SELECT * FROM seqs
                  WHERE (prev IS NULL AND seq != 1) OR (prev IS NOT NULL AND seq != prev + 1)`,
		},
		{
			// Any case past arbitrator selection must carry its arbitrator.
			Name: "O6_assigned_has_arbitrator",
			SQL: `SELECT id, status FROM casefiles
                  WHERE status IN ('arbs_assigned','case_investigation','decision','enforcement','resolved')
                    AND arbitrator IS NULL`,
		},
		{
			Name: "O7_claim_counter_accurate",
			SQL: `SELECT cf.id, cf.number_claims, COALESCE(cl.n, 0)
                  FROM casefiles cf
                  LEFT JOIN (SELECT case_id, count(*) AS n FROM claims GROUP BY case_id) cl
                    ON cl.case_id = cf.id
                  WHERE cf.number_claims != COALESCE(cl.n, 0)`,
		},
		{
			// A decided case can only have settled claims.
			Name: "O8_ruling_settles_claims",
			SQL: `SELECT cl.case_id, cl.claim_id, cl.status FROM claims cl
                  JOIN casefiles cf ON cf.id = cl.case_id
                  WHERE cf.status IN ('decision','enforcement','resolved')
                    AND cl.status NOT IN ('accepted','dismissed')`,
		},
		{
			Name: "O9_outbox_not_stuck",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
