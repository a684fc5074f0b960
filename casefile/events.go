package casefile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"arbflow/outbox"
)

// Event types recorded on the per-case log.
const (
	EventCaseFiled         = "case_filed"
	EventClaimAdded        = "claim_added"
	EventClaimUpdated      = "claim_updated"
	EventClaimRemoved      = "claim_removed"
	EventCaseShredded      = "case_shredded"
	EventCaseReadied       = "case_readied"
	EventOfferAccepted     = "offer_accepted"
	EventOfferDeclined     = "offer_declined"
	EventCaseCancelled     = "case_cancelled"
	EventCaseStarted       = "case_started"
	EventClaimReviewed     = "claim_reviewed"
	EventClaimResponded    = "claim_responded"
	EventClaimSettled      = "claim_settled"
	EventRulingSet         = "ruling_set"
	EventCaseValidated     = "case_validated"
	EventCaseDismissed     = "case_dismissed"
	EventCaseClosed        = "case_closed"
	EventArbitratorRecused = "arbitrator_recused"
)

// appendEvent writes the next gapless entry of the case's business event log
// and mirrors it onto the outbox for downstream consumers. The unique
// (case_id, seq) key turns two racing appenders into one winner.
func appendEvent(ctx context.Context, tx pgx.Tx, caseID int64, eventType, actor string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("casefile: marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO case_events (case_id, seq, type, actor, payload)
        SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4::jsonb
        FROM case_events WHERE case_id = $1
    `, caseID, eventType, actor, body)
	if err != nil {
		return fmt.Errorf("casefile: append event %s: %w", eventType, err)
	}

	enriched := map[string]any{"case_id": caseID, "type": eventType, "actor": actor}
	for k, v := range payload {
		enriched[k] = v
	}
	return outbox.Enqueue(ctx, tx, outbox.TopicCaseEvent, enriched)
}
