// Package outbox implements the transactional outbox: domain services append
// messages inside the same transaction as their state change, and the relay
// drains pending rows to the AMQP broker afterwards. Collaborator commands
// (transfer requests, ballot operations, authority updates) and case events
// all travel through here.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Topics published by the core.
const (
	TopicTransferRequest  = "escrow.transfer_request"
	TopicCaseEvent        = "case.event"
	TopicRulingForReview  = "case.ruling_for_review"
	TopicBallotCommand    = "ballot.command"
	TopicAuthorityUpdate  = "authority.update"
	TopicElectionResolved = "election.resolved"
)

// Message mirrors an outbox row.
type Message struct {
	ID          uuid.UUID
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int
	CreatedAt   time.Time
	LastAttempt *time.Time
}

// Enqueue appends a message inside the caller's transaction.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (id, topic, payload) VALUES ($1, $2, $3::jsonb)`
	if _, err := tx.Exec(ctx, q, uuid.New(), topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}
