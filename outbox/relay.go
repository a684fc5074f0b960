package outbox

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxAttempts = 8

// Relay drains pending outbox rows to the publisher until ctx is cancelled.
// Rows are claimed with SKIP LOCKED so multiple relays can run side by side;
// a row that keeps failing is parked as dead after maxAttempts.
func Relay(ctx context.Context, pool *pgxpool.Pool, pub Publisher, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := drainOnce(ctx, pool, pub); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("level=warn component=outbox_relay msg=\"drain failed\" err=%v", err)
			}
		}
	}
}

func drainOnce(ctx context.Context, pool *pgxpool.Pool, pub Publisher) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        SELECT id, topic, payload, attempts
        FROM outbox
        WHERE status = 'pending'
        ORDER BY created_at
        FOR UPDATE SKIP LOCKED
        LIMIT 25
    `)
	if err != nil {
		return err
	}

	type claimed struct {
		id       string
		topic    string
		payload  []byte
		attempts int
	}
	batch := make([]claimed, 0, 25)
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.id, &c.topic, &c.payload, &c.attempts); err != nil {
			rows.Close()
			return err
		}
		batch = append(batch, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range batch {
		if err := pub.Publish(ctx, c.topic, c.payload); err != nil {
			next := "pending"
			if c.attempts+1 >= maxAttempts {
				next = "dead"
			}
			if _, uerr := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1, status = $2, last_attempt = now() WHERE id = $1`, c.id, next); uerr != nil {
				return uerr
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', attempts = attempts + 1, last_attempt = now() WHERE id = $1`, c.id); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
