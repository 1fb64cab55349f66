package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxEvent is one unpublished row of the order_events table.
type OutboxEvent struct {
	ID          int64
	EventID     uuid.UUID
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}

// OutboxStore claims and settles order events for the relay.
type OutboxStore struct {
	db DBTX
}

// NewOutboxStore creates a new PostgreSQL-backed outbox store.
func NewOutboxStore(db DBTX) *OutboxStore {
	return &OutboxStore{db: db}
}

// RelayResult summarizes one relay pass.
type RelayResult struct {
	Claimed   int
	Published int
	Failed    int
}

const claimEventsSQL = `
SELECT id, event_id, aggregate_id, event_type, payload, attempts, created_at
FROM order_events
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

const markPublishedSQL = `
UPDATE order_events
SET published_at = $2
WHERE id = ANY($1::bigint[])`

const markFailedSQL = `
UPDATE order_events
SET attempts = attempts + 1, last_error = $2
WHERE id = $1`

// Relay claims up to limit unpublished events and hands each to publish in id
// order. Rows stay locked for the pass so concurrent relays never publish the
// same event; events publish rejects stay unpublished for the next pass.
func (s *OutboxStore) Relay(ctx context.Context, limit int, publish func(context.Context, OutboxEvent) error) (RelayResult, error) {
	const op = "outbox.relay"

	var result RelayResult
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		events, err := claimEvents(ctx, tx, limit)
		if err != nil {
			return err
		}
		result.Claimed = len(events)

		published := make([]int64, 0, len(events))
		for _, event := range events {
			if err := publish(ctx, event); err != nil {
				result.Failed++
				if _, err := tx.Exec(ctx, markFailedSQL, event.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			published = append(published, event.ID)
		}

		if len(published) > 0 {
			if _, err := tx.Exec(ctx, markPublishedSQL, published, time.Now().UTC()); err != nil {
				return err
			}
		}
		result.Published = len(published)
		return nil
	})
	if err != nil {
		return RelayResult{}, classify(err, op, "failed to relay order events")
	}
	return result, nil
}

func claimEvents(ctx context.Context, db DBTX, limit int) ([]OutboxEvent, error) {
	rows, err := db.Query(ctx, claimEventsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &e.EventType, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
