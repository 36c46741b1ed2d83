package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// CaptureStore runs the committing boundary of the ingest path: event insert,
// destination fan-out, and PENDING delivery creation in one transaction.
type CaptureStore struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// NewCaptureStore constructs a CaptureStore backed by the provided pool.
func NewCaptureStore(pool *pgxpool.Pool) *CaptureStore {
	return &CaptureStore{pool: pool, clock: time.Now}
}

// WithClock overrides the delivery-creation timestamp source, for testing.
func (s *CaptureStore) WithClock(clock func() time.Time) *CaptureStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

const (
	eventInsertSQL = `
INSERT INTO events (id, source_name, event_type, idempotency_key, payload_json, correlation_id, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

	matchingDestinationsSQL = `
SELECT DISTINCT d.id, d.target_url
FROM destinations d
JOIN destination_rules r ON r.destination_id = d.id
WHERE d.active = TRUE
  AND r.source_name = $1
  AND r.event_type = $2
ORDER BY d.id;
`

	deliveryInsertSQL = `
INSERT INTO deliveries (id, event_id, destination_id, status, attempts, max_attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
)

// CaptureEvent persists evt exactly once. The UNIQUE(source_name,
// idempotency_key) constraint is the sole arbiter of dedup under concurrent
// identical requests: a collision rolls back and reports Duplicate without
// touching deliveries. The transaction runs REPEATABLE READ so the fan-out
// select observes a stable destination set alongside the insert.
func (s *CaptureStore) CaptureEvent(ctx context.Context, evt relay.Event) (relay.CaptureResult, error) {
	if s.pool == nil {
		return relay.CaptureResult{}, fmt.Errorf("capture store: nil pool")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return relay.CaptureResult{}, fmt.Errorf("capture store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, eventInsertSQL,
		evt.ID, evt.SourceName, evt.EventType, evt.IdempotencyKey,
		evt.Payload, evt.CorrelationID, evt.ReceivedAt,
	); err != nil {
		if isUniqueViolation(err, "events_dedup_key") {
			return relay.CaptureResult{Event: evt, Duplicate: true, Deliveries: nil}, nil
		}
		return relay.CaptureResult{}, fmt.Errorf("capture store: insert event: %w", err)
	}

	rows, err := tx.Query(ctx, matchingDestinationsSQL, evt.SourceName, evt.EventType)
	if err != nil {
		return relay.CaptureResult{}, fmt.Errorf("capture store: match destinations: %w", err)
	}
	type target struct {
		id  uuid.UUID
		url string
	}
	targets := make([]target, 0, 4)
	for rows.Next() {
		var tgt target
		if err := rows.Scan(&tgt.id, &tgt.url); err != nil {
			rows.Close()
			return relay.CaptureResult{}, fmt.Errorf("capture store: scan destination: %w", err)
		}
		targets = append(targets, tgt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return relay.CaptureResult{}, fmt.Errorf("capture store: iterate destinations: %w", err)
	}

	now := s.clock().UTC()
	deliveries := make([]relay.CapturedDelivery, 0, len(targets))
	for _, tgt := range targets {
		d := relay.Delivery{
			ID:            uuid.New(),
			EventID:       evt.ID,
			DestinationID: tgt.id,
			Status:        relay.StatusPending,
			Attempts:      0,
			MaxAttempts:   relay.MaxDeliveryAttempts,
			LastError:     nil,
			LastAttemptAt: nil,
			DeliveredAt:   nil,
			CreatedAt:     now,
		}
		if _, err := tx.Exec(ctx, deliveryInsertSQL,
			d.ID, d.EventID, d.DestinationID, d.Status, d.Attempts, d.MaxAttempts, d.CreatedAt,
		); err != nil {
			return relay.CaptureResult{}, fmt.Errorf("capture store: insert delivery: %w", err)
		}
		deliveries = append(deliveries, relay.CapturedDelivery{Delivery: d, TargetURL: tgt.url})
	}

	if err := tx.Commit(ctx); err != nil {
		return relay.CaptureResult{}, fmt.Errorf("capture store: commit: %w", err)
	}
	return relay.CaptureResult{Event: evt, Duplicate: false, Deliveries: deliveries}, nil
}
