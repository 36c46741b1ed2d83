package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// EventStore reads captured events.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore backed by the provided pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventGetSQL = `
SELECT id, source_name, event_type, idempotency_key, payload_json, correlation_id, received_at
FROM events
WHERE id = $1;
`

// Get loads one event by id.
func (s *EventStore) Get(ctx context.Context, id uuid.UUID) (relay.Event, bool, error) {
	if s.pool == nil {
		return relay.Event{}, false, fmt.Errorf("event store: nil pool")
	}
	row := s.pool.QueryRow(ctx, eventGetSQL, id)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return relay.Event{}, false, nil
		}
		return relay.Event{}, false, fmt.Errorf("event store: get: %w", err)
	}
	return evt, true, nil
}

func scanEvent(row rowScanner) (relay.Event, error) {
	var evt relay.Event
	if err := row.Scan(
		&evt.ID,
		&evt.SourceName,
		&evt.EventType,
		&evt.IdempotencyKey,
		&evt.Payload,
		&evt.CorrelationID,
		&evt.ReceivedAt,
	); err != nil {
		return relay.Event{}, err
	}
	return evt, nil
}
