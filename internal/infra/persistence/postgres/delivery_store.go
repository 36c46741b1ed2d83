package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// DeliveryStore persists delivery state transitions.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryStore constructs a DeliveryStore backed by the provided pool.
func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

const (
	defaultDeliveryLimit = 128
	maxDeliveryLimit     = 1024
)

const (
	deliveryMarkDeliveredSQL = `
UPDATE deliveries
SET status = 'DELIVERED',
    attempts = $2,
    delivered_at = $3,
    last_attempt_at = $3
WHERE id = $1
  AND (status IN ('PENDING', 'RETRYING') OR status = 'DELIVERED');
`

	deliveryMarkFailedSQL = `
UPDATE deliveries
SET status = $2,
    attempts = $3,
    last_error = $4,
    last_attempt_at = $5
WHERE id = $1
  AND (status IN ('PENDING', 'RETRYING') OR status = $2);
`

	deliveryListSQL = `
SELECT id, event_id, destination_id, status, attempts, max_attempts,
       last_error, last_attempt_at, delivered_at, created_at
FROM deliveries
WHERE ($1::uuid IS NULL OR event_id = $1)
  AND ($2::uuid IS NULL OR destination_id = $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY created_at DESC
LIMIT $4;
`
)

// MarkDelivered records a terminal successful delivery. A broker redelivery
// that re-writes the same terminal value is a no-op success; a write against
// the opposite terminal state is a conflict.
func (s *DeliveryStore) MarkDelivered(ctx context.Context, id uuid.UUID, attempts int32, deliveredAt time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("delivery store: nil pool")
	}
	tag, err := s.pool.Exec(ctx, deliveryMarkDeliveredSQL, id, attempts, deliveredAt)
	if err != nil {
		return fmt.Errorf("delivery store: mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New("delivery store", errs.CodeConflict,
			errs.WithMessage("delivery missing or in conflicting terminal state"),
			errs.WithField("delivery_id", id.String()))
	}
	return nil
}

// MarkFailed records a failed attempt, transitioning to RETRYING or DEAD.
func (s *DeliveryStore) MarkFailed(ctx context.Context, id uuid.UUID, status relay.DeliveryStatus, attempts int32, lastError string, lastAttemptAt time.Time) error {
	if status != relay.StatusRetrying && status != relay.StatusDead {
		return errs.New("delivery store", errs.CodeInvalid,
			errs.WithMessage("failure status must be RETRYING or DEAD"),
			errs.WithField("status", string(status)))
	}
	if s.pool == nil {
		return fmt.Errorf("delivery store: nil pool")
	}
	tag, err := s.pool.Exec(ctx, deliveryMarkFailedSQL, id, status, attempts, lastError, lastAttemptAt)
	if err != nil {
		return fmt.Errorf("delivery store: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New("delivery store", errs.CodeConflict,
			errs.WithMessage("delivery missing or in conflicting terminal state"),
			errs.WithField("delivery_id", id.String()))
	}
	return nil
}

// List returns deliveries matching the filter, newest first.
func (s *DeliveryStore) List(ctx context.Context, filter relay.DeliveryFilter) ([]relay.Delivery, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("delivery store: nil pool")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeliveryLimit
	} else if limit > maxDeliveryLimit {
		limit = maxDeliveryLimit
	}

	var eventID, destinationID *uuid.UUID
	if filter.EventID != uuid.Nil {
		eventID = &filter.EventID
	}
	if filter.DestinationID != uuid.Nil {
		destinationID = &filter.DestinationID
	}
	var status *string
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, errs.New("delivery store", errs.CodeInvalid,
				errs.WithMessage("unknown delivery status"), errs.WithField("status", string(filter.Status)))
		}
		v := string(filter.Status)
		status = &v
	}

	rows, err := s.pool.Query(ctx, deliveryListSQL, eventID, destinationID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("delivery store: list: %w", err)
	}
	defer rows.Close()

	var deliveries []relay.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("delivery store: scan: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery store: iterate: %w", err)
	}
	return deliveries, nil
}

func scanDelivery(row rowScanner) (relay.Delivery, error) {
	var (
		d             relay.Delivery
		lastError     pgtype.Text
		lastAttemptAt pgtype.Timestamptz
		deliveredAt   pgtype.Timestamptz
	)
	if err := row.Scan(
		&d.ID,
		&d.EventID,
		&d.DestinationID,
		&d.Status,
		&d.Attempts,
		&d.MaxAttempts,
		&lastError,
		&lastAttemptAt,
		&deliveredAt,
		&d.CreatedAt,
	); err != nil {
		return relay.Delivery{}, err
	}
	d.LastError = textPtr(lastError)
	d.LastAttemptAt = timePtr(lastAttemptAt)
	d.DeliveredAt = timePtr(deliveredAt)
	return d, nil
}
