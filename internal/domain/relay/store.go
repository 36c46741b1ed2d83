package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceStore persists webhook sources.
type SourceStore interface {
	Create(ctx context.Context, src Source) (Source, error)
	GetByName(ctx context.Context, name string) (Source, bool, error)
	List(ctx context.Context) ([]Source, error)
}

// DestinationStore persists destinations and their routing rules.
type DestinationStore interface {
	Create(ctx context.Context, dst Destination) (Destination, error)
	AppendRule(ctx context.Context, rule DestinationRule) (DestinationRule, error)
	List(ctx context.Context) ([]Destination, error)
}

// EventStore reads captured events.
type EventStore interface {
	Get(ctx context.Context, id uuid.UUID) (Event, bool, error)
}

// CapturedDelivery pairs a freshly created delivery row with the destination
// URL the publisher needs on the job wire.
type CapturedDelivery struct {
	Delivery  Delivery
	TargetURL string
}

// CaptureResult is the outcome of the transactional ingest boundary.
type CaptureResult struct {
	Event      Event
	Duplicate  bool
	Deliveries []CapturedDelivery
}

// CaptureStore runs the single committing boundary of the ingest path:
// insert the event, fan out PENDING deliveries to every matching active
// destination, commit. A unique-key collision on (sourceName, idempotencyKey)
// reports Duplicate without creating any rows.
type CaptureStore interface {
	CaptureEvent(ctx context.Context, evt Event) (CaptureResult, error)
}

// DeliveryFilter narrows delivery listings; zero values match everything.
type DeliveryFilter struct {
	EventID       uuid.UUID
	DestinationID uuid.UUID
	Status        DeliveryStatus
	Limit         int32
}

// DeliveryStore persists delivery state transitions. Both Mark methods commit
// before the caller may acknowledge the broker message.
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id uuid.UUID, attempts int32, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, status DeliveryStatus, attempts int32, lastError string, lastAttemptAt time.Time) error
	List(ctx context.Context, filter DeliveryFilter) ([]Delivery, error)
}
