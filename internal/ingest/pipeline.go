// Package ingest implements the inbound half of the relay: signature
// verification, idempotent event capture, destination fan-out, and job
// publication, plus the HTTP surfaces in front of them.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
	"github.com/webhookhub/webhookhub/internal/observability"
	"github.com/webhookhub/webhookhub/internal/signature"
	"github.com/webhookhub/webhookhub/internal/telemetry"
	"github.com/webhookhub/webhookhub/internal/wire"
)

// JobPublisher is the broker surface the pipeline needs.
type JobPublisher interface {
	PublishJob(ctx context.Context, job wire.DeliveryJob) error
}

// Request carries one inbound webhook through the pipeline.
type Request struct {
	SourceName     string
	EventType      string
	Body           []byte
	Signature      string
	IdempotencyKey string
	CorrelationID  string
}

// Outcome summarises an accepted ingest: either a fresh capture with its
// fan-out width, or a harmless duplicate.
type Outcome struct {
	EventID    uuid.UUID
	Duplicate  bool
	Deliveries int
}

// Pipeline binds verification, capture, and publication into the ingest
// operation. The database commit inside the capture store happens before any
// job is published.
type Pipeline struct {
	sources   relay.SourceStore
	capture   relay.CaptureStore
	publisher JobPublisher
	metrics   *telemetry.RelayMetrics
	clock     func() time.Time
}

// NewPipeline wires the ingest pipeline.
func NewPipeline(sources relay.SourceStore, capture relay.CaptureStore, publisher JobPublisher, metrics *telemetry.RelayMetrics) *Pipeline {
	return &Pipeline{
		sources:   sources,
		capture:   capture,
		publisher: publisher,
		metrics:   metrics,
		clock:     time.Now,
	}
}

// WithClock overrides the receive-timestamp source, for testing.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Ingest runs the full inbound operation. The returned error maps onto the
// HTTP surface via errs.HTTPStatus; a nil error always means 202.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Outcome, error) {
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return Outcome{}, errs.New("ingest", errs.CodeInvalid, errs.WithMessage("event type required"))
	}

	src, found, err := p.sources.GetByName(ctx, req.SourceName)
	if err != nil {
		return Outcome{}, errs.New("ingest", errs.CodeInternal,
			errs.WithMessage("source lookup failed"), errs.WithCause(err))
	}
	if !found {
		return Outcome{}, errs.New("ingest", errs.CodeNotFound,
			errs.WithMessage("unknown source"), errs.WithField("source", req.SourceName))
	}
	if !src.Active {
		// Same response as a bad signature: an inactive source learns nothing.
		return Outcome{}, errs.New("ingest", errs.CodeUnauthorized, errs.WithMessage("invalid signature"))
	}
	if err := signature.Verify(src.HMACSecret, req.Body, req.Signature); err != nil {
		return Outcome{}, err
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = wire.DeriveIdempotencyKey(src.Name, eventType, req.Body)
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = wire.NewCorrelationID()
	}

	evt := relay.Event{
		ID:             uuid.New(),
		SourceName:     src.Name,
		EventType:      eventType,
		IdempotencyKey: idempotencyKey,
		Payload:        req.Body,
		CorrelationID:  correlationID,
		ReceivedAt:     p.clock().UTC(),
	}

	result, err := p.capture.CaptureEvent(ctx, evt)
	if err != nil {
		return Outcome{}, errs.New("ingest", errs.CodeInternal,
			errs.WithMessage("event capture failed"), errs.WithCause(err))
	}
	if result.Duplicate {
		observability.Log().Info("DUPLICATE",
			observability.String("source", src.Name),
			observability.String("event_type", eventType),
			observability.String("correlation_id", correlationID),
		)
		p.metrics.RecordDuplicate(ctx, src.Name)
		return Outcome{EventID: evt.ID, Duplicate: true, Deliveries: 0}, nil
	}

	// The transaction is committed; from here a publish failure strands
	// PENDING rows rather than losing events. Re-ingesting the same request
	// will hit the idempotency guard and will not republish, so the orphan
	// ids are logged for an operator to replay.
	var orphaned []string
	for _, captured := range result.Deliveries {
		job := wire.DeliveryJob{
			DeliveryID:  captured.Delivery.ID.String(),
			EventID:     evt.ID.String(),
			TargetURL:   captured.TargetURL,
			PayloadJSON: string(req.Body),
			Attempt:     1,
		}
		if err := p.publisher.PublishJob(ctx, job); err != nil {
			observability.Log().Error("job publish failed",
				observability.String("delivery_id", job.DeliveryID),
				observability.String("correlation_id", correlationID),
				observability.Err(err),
			)
			orphaned = append(orphaned, job.DeliveryID)
		}
	}
	if len(orphaned) > 0 {
		return Outcome{}, errs.New("ingest", errs.CodeInternal,
			errs.WithMessage("job publish failed after commit"),
			errs.WithField("orphaned_deliveries", strings.Join(orphaned, ",")))
	}

	observability.Log().Info("event captured",
		observability.String("event_id", evt.ID.String()),
		observability.String("source", src.Name),
		observability.String("event_type", eventType),
		observability.String("correlation_id", correlationID),
		observability.Int("deliveries", len(result.Deliveries)),
	)
	p.metrics.RecordIngested(ctx, src.Name, len(result.Deliveries))
	return Outcome{EventID: evt.ID, Duplicate: false, Deliveries: len(result.Deliveries)}, nil
}
