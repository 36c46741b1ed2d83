package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RelayMetrics bundles the relay's metric instruments. A nil receiver is
// inert, so call sites never guard.
type RelayMetrics struct {
	eventsIngested  metric.Int64Counter
	eventsDuplicate metric.Int64Counter
	deliveries      metric.Int64Counter
	retriesSched    metric.Int64Counter
	attemptDuration metric.Float64Histogram
}

// NewRelayMetrics registers the relay instruments on the provided meter.
func NewRelayMetrics(meter metric.Meter) (*RelayMetrics, error) {
	eventsIngested, err := meter.Int64Counter("webhookhub_events_ingested_total",
		metric.WithDescription("Events accepted and persisted at ingest"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	eventsDuplicate, err := meter.Int64Counter("webhookhub_events_duplicate_total",
		metric.WithDescription("Ingest requests deduplicated by idempotency key"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	deliveries, err := meter.Int64Counter("webhookhub_deliveries_total",
		metric.WithDescription("Delivery attempts by terminal or intermediate outcome"),
		metric.WithUnit("{delivery}"))
	if err != nil {
		return nil, err
	}
	retriesSched, err := meter.Int64Counter("webhookhub_retries_scheduled_total",
		metric.WithDescription("Jobs parked on the retry queue"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}
	attemptDuration, err := meter.Float64Histogram("webhookhub_attempt_duration_ms",
		metric.WithDescription("Wall-clock duration of one HTTP delivery attempt"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &RelayMetrics{
		eventsIngested:  eventsIngested,
		eventsDuplicate: eventsDuplicate,
		deliveries:      deliveries,
		retriesSched:    retriesSched,
		attemptDuration: attemptDuration,
	}, nil
}

// RecordIngested counts one persisted event and its fan-out width.
func (m *RelayMetrics) RecordIngested(ctx context.Context, sourceName string, deliveries int) {
	if m == nil {
		return
	}
	m.eventsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", sourceName),
		attribute.Int("deliveries", deliveries),
	))
}

// RecordDuplicate counts one deduplicated ingest request.
func (m *RelayMetrics) RecordDuplicate(ctx context.Context, sourceName string) {
	if m == nil {
		return
	}
	m.eventsDuplicate.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceName)))
}

// RecordOutcome counts one worker decision: delivered, retrying, or dead.
func (m *RelayMetrics) RecordOutcome(ctx context.Context, outcome string, attempt int) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("attempt", attempt),
	))
}

// RecordRetryScheduled counts one job parked for backoff.
func (m *RelayMetrics) RecordRetryScheduled(ctx context.Context, delay time.Duration) {
	if m == nil {
		return
	}
	m.retriesSched.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("delay_ms", delay.Milliseconds()),
	))
}

// RecordAttemptDuration observes one HTTP attempt's wall clock.
func (m *RelayMetrics) RecordAttemptDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.attemptDuration.Record(ctx, float64(d.Microseconds())/1000.0)
}
