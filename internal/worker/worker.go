package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/webhookhub/webhookhub/internal/delivery"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
	"github.com/webhookhub/webhookhub/internal/observability"
	"github.com/webhookhub/webhookhub/internal/telemetry"
	"github.com/webhookhub/webhookhub/internal/wire"
)

// RetryPublisher parks the next attempt on the broker's retry queue.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, job wire.DeliveryJob, delay time.Duration) error
}

// Worker processes one delivery job per broker message. The only ordering
// that matters is local to each message: HTTP response, then durable status
// write, then acknowledgement — acking first would lose the outcome on a
// crash between the two.
type Worker struct {
	deliveries relay.DeliveryStore
	dispatcher delivery.Dispatcher
	retries    RetryPublisher
	metrics    *telemetry.RelayMetrics
	clock      func() time.Time
}

// New wires a Worker.
func New(deliveries relay.DeliveryStore, dispatcher delivery.Dispatcher, retries RetryPublisher, metrics *telemetry.RelayMetrics) *Worker {
	return &Worker{
		deliveries: deliveries,
		dispatcher: dispatcher,
		retries:    retries,
		metrics:    metrics,
		clock:      time.Now,
	}
}

// WithClock overrides the timestamp source, for testing.
func (w *Worker) WithClock(clock func() time.Time) *Worker {
	if clock != nil {
		w.clock = clock
	}
	return w
}

// HandleMessage runs the per-message algorithm. It never returns an error:
// every outcome ends in exactly one ack or nack on msg.
func (w *Worker) HandleMessage(ctx context.Context, msg amqp.Delivery) {
	job, err := wire.DecodeJob(msg.Body)
	if err != nil {
		// Poison: undecodable payloads go straight to the DLQ.
		observability.Log().Error("job decode failed", observability.Err(err))
		w.reject(msg)
		return
	}
	deliveryID, err := uuid.Parse(job.DeliveryID)
	if err != nil {
		observability.Log().Error("job carries malformed delivery id",
			observability.String("delivery_id", job.DeliveryID), observability.Err(err))
		w.reject(msg)
		return
	}

	start := w.clock()
	result := w.dispatcher.Post(ctx, job.TargetURL, []byte(job.PayloadJSON))
	w.metrics.RecordAttemptDuration(ctx, w.clock().Sub(start))

	switch r := result.(type) {
	case delivery.Success:
		w.handleSuccess(ctx, msg, job, deliveryID)
	case delivery.Failure:
		w.handleFailure(ctx, msg, job, deliveryID, r)
	default:
		// The result variant is closed; reaching this is a programming error.
		observability.Log().Error("unknown dispatch result",
			observability.String("delivery_id", job.DeliveryID))
		w.reject(msg)
	}
}

func (w *Worker) handleSuccess(ctx context.Context, msg amqp.Delivery, job wire.DeliveryJob, deliveryID uuid.UUID) {
	// deliveredAt is captured after the 2xx arrived, not when the row commits.
	deliveredAt := w.clock().UTC()
	if err := w.deliveries.MarkDelivered(ctx, deliveryID, int32(job.Attempt), deliveredAt); err != nil {
		observability.Log().Error("delivered status write failed",
			observability.String("delivery_id", job.DeliveryID), observability.Err(err))
		w.reject(msg)
		return
	}
	w.metrics.RecordOutcome(ctx, "delivered", job.Attempt)
	observability.Log().Info("delivered",
		observability.String("delivery_id", job.DeliveryID),
		observability.String("event_id", job.EventID),
		observability.Int("attempt", job.Attempt),
	)
	w.ack(msg)
}

func (w *Worker) handleFailure(ctx context.Context, msg amqp.Delivery, job wire.DeliveryJob, deliveryID uuid.UUID, failure delivery.Failure) {
	exceeded := job.Attempt >= relay.MaxDeliveryAttempts
	nextStatus := relay.StatusRetrying
	if exceeded || !failure.Retryable {
		nextStatus = relay.StatusDead
	}

	if err := w.deliveries.MarkFailed(ctx, deliveryID, nextStatus, int32(job.Attempt), failure.Message, w.clock().UTC()); err != nil {
		observability.Log().Error("failure status write failed",
			observability.String("delivery_id", job.DeliveryID),
			observability.String("status", string(nextStatus)),
			observability.Err(err))
		w.reject(msg)
		return
	}

	if nextStatus == relay.StatusRetrying {
		delay := RetryDelay(job.Attempt)
		if err := w.retries.PublishRetry(ctx, job.Next(), delay); err != nil {
			observability.Log().Error("retry publish failed",
				observability.String("delivery_id", job.DeliveryID), observability.Err(err))
			w.reject(msg)
			return
		}
		w.metrics.RecordRetryScheduled(ctx, delay)
		w.metrics.RecordOutcome(ctx, "retrying", job.Attempt)
		observability.Log().Info("retry scheduled",
			observability.String("delivery_id", job.DeliveryID),
			observability.Int("attempt", job.Attempt),
			observability.String("delay", delay.String()),
		)
		w.ack(msg)
		return
	}

	// DEAD: the row is the record of the terminal state; the DLQ is not used
	// on this path.
	w.metrics.RecordOutcome(ctx, "dead", job.Attempt)
	observability.Log().Info("delivery dead",
		observability.String("delivery_id", job.DeliveryID),
		observability.Int("attempt", job.Attempt),
		observability.String("last_error", failure.Message),
	)
	w.ack(msg)
}

func (w *Worker) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		observability.Log().Error("ack failed", observability.Err(err))
	}
}

func (w *Worker) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		observability.Log().Error("nack failed", observability.Err(err))
	}
}
