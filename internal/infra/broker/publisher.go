package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/webhookhub/webhookhub/internal/wire"
)

// channelPublisher is the slice of amqp.Channel the publisher needs; narrowed
// for testability.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher writes delivery jobs to the broker. All messages are persistent:
// the queue schedules work against already-committed rows, and losing a
// scheduled job silently strands a PENDING row.
type Publisher struct {
	ch channelPublisher
}

// NewPublisher constructs a Publisher over an open channel.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

func newPublisherWith(ch channelPublisher) *Publisher {
	return &Publisher{ch: ch}
}

// PublishJob publishes a first-class delivery job to the main exchange.
func (p *Publisher) PublishJob(ctx context.Context, job wire.DeliveryJob) error {
	body, err := wire.EncodeJob(job)
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, Exchange, RoutingKeyDelivery, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.DeliveryID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("broker publish job %s: %w", job.DeliveryID, err)
	}
	return nil
}

// PublishRetry parks the next attempt on the retry queue with a per-message
// expiration equal to the backoff delay. The queue has no consumers; the
// broker dead-letters the expired message back into the main exchange, which
// is the entire scheduling mechanism.
func (p *Publisher) PublishRetry(ctx context.Context, job wire.DeliveryJob, delay time.Duration) error {
	body, err := wire.EncodeJob(job)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return fmt.Errorf("broker publish retry %s: non-positive delay %v", job.DeliveryID, delay)
	}
	if err := p.ch.PublishWithContext(ctx, "", QueueRetry, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.DeliveryID,
		Timestamp:    time.Now().UTC(),
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("broker publish retry %s: %w", job.DeliveryID, err)
	}
	return nil
}
