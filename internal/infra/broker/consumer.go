package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sourcegraph/conc"

	"github.com/webhookhub/webhookhub/internal/observability"
)

// Handler processes one broker delivery. The handler owns the ack/nack
// decision; the consumer never acknowledges on its behalf.
type Handler func(ctx context.Context, msg amqp.Delivery)

// Consumer subscribes to the main delivery queue with manual acknowledgement
// and a bounded prefetch window.
type Consumer struct {
	ch       *amqp.Channel
	prefetch int
	tag      string
}

// NewConsumer constructs a Consumer over an open channel. The prefetch bound
// is sized to the worker's DB pool so every in-flight message can acquire a
// connection.
func NewConsumer(ch *amqp.Channel, prefetch int, tag string) *Consumer {
	return &Consumer{ch: ch, prefetch: prefetch, tag: tag}
}

// Run consumes until the context is cancelled or the channel closes. Each
// message is handled on its own goroutine; Run returns only after every
// in-flight handler has finished.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if c.ch == nil {
		return fmt.Errorf("broker consumer: nil channel")
	}
	if handler == nil {
		return fmt.Errorf("broker consumer: nil handler")
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("broker consumer: set prefetch: %w", err)
	}

	messages, err := c.ch.Consume(QueueDeliveries, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker consumer: subscribe %s: %w", QueueDeliveries, err)
	}

	var inflight conc.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(c.tag, false); err != nil {
				observability.Log().Error("consumer cancel failed", observability.Err(err))
			}
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("broker consumer: channel closed")
			}
			inflight.Go(func() {
				handler(ctx, msg)
			})
		}
	}
}
