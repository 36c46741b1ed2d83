// Package broker owns the RabbitMQ topology and the publish/consume surfaces
// WebhookHub builds its retry loop on.
package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker resource names. These are a cross-process contract between the
// ingest publisher and the delivery worker.
const (
	// Exchange is the direct exchange delivery jobs are published to.
	Exchange = "webhookhub"
	// DeadLetterExchange fans poison and expired main-queue messages into the DLQ.
	DeadLetterExchange = "deliveries.dlx"
	// QueueDeliveries is the main work queue consumed by the worker.
	QueueDeliveries = "webhookhub.deliveries"
	// QueueRetry is the consumer-less holding queue; messages expire in place
	// and dead-letter back into the main exchange.
	QueueRetry = "deliveries.retry.q"
	// QueueDead is the terminal dead-letter queue; replay is manual.
	QueueDead = "deliveries.dlq"
	// RoutingKeyDelivery binds the main exchange to the main queue.
	RoutingKeyDelivery = "delivery"
)

// mainQueueTTL bounds how long a job may sit unconsumed before it is treated
// as poison and dead-lettered.
const mainQueueTTL = 30 * time.Minute

// DeclareTopology declares the exchanges, queues, and bindings idempotently.
// Re-declaration with identical arguments is a no-op; divergent arguments
// fail the channel and must surface as a fatal configuration error.
func DeclareTopology(ch *amqp.Channel) error {
	if ch == nil {
		return fmt.Errorf("broker topology: nil channel")
	}

	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker topology: declare exchange %s: %w", Exchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker topology: declare exchange %s: %w", DeadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(QueueDeliveries, true, false, false, false, amqp.Table{
		"x-message-ttl":          mainQueueTTL.Milliseconds(),
		"x-dead-letter-exchange": DeadLetterExchange,
	}); err != nil {
		return fmt.Errorf("broker topology: declare queue %s: %w", QueueDeliveries, err)
	}

	// The retry queue has no consumers: expiry is the scheduler. Expired
	// messages dead-letter back into the main exchange with the delivery
	// routing key, re-entering the main queue after their backoff delay.
	if _, err := ch.QueueDeclare(QueueRetry, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    Exchange,
		"x-dead-letter-routing-key": RoutingKeyDelivery,
	}); err != nil {
		return fmt.Errorf("broker topology: declare queue %s: %w", QueueRetry, err)
	}

	if _, err := ch.QueueDeclare(QueueDead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker topology: declare queue %s: %w", QueueDead, err)
	}

	if err := ch.QueueBind(QueueDeliveries, RoutingKeyDelivery, Exchange, false, nil); err != nil {
		return fmt.Errorf("broker topology: bind %s: %w", QueueDeliveries, err)
	}
	if err := ch.QueueBind(QueueDead, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("broker topology: bind %s: %w", QueueDead, err)
	}

	return nil
}
