package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/webhookhub/webhookhub/internal/observability"
)

const maxDialInterval = 30 * time.Second

// Conn wraps one AMQP connection per process. Channels are cheap; the
// connection is not, so callers share a Conn and open channels per consumer
// or publisher.
type Conn struct {
	mu   sync.Mutex
	conn *amqp.Connection
	url  string
}

// Dial connects to the broker, retrying with exponential backoff until the
// context is cancelled.
func Dial(ctx context.Context, url string) (*Conn, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxDialInterval

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("broker dial: %w", ctx.Err())
		default:
		}

		conn, err := amqp.Dial(url)
		if err == nil {
			return &Conn{mu: sync.Mutex{}, conn: conn, url: url}, nil
		}

		observability.Log().Error("broker dial failed", observability.Err(err))
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxDialInterval
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("broker dial: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
}

// Channel opens a fresh channel on the shared connection.
func (c *Conn) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil, fmt.Errorf("broker channel: connection closed")
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker channel: %w", err)
	}
	return ch, nil
}

// NotifyClose registers for asynchronous connection-loss notification.
func (c *Conn) NotifyClose() <-chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		closed := make(chan *amqp.Error)
		close(closed)
		return closed
	}
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close tears down the connection. Unacked messages held by consumers on this
// connection return to the broker.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("broker close: %w", err)
	}
	return nil
}
