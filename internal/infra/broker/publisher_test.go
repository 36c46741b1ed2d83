package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/webhookhub/webhookhub/internal/wire"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func testJob() wire.DeliveryJob {
	return wire.DeliveryJob{
		DeliveryID:  "d-1",
		EventID:     "e-1",
		TargetURL:   "https://example.com/hook",
		PayloadJSON: `{"ref":"main"}`,
		Attempt:     1,
	}
}

func TestPublishJobRoutesThroughMainExchange(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisherWith(ch)

	require.NoError(t, pub.PublishJob(context.Background(), testJob()))
	require.Len(t, ch.calls, 1)

	call := ch.calls[0]
	require.Equal(t, Exchange, call.exchange)
	require.Equal(t, RoutingKeyDelivery, call.key)
	require.Equal(t, uint8(amqp.Persistent), call.msg.DeliveryMode)
	require.Equal(t, "application/json", call.msg.ContentType)
	require.Empty(t, call.msg.Expiration)

	decoded, err := wire.DecodeJob(call.msg.Body)
	require.NoError(t, err)
	require.Equal(t, testJob(), decoded)
}

func TestPublishRetryTargetsHoldingQueueWithExpiration(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisherWith(ch)

	job := testJob().Next()
	require.NoError(t, pub.PublishRetry(context.Background(), job, 30*time.Second))
	require.Len(t, ch.calls, 1)

	call := ch.calls[0]
	require.Equal(t, "", call.exchange, "retry publishes go through the default exchange")
	require.Equal(t, QueueRetry, call.key)
	require.Equal(t, "30000", call.msg.Expiration)
	require.Equal(t, uint8(amqp.Persistent), call.msg.DeliveryMode)

	decoded, err := wire.DecodeJob(call.msg.Body)
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Attempt)
}

func TestPublishRetryRejectsNonPositiveDelay(t *testing.T) {
	pub := newPublisherWith(&fakeChannel{})
	err := pub.PublishRetry(context.Background(), testJob(), 0)
	require.Error(t, err)
}

func TestPublishRejectsInvalidJob(t *testing.T) {
	ch := &fakeChannel{}
	pub := newPublisherWith(ch)
	err := pub.PublishJob(context.Background(), wire.DeliveryJob{})
	require.Error(t, err)
	require.Empty(t, ch.calls)
}

func TestPublishWrapsTransportError(t *testing.T) {
	pub := newPublisherWith(&fakeChannel{err: errors.New("channel gone")})
	err := pub.PublishJob(context.Background(), testJob())
	require.ErrorContains(t, err, "channel gone")
}
