package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/webhookhub/webhookhub/internal/delivery"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
	"github.com/webhookhub/webhookhub/internal/wire"
)

// sequenceRecorder captures the order of store writes, retry publishes, and
// broker acknowledgements so tests can assert the happens-before contract.
type sequenceRecorder struct {
	sequence []string
}

type recordingStore struct {
	rec           *sequenceRecorder
	markDelivered []struct {
		id          uuid.UUID
		attempts    int32
		deliveredAt time.Time
	}
	markFailed []struct {
		id            uuid.UUID
		status        relay.DeliveryStatus
		attempts      int32
		lastError     string
		lastAttemptAt time.Time
	}
	err error
}

func (s *recordingStore) MarkDelivered(_ context.Context, id uuid.UUID, attempts int32, deliveredAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.rec.sequence = append(s.rec.sequence, "store:delivered")
	s.markDelivered = append(s.markDelivered, struct {
		id          uuid.UUID
		attempts    int32
		deliveredAt time.Time
	}{id, attempts, deliveredAt})
	return nil
}

func (s *recordingStore) MarkFailed(_ context.Context, id uuid.UUID, status relay.DeliveryStatus, attempts int32, lastError string, lastAttemptAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.rec.sequence = append(s.rec.sequence, "store:failed:"+string(status))
	s.markFailed = append(s.markFailed, struct {
		id            uuid.UUID
		status        relay.DeliveryStatus
		attempts      int32
		lastError     string
		lastAttemptAt time.Time
	}{id, status, attempts, lastError, lastAttemptAt})
	return nil
}

func (s *recordingStore) List(context.Context, relay.DeliveryFilter) ([]relay.Delivery, error) {
	return nil, nil
}

type recordingRetries struct {
	rec    *sequenceRecorder
	jobs   []wire.DeliveryJob
	delays []time.Duration
	err    error
}

func (r *recordingRetries) PublishRetry(_ context.Context, job wire.DeliveryJob, delay time.Duration) error {
	if r.err != nil {
		return r.err
	}
	r.rec.sequence = append(r.rec.sequence, "broker:retry")
	r.jobs = append(r.jobs, job)
	r.delays = append(r.delays, delay)
	return nil
}

type scriptedDispatcher struct {
	results []delivery.Result
	calls   int
	urls    []string
	bodies  [][]byte
}

func (d *scriptedDispatcher) Post(_ context.Context, url string, payload []byte) delivery.Result {
	d.urls = append(d.urls, url)
	d.bodies = append(d.bodies, payload)
	result := d.results[d.calls%len(d.results)]
	d.calls++
	return result
}

type recordingAcknowledger struct {
	rec   *sequenceRecorder
	acks  int
	nacks int
}

func (a *recordingAcknowledger) Ack(_ uint64, _ bool) error {
	a.rec.sequence = append(a.rec.sequence, "broker:ack")
	a.acks++
	return nil
}

func (a *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	label := "broker:nack"
	if requeue {
		label = "broker:nack-requeue"
	}
	a.rec.sequence = append(a.rec.sequence, label)
	a.nacks++
	return nil
}

func (a *recordingAcknowledger) Reject(_ uint64, _ bool) error {
	a.rec.sequence = append(a.rec.sequence, "broker:reject")
	return nil
}

type fixture struct {
	rec     *sequenceRecorder
	store   *recordingStore
	retries *recordingRetries
	ack     *recordingAcknowledger
	worker  *Worker
}

func newFixture(results ...delivery.Result) (*fixture, *scriptedDispatcher) {
	rec := &sequenceRecorder{}
	store := &recordingStore{rec: rec}
	retries := &recordingRetries{rec: rec}
	dispatcher := &scriptedDispatcher{results: results}
	f := &fixture{
		rec:     rec,
		store:   store,
		retries: retries,
		ack:     &recordingAcknowledger{rec: rec},
		worker:  New(store, dispatcher, retries, nil),
	}
	return f, dispatcher
}

func message(f *fixture, job wire.DeliveryJob) amqp.Delivery {
	body, err := wire.EncodeJob(job)
	if err != nil {
		panic(err)
	}
	return amqp.Delivery{Acknowledger: f.ack, DeliveryTag: 1, Body: body}
}

func job(attempt int) wire.DeliveryJob {
	return wire.DeliveryJob{
		DeliveryID:  uuid.NewString(),
		EventID:     uuid.NewString(),
		TargetURL:   "https://example.com/hook",
		PayloadJSON: `{"ref":"main"}`,
		Attempt:     attempt,
	}
}

func TestSuccessWritesBeforeAck(t *testing.T) {
	f, dispatcher := newFixture(delivery.Success{StatusCode: 200})
	j := job(1)

	f.worker.HandleMessage(context.Background(), message(f, j))

	require.Equal(t, []string{"store:delivered", "broker:ack"}, f.rec.sequence)
	require.Equal(t, 1, f.ack.acks)
	require.Len(t, f.store.markDelivered, 1)
	require.EqualValues(t, 1, f.store.markDelivered[0].attempts)
	require.False(t, f.store.markDelivered[0].deliveredAt.IsZero())
	require.Empty(t, f.retries.jobs)
	require.Equal(t, []string{"https://example.com/hook"}, dispatcher.urls)
	require.Equal(t, []byte(`{"ref":"main"}`), dispatcher.bodies[0])
}

func TestRetryableFailureSchedulesBackoff(t *testing.T) {
	f, _ := newFixture(delivery.Failure{Message: "HTTP 500", StatusCode: 500, Retryable: true})
	j := job(1)

	f.worker.HandleMessage(context.Background(), message(f, j))

	require.Equal(t, []string{"store:failed:RETRYING", "broker:retry", "broker:ack"}, f.rec.sequence)
	require.Len(t, f.retries.jobs, 1)
	require.Equal(t, 2, f.retries.jobs[0].Attempt)
	require.Equal(t, 30*time.Second, f.retries.delays[0])
	require.Equal(t, "HTTP 500", f.store.markFailed[0].lastError)
}

func TestTerminalFailureIsDeadWithoutRetry(t *testing.T) {
	f, _ := newFixture(delivery.Failure{Message: "HTTP 400", StatusCode: 400, Retryable: false})
	j := job(1)

	f.worker.HandleMessage(context.Background(), message(f, j))

	require.Equal(t, []string{"store:failed:DEAD", "broker:ack"}, f.rec.sequence)
	require.Empty(t, f.retries.jobs, "terminal failures never reschedule")
	require.Equal(t, relay.StatusDead, f.store.markFailed[0].status)
	require.Contains(t, f.store.markFailed[0].lastError, "HTTP 400")
	require.Equal(t, 1, f.ack.acks, "DEAD messages are acked, not dead-lettered")
}

func TestExhaustedAttemptsGoDead(t *testing.T) {
	f, _ := newFixture(delivery.Failure{Message: "HTTP 503", StatusCode: 503, Retryable: true})
	j := job(relay.MaxDeliveryAttempts)

	f.worker.HandleMessage(context.Background(), message(f, j))

	require.Equal(t, relay.StatusDead, f.store.markFailed[0].status)
	require.EqualValues(t, relay.MaxDeliveryAttempts, f.store.markFailed[0].attempts)
	require.Empty(t, f.retries.jobs)
}

func TestBackoffLadderAcrossAttempts(t *testing.T) {
	// S5: a destination that always 500s walks the full ladder.
	wantDelays := []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute}
	f, _ := newFixture(delivery.Failure{Message: "HTTP 500", StatusCode: 500, Retryable: true})

	j := job(1)
	for attempt := 1; attempt < relay.MaxDeliveryAttempts; attempt++ {
		j.Attempt = attempt
		f.worker.HandleMessage(context.Background(), message(f, j))
	}
	j.Attempt = relay.MaxDeliveryAttempts
	f.worker.HandleMessage(context.Background(), message(f, j))

	require.Equal(t, wantDelays, f.retries.delays)
	last := f.store.markFailed[len(f.store.markFailed)-1]
	require.Equal(t, relay.StatusDead, last.status)
	require.EqualValues(t, 5, last.attempts)
}

func TestPoisonMessageIsRejectedToDLQ(t *testing.T) {
	f, dispatcher := newFixture(delivery.Success{StatusCode: 200})
	msg := amqp.Delivery{Acknowledger: f.ack, DeliveryTag: 1, Body: []byte(`{"deliveryId":`)}

	f.worker.HandleMessage(context.Background(), msg)

	require.Equal(t, []string{"broker:nack"}, f.rec.sequence)
	require.Zero(t, dispatcher.calls, "poison must not be dispatched")
}

func TestMalformedDeliveryIDIsPoison(t *testing.T) {
	f, _ := newFixture(delivery.Success{StatusCode: 200})
	j := job(1)
	j.DeliveryID = "not-a-uuid"
	f.worker.HandleMessage(context.Background(), message(f, j))
	require.Equal(t, []string{"broker:nack"}, f.rec.sequence)
}

func TestStoreFailureNacksWithoutAck(t *testing.T) {
	f, _ := newFixture(delivery.Success{StatusCode: 200})
	f.store.err = errors.New("db down")

	f.worker.HandleMessage(context.Background(), message(f, job(1)))

	require.Equal(t, []string{"broker:nack"}, f.rec.sequence)
	require.Zero(t, f.ack.acks, "an ack must never precede the durable write")
}

func TestRetryPublishFailureNacks(t *testing.T) {
	f, _ := newFixture(delivery.Failure{Message: "HTTP 500", StatusCode: 500, Retryable: true})
	f.retries.err = errors.New("broker gone")

	f.worker.HandleMessage(context.Background(), message(f, job(1)))

	require.Equal(t, []string{"store:failed:RETRYING", "broker:nack"}, f.rec.sequence)
	require.Zero(t, f.ack.acks)
}

func TestTransientThenSuccess(t *testing.T) {
	// S3: first attempt 500s and schedules a retry; the redelivered attempt
	// succeeds and lands DELIVERED with attempts=2.
	f, _ := newFixture(
		delivery.Failure{Message: "HTTP 500", StatusCode: 500, Retryable: true},
		delivery.Success{StatusCode: 200},
	)
	j := job(1)

	f.worker.HandleMessage(context.Background(), message(f, j))
	require.Len(t, f.retries.jobs, 1)

	f.worker.HandleMessage(context.Background(), message(f, f.retries.jobs[0]))

	require.Len(t, f.store.markDelivered, 1)
	require.EqualValues(t, 2, f.store.markDelivered[0].attempts)
	require.Equal(t, 2, f.ack.acks)
}
