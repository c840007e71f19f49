package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeflow/arbitration"
	"disputeflow/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func enqueue(t *testing.T, store *memstore.Store, ns ...arbitration.Notification) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx arbitration.Tx) error {
		for _, n := range ns {
			if err := tx.Enqueue(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}))
}

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	failOn  string
	failErr error
}

func (p *recordingPublisher) Publish(_ context.Context, n arbitration.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Topic == p.failOn {
		return p.failErr
	}
	p.topics = append(p.topics, n.Topic)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type countingObserver struct {
	ok, failed int
}

func (c *countingObserver) OutboxDelivered(_ string, err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestProcessOncePublishesInOrder(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	enqueue(t, store,
		arbitration.DisputeFiledNotification(1, "alice", now),
		arbitration.DisputeResolvedNotification(1, now),
		arbitration.AppealFiledNotification(1, 1, "bob", now),
	)

	pub := &recordingPublisher{}
	obs := &countingObserver{}
	w := NewOutboxWorker(discardLogger(), store, pub, time.Second, 10).WithObserver(obs)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"filed", "resolved", "appeal_filed"}, pub.published())
	assert.Equal(t, 3, obs.ok)

	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessOnceHoldsBackAfterFailure(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	enqueue(t, store,
		arbitration.DisputeFiledNotification(1, "alice", now),
		arbitration.DisputeResolvedNotification(1, now),
		arbitration.AppealFiledNotification(1, 1, "bob", now),
	)

	pub := &recordingPublisher{failOn: arbitration.TopicDisputeResolved, failErr: errors.New("broker down")}
	obs := &countingObserver{}
	w := NewOutboxWorker(discardLogger(), store, pub, time.Second, 10).WithObserver(obs)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"filed"}, pub.published())
	assert.Equal(t, 1, obs.failed)

	pending, err := store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, arbitration.TopicDisputeResolved, pending[0].Topic)

	pub.failOn = ""
	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"filed", "resolved", "appeal_filed"}, pub.published())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := memstore.New()
	enqueue(t, store, arbitration.DisputeFiledNotification(1, "alice", time.Now()))
	pub := &recordingPublisher{}
	w := NewOutboxWorker(discardLogger(), store, pub, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestFanoutPublisherJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{failOn: "filed", failErr: errors.New("sink down")}
	err := FanoutPublisher{ok, bad}.Publish(context.Background(), arbitration.DisputeFiledNotification(1, "alice", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, []string{"filed"}, ok.published())
}
