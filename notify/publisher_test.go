package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeflow/arbitration"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topicPrefix: "arbitration."}
	n := arbitration.AppealFiledNotification(2, 9, "bob", time.Now())

	require.NoError(t, p.Publish(context.Background(), n))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "arbitration.appeal_filed", w.msgs[0].Topic)
	assert.Equal(t, []byte("9"), w.msgs[0].Key)
	assert.Equal(t, n.Payload, w.msgs[0].Value)
	assert.Equal(t, n.ID, string(w.msgs[0].Headers[0].Value))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, p.Publish(context.Background(), n), "leader not available")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "")
	assert.Error(t, err)
}

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisStreamPublisher(t *testing.T) {
	fs := &fakeStream{}
	p := newRedisStreamPublisher(fs, "")
	n := arbitration.DisputeFiledNotification(1, "alice", time.Now())

	require.NoError(t, p.Publish(context.Background(), n))
	require.Len(t, fs.args, 1)
	assert.Equal(t, "arbitration:notifications", fs.args[0].Stream)
	values, ok := fs.args[0].Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "filed", values["topic"])
	assert.Equal(t, string(n.Payload), values["payload"])

	fs.err = errors.New("READONLY")
	assert.ErrorContains(t, p.Publish(context.Background(), n), "READONLY")
}

func TestConnectRedis(t *testing.T) {
	c, err := ConnectRedis(context.Background(), "redis://localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	require.NoError(t, c.Close())

	c, err = ConnectRedis(context.Background(), "cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Options().Addr)
	require.NoError(t, c.Close())

	_, err = ConnectRedis(context.Background(), "redis://%zz")
	assert.Error(t, err)
}
