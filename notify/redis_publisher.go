package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"disputeflow/arbitration"
)

// ConnectRedis initializes a Redis client from a redis:// URL or host:port.
func ConnectRedis(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("notify: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher appends notifications to a capped Redis stream.
type RedisStreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisStreamPublisher appends notifications to stream.
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return newRedisStreamPublisher(client, stream)
}

func newRedisStreamPublisher(client streamAdder, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = "arbitration:notifications"
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: 100000}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, n arbitration.Notification) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"outbox_id":     n.ID,
			"topic":         n.Topic,
			"partition_key": n.PartitionKey,
			"payload":       string(n.Payload),
			"created_at":    n.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("notify: redis xadd %s: %w", p.stream, err)
	}
	return nil
}
