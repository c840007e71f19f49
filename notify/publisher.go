package notify

import (
	"context"
	"errors"
	"log/slog"

	"disputeflow/arbitration"
)

type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher writes each notification to logger.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, n arbitration.Notification) error {
	p.logger.InfoContext(ctx, "published notification",
		"topic", n.Topic,
		"outbox_id", n.ID,
		"partition_key", n.PartitionKey,
		"payload", string(n.Payload),
	)
	return nil
}

// FanoutPublisher publishes to every sink in order and fails if any sink
// fails. A retried notification may reach the earlier sinks twice.
type FanoutPublisher []Publisher

func (f FanoutPublisher) Publish(ctx context.Context, n arbitration.Notification) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
