// Package notify delivers committed notifications from the outbox to
// external sinks.
package notify

import (
	"context"
	"time"

	"disputeflow/arbitration"
)

// OutboxRepository is the delivery side of the outbox.
type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]arbitration.Notification, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

// Publisher hands one notification to a sink.
type Publisher interface {
	Publish(ctx context.Context, n arbitration.Notification) error
}

// DeliveryObserver is told the result of each publish attempt.
type DeliveryObserver interface {
	OutboxDelivered(topic string, err error)
}
