package notify

import (
	"context"
	"log/slog"
	"time"
)

// OutboxWorker pulls unpublished notifications in enqueue order and
// publishes them. A failed notification stays queued and is retried on the
// next tick; later notifications of the same batch are held back so
// consumers never see them out of order.
type OutboxWorker struct {
	logger    *slog.Logger
	outbox    OutboxRepository
	publisher Publisher
	observer  DeliveryObserver
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewOutboxWorker polls outbox every interval and publishes up to batchSize
// notifications per tick.
func NewOutboxWorker(logger *slog.Logger, outbox OutboxRepository, publisher Publisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxWorker{
		logger:    logger,
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (w *OutboxWorker) WithObserver(obs DeliveryObserver) *OutboxWorker {
	w.observer = obs
	return w
}

// Run executes the publish loop until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "notify.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch and returns how many notifications were
// delivered.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range records {
		err := w.publisher.Publish(ctx, rec)
		if w.observer != nil {
			w.observer.OutboxDelivered(rec.Topic, err)
		}
		now := w.now().UTC()
		if err != nil {
			w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "notify.outbox_worker",
				"layer", "adapter",
				"operation", "publish_notification",
				"outcome", "failure",
				"outbox_id", rec.ID,
				"topic", rec.Topic,
				"payload_bytes", len(rec.Payload),
				"error", err,
			)
			if markErr := w.outbox.MarkFailed(ctx, rec.ID, err.Error(), now); markErr != nil {
				return published, markErr
			}
			break
		}
		if err := w.outbox.MarkPublished(ctx, rec.ID, now); err != nil {
			return published, err
		}
		published++
	}

	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "notify.outbox_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
		)
	}
	return published, nil
}
