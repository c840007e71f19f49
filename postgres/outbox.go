package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"disputeflow/arbitration"
)

// Querier is the subset of pgxpool.Pool used outside store transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutboxRepository delivers committed notifications in commit order.
type OutboxRepository struct {
	db Querier
}

// NewOutboxRepository returns the outbox table mapping.
func NewOutboxRepository(db Querier) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]arbitration.Notification, error) {
	const selectSQL = `
		SELECT id::text, topic, partition_key, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, selectSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch outbox: %w", err)
	}
	defer rows.Close()

	out := make([]arbitration.Notification, 0, limit)
	for rows.Next() {
		var n arbitration.Notification
		if err := rows.Scan(&n.ID, &n.Topic, &n.PartitionKey, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate outbox: %w", err)
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox
		SET published_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: outbox entry %s not found", id)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("postgres: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: outbox entry %s not found", id)
	}
	return nil
}

// Pending returns the number of notifications awaiting delivery.
func (r *OutboxRepository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count outbox: %w", err)
	}
	return n, nil
}
