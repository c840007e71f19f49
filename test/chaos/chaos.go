package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	pgstore "disputeflow/postgres"
)

// TerminateRandomBackend kills a random backend of the current database now
// and then. In-flight store transactions on it roll back as a whole.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// StallStore holds the store lock for a random interval, queueing every
// arbitration operation behind it.
func StallStore(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			tx, err := pool.Begin(ctx)
			if err != nil {
				continue
			}
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, pgstore.StoreLockKey); err == nil {
				time.Sleep(time.Duration(50+rand.Intn(250)) * time.Millisecond)
			}
			_ = tx.Rollback(ctx)
		}
	}
}
