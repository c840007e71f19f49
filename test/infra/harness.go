package infra

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/arbitration"
	pgstore "disputeflow/postgres"
)

// Harness owns the database a stress run works against: a Postgres 16
// container, a local PostgreSQL, or a shared DSN isolated in its own schema.
type Harness struct {
	database *Database
	pool     *pgxpool.Pool
	teardown func(context.Context) error
}

// NewHarness picks a database (overrideDSN, STRESS_TEST_PG_DSN, Docker, then
// a local server) and applies the migrations.
func NewHarness(ctx context.Context, overrideDSN string, maxConns int32) (*Harness, error) {
	database, err := OpenDatabase(ctx, overrideDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool, teardown, err := OpenMigrated(ctx, database.DSN, maxConns, database.Shared())
	if err != nil {
		_ = database.Terminate(ctx)
		return nil, err
	}

	return &Harness{
		database: database,
		pool:     pool,
		teardown: teardown,
	}, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Store returns an arbitration store on the harness pool.
func (h *Harness) Store() arbitration.Store {
	return pgstore.NewStore(h.pool)
}

// Outbox returns the outbox repository on the harness pool.
func (h *Harness) Outbox() *pgstore.OutboxRepository {
	return pgstore.NewOutboxRepository(h.pool)
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.database.DSN
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) error {
	if h.pool != nil {
		h.pool.Close()
	}
	var err error
	if h.teardown != nil {
		err = h.teardown(ctx)
	}
	if termErr := h.database.Terminate(ctx); termErr != nil && err == nil {
		err = termErr
	}
	return err
}

// Reset truncates every arbitration table so the next epoch starts
// uninitialized.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"outbox",
		"appeals",
		"disputes",
		"balances",
		"arbitrators",
		"arbitration_settings",
		"principal_credentials",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}

	return nil
}

// DockerAvailable reports whether a Docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
