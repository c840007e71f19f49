package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	stressImage    = "postgres:16-alpine"
	stressRole     = "disputeflow"
	stressPassword = "disputeflow"
)

// Database is where a stress run keeps its state. Owned databases are
// dropped with the run; shared ones only lose the per-run schema.
type Database struct {
	DSN       string
	owned     bool
	terminate func(context.Context) error
}

// Shared reports whether the database outlives this run.
func (d *Database) Shared() bool {
	return d == nil || !d.owned
}

// Terminate releases whatever the run started.
func (d *Database) Terminate(ctx context.Context) error {
	if d == nil || d.terminate == nil {
		return nil
	}
	return d.terminate(ctx)
}

// OpenDatabase resolves the run database in order: overrideDSN,
// STRESS_TEST_PG_DSN, a Postgres 16 container, then a local server.
func OpenDatabase(ctx context.Context, overrideDSN string) (*Database, error) {
	if overrideDSN != "" {
		return &Database{DSN: overrideDSN}, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &Database{DSN: dsn}, nil
	}
	if DockerAvailable(ctx) {
		return startContainer(ctx)
	}
	return recreateLocal(ctx)
}

func startContainer(ctx context.Context) (*Database, error) {
	c, err := postgres.Run(ctx, stressImage,
		postgres.WithDatabase(stressRole),
		postgres.WithUsername(stressRole),
		postgres.WithPassword(stressPassword),
	)
	if err != nil {
		return nil, err
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, err
	}
	return &Database{
		DSN:   dsn,
		owned: true,
		terminate: func(ctx context.Context) error {
			return c.Terminate(ctx)
		},
	}, nil
}
