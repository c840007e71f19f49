package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"disputeflow/arbitration"
)

func TestWithTx_CommitsAfterLock(t *testing.T) {
	pool := &fakePool{}
	store := NewStore(pool)

	called := false
	err := store.WithTx(context.Background(), func(tx arbitration.Tx) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !called {
		t.Fatal("expected unit of work to run")
	}
	if len(pool.tx.execs) != 1 || !strings.Contains(pool.tx.execs[0], "pg_advisory_xact_lock") {
		t.Fatalf("expected advisory lock before the unit of work, got %v", pool.tx.execs)
	}
	if !pool.tx.committed {
		t.Error("expected commit to be called")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	pool := &fakePool{}
	store := NewStore(pool)

	err := store.WithTx(context.Background(), func(tx arbitration.Tx) error {
		return arbitration.ErrDisputeNotFound
	})
	if !errors.Is(err, arbitration.ErrDisputeNotFound) {
		t.Fatalf("expected domain error to pass through, got %v", err)
	}
	if pool.tx.committed {
		t.Error("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Error("expected rollback to be called")
	}
}

func TestWithTx_LockFailureSkipsWork(t *testing.T) {
	pool := &fakePool{execErr: errors.New("conn reset")}
	store := NewStore(pool)

	called := false
	err := store.WithTx(context.Background(), func(tx arbitration.Tx) error {
		called = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "acquire lock") {
		t.Fatalf("expected lock error, got %v", err)
	}
	if called {
		t.Error("expected unit of work to be skipped")
	}
}

func TestWithTx_BeginFailure(t *testing.T) {
	store := NewStore(&fakePool{beginErr: errors.New("pool closed")})
	err := store.WithTx(context.Background(), func(tx arbitration.Tx) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/0001_arbitration.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"arbitration_settings", "disputes", "appeals", "arbitrators", "balances", "outbox", "principal_credentials"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected migration to create %s", table)
		}
	}
}

type fakePool struct {
	tx       *fakeTx
	beginErr error
	execErr  error
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.tx = &fakeTx{execErr: f.execErr}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
	execs     []string
	execErr   error
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
