// Package postgres persists arbitration state in PostgreSQL. Every unit of
// work holds one transaction-scoped advisory lock, so units run one at a
// time across all service replicas.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"disputeflow/appeal"
	"disputeflow/arbitration"
	"disputeflow/dispute"
	"disputeflow/money"
	"disputeflow/principal"
)

// StoreLockKey is the advisory lock every store transaction holds.
const StoreLockKey int64 = 0x61726269 // "arbi"

const migrationLockKey int64 = 0x6d696772 // "migr"

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements arbitration.Store.
type Store struct {
	pool     TxBeginner
	disputes *dispute.Repository
	appeals  *appeal.Repository
}

// NewStore returns a store on pool.
func NewStore(pool TxBeginner) *Store {
	return &Store{
		pool:     pool,
		disputes: dispute.NewRepository(),
		appeals:  appeal.NewRepository(),
	}
}

// WithTx implements arbitration.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx arbitration.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, StoreLockKey); err != nil {
		return fmt.Errorf("postgres: acquire lock: %w", err)
	}

	if err := fn(&storeTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

type storeTx struct {
	tx    pgx.Tx
	store *Store
}

func (t *storeTx) Settings(ctx context.Context) (arbitration.Settings, error) {
	const selectSQL = `
		SELECT admin, pending_admin, denomination, filing_fee::text, appeal_fee::text,
		       dispute_counter, appeal_counter
		FROM arbitration_settings
		WHERE id = 1
	`

	var (
		s            arbitration.Settings
		admin        string
		pendingAdmin *string
		filingFee    string
		appealFee    string
		disputes     int64
		appeals      int64
	)
	err := t.tx.QueryRow(ctx, selectSQL).Scan(&admin, &pendingAdmin, &s.Denomination, &filingFee, &appealFee, &disputes, &appeals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return arbitration.Settings{}, arbitration.ErrNotInitialized
		}
		return arbitration.Settings{}, fmt.Errorf("postgres: load settings: %w", err)
	}

	s.Admin = principal.Principal(admin)
	if pendingAdmin != nil {
		p := principal.Principal(*pendingAdmin)
		s.PendingAdmin = &p
	}
	if s.FilingFee, err = money.Parse(filingFee); err != nil {
		return arbitration.Settings{}, fmt.Errorf("postgres: filing fee: %w", err)
	}
	if s.AppealFee, err = money.Parse(appealFee); err != nil {
		return arbitration.Settings{}, fmt.Errorf("postgres: appeal fee: %w", err)
	}
	s.DisputeCounter = uint64(disputes)
	s.AppealCounter = uint64(appeals)
	return s, nil
}

func (t *storeTx) SaveSettings(ctx context.Context, s arbitration.Settings) error {
	const upsertSQL = `
		INSERT INTO arbitration_settings (id, admin, pending_admin, denomination, filing_fee, appeal_fee, dispute_counter, appeal_counter)
		VALUES (1, $1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			pending_admin = EXCLUDED.pending_admin,
			denomination = EXCLUDED.denomination,
			filing_fee = EXCLUDED.filing_fee,
			appeal_fee = EXCLUDED.appeal_fee,
			dispute_counter = EXCLUDED.dispute_counter,
			appeal_counter = EXCLUDED.appeal_counter,
			updated_at = now()
	`

	var pending *string
	if s.PendingAdmin != nil {
		p := s.PendingAdmin.String()
		pending = &p
	}
	_, err := t.tx.Exec(ctx, upsertSQL,
		s.Admin.String(),
		pending,
		s.Denomination,
		s.FilingFee.String(),
		s.AppealFee.String(),
		int64(s.DisputeCounter),
		int64(s.AppealCounter),
	)
	if err != nil {
		return fmt.Errorf("postgres: save settings: %w", err)
	}
	return nil
}

func (t *storeTx) Dispute(ctx context.Context, id uint64) (arbitration.Dispute, error) {
	return t.store.disputes.Get(ctx, t.tx, id)
}

func (t *storeTx) SaveDispute(ctx context.Context, d arbitration.Dispute) error {
	return t.store.disputes.Save(ctx, t.tx, d)
}

func (t *storeTx) ListDisputes(ctx context.Context, filter arbitration.DisputeFilter) ([]arbitration.Dispute, int, error) {
	return t.store.disputes.List(ctx, t.tx, filter)
}

func (t *storeTx) Appeal(ctx context.Context, id uint64) (arbitration.Appeal, error) {
	return t.store.appeals.Get(ctx, t.tx, id)
}

func (t *storeTx) SaveAppeal(ctx context.Context, a arbitration.Appeal) error {
	return t.store.appeals.Save(ctx, t.tx, a)
}

func (t *storeTx) ListAppeals(ctx context.Context, disputeID uint64) ([]arbitration.Appeal, error) {
	return t.store.appeals.ListByDispute(ctx, t.tx, disputeID)
}

func (t *storeTx) ArbitratorApproved(ctx context.Context, p principal.Principal) (bool, error) {
	var approved bool
	err := t.tx.QueryRow(ctx, `SELECT approved FROM arbitrators WHERE principal = $1`, p.String()).Scan(&approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: load arbitrator: %w", err)
	}
	return approved, nil
}

func (t *storeTx) SetArbitratorApproved(ctx context.Context, p principal.Principal, approved bool) error {
	const upsertSQL = `
		INSERT INTO arbitrators (principal, approved)
		VALUES ($1, $2)
		ON CONFLICT (principal) DO UPDATE SET approved = EXCLUDED.approved, updated_at = now()
	`
	if _, err := t.tx.Exec(ctx, upsertSQL, p.String(), approved); err != nil {
		return fmt.Errorf("postgres: save arbitrator: %w", err)
	}
	return nil
}

func (t *storeTx) Balance(ctx context.Context, denomination string, account principal.Principal) (money.Amount, error) {
	var raw string
	err := t.tx.QueryRow(ctx, `SELECT amount::text FROM balances WHERE denomination = $1 AND account = $2`,
		denomination, account.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Zero, nil
		}
		return money.Zero, fmt.Errorf("postgres: load balance: %w", err)
	}
	amt, err := money.Parse(raw)
	if err != nil {
		return money.Zero, fmt.Errorf("postgres: balance: %w", err)
	}
	return amt, nil
}

func (t *storeTx) SetBalance(ctx context.Context, denomination string, account principal.Principal, amount money.Amount) error {
	const upsertSQL = `
		INSERT INTO balances (denomination, account, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (denomination, account) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
	`
	if _, err := t.tx.Exec(ctx, upsertSQL, denomination, account.String(), amount.String()); err != nil {
		return fmt.Errorf("postgres: save balance: %w", err)
	}
	return nil
}

func (t *storeTx) Enqueue(ctx context.Context, n arbitration.Notification) error {
	const insertSQL = `
		INSERT INTO outbox (id, topic, partition_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := t.tx.Exec(ctx, insertSQL, n.ID, n.Topic, n.PartitionKey, n.Payload, n.CreatedAt); err != nil {
		return fmt.Errorf("postgres: insert outbox message: %w", err)
	}
	return nil
}
