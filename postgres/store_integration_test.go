package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeflow/admin"
	"disputeflow/appeal"
	"disputeflow/arbitration"
	"disputeflow/arbitrator"
	"disputeflow/asset"
	"disputeflow/auth"
	"disputeflow/dispute"
	"disputeflow/escrow"
	"disputeflow/money"
	"disputeflow/principal"
)

// openIsolated connects to DATABASE_URL with a fresh schema on the search
// path and applies the migrations into it.
func openIsolated(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := pgx.Identifier{fmt.Sprintf("it_%d", time.Now().UnixNano())}.Sanitize()
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO "+schema)
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if c, err := pgx.Connect(ctx, dsn); err == nil {
			_, _ = c.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
			_ = c.Close(ctx)
		}
	})

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again)
	return pool
}

func as(ps ...principal.Principal) context.Context {
	return principal.WithAuth(context.Background(), ps...)
}

func TestArbitrationLifecycle_Integration(t *testing.T) {
	pool := openIsolated(t)
	store := NewStore(pool)
	authz := principal.ContextAuthorizer{}
	ledger := asset.NewLedger(authz)
	esc := escrow.New(ledger, "")
	assets := asset.NewService(store, ledger)
	disputes := dispute.NewService(store, authz, esc)
	appeals := appeal.NewService(store, authz, esc)
	registry := arbitrator.NewRegistry(store, authz)

	_, err := admin.NewService(store, authz).Initialize(as("admin"), admin.InitParams{
		Admin: "admin", Denomination: "USD", FilingFee: money.New(100), AppealFee: money.New(50),
	})
	require.NoError(t, err)
	_, err = admin.NewService(store, authz).Initialize(as("admin"), admin.InitParams{Admin: "admin", Denomination: "USD"})
	require.ErrorIs(t, err, arbitration.ErrAlreadyInitialized)

	_, err = assets.Credit(context.Background(), "x", money.MustParse("170141183460469231731687303715884105000"))
	require.NoError(t, err)
	_, err = assets.Credit(context.Background(), "y", money.New(1000))
	require.NoError(t, err)

	// Scenario A
	d, err := disputes.File(as("x"), dispute.FileParams{
		Claimant: "x", Respondent: "y", CampaignID: 7, ClaimAmount: money.New(1000),
		Description: "desc", EvidencePointer: "QmEvidence",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.ID)
	bal, err := assets.Balance(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "170141183460469231731687303715884104900", bal.String())

	// Scenario B
	_, err = disputes.AssignArbitrator(as("admin"), "admin", 1, "a")
	require.ErrorIs(t, err, arbitration.ErrArbitratorNotAuthorized)

	// Scenario C
	require.NoError(t, registry.Authorize(as("admin"), "admin", "a"))
	require.NoError(t, registry.Authorize(as("admin"), "admin", "a"))
	_, err = disputes.AssignArbitrator(as("admin"), "admin", 1, "a")
	require.NoError(t, err)
	_, err = disputes.Resolve(as("a"), "a", 1, arbitration.OutcomeClaimant, "ok")
	require.NoError(t, err)

	stored, ok, err := disputes.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arbitration.DisputeResolved, stored.Status)
	assert.Equal(t, uint64(7), stored.CampaignID)
	require.NotNil(t, stored.ResolvedAt)

	// Scenario D
	a, err := appeals.File(as("y"), appeal.FileParams{Appellant: "y", DisputeID: 1, Reason: "unfair", EvidencePointer: "QmAppeal"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.ID)
	got, ok, err := appeals.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arbitration.OutcomeClaimant, got.OriginalOutcome)

	// Scenario E
	_, err = appeals.Resolve(as("admin"), appeal.ResolveParams{Caller: "admin", AppealID: 1, NewArbitrator: "b", FinalOutcome: arbitration.OutcomeRespondent})
	require.NoError(t, err)
	stored, _, err = disputes.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, arbitration.OutcomeRespondent, stored.Outcome)
	require.NotNil(t, stored.Arbitrator)
	assert.Equal(t, principal.Principal("b"), *stored.Arbitrator)
	assert.Equal(t, arbitration.DisputeResolved, stored.Status)

	escrowBal, err := assets.Balance(context.Background(), esc.Custodian())
	require.NoError(t, err)
	assert.Equal(t, "50", escrowBal.String())

	list, err := disputes.List(context.Background(), dispute.ListFilters{Participant: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	outbox := NewOutboxRepository(pool)
	pending, err := outbox.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	topics := []string{pending[0].Topic, pending[1].Topic, pending[2].Topic, pending[3].Topic}
	assert.Equal(t, []string{"filed", "resolved", "appeal_filed", "appeal_resolved"}, topics)
	assert.JSONEq(t, `{"appeal_id":1}`, string(pending[3].Payload))

	require.NoError(t, outbox.MarkFailed(context.Background(), pending[0].ID, "broker down", time.Now()))
	require.NoError(t, outbox.MarkPublished(context.Background(), pending[0].ID, time.Now()))
	n, err := outbox.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFailedUnitCommitsNothing_Integration(t *testing.T) {
	pool := openIsolated(t)
	store := NewStore(pool)
	authz := principal.ContextAuthorizer{}
	esc := escrow.New(asset.NewLedger(authz), "")

	_, err := admin.NewService(store, authz).Initialize(as("admin"), admin.InitParams{
		Admin: "admin", Denomination: "USD", FilingFee: money.New(100),
	})
	require.NoError(t, err)

	_, err = dispute.NewService(store, authz, esc).File(as("poor"), dispute.FileParams{Claimant: "poor", Respondent: "y"})
	require.ErrorIs(t, err, arbitration.ErrInsufficientBalance)

	var counter int64
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT dispute_counter FROM arbitration_settings`).Scan(&counter))
	assert.Zero(t, counter)

	var outboxRows int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM outbox`).Scan(&outboxRows))
	assert.Zero(t, outboxRows)
}

func TestHistoryGuards_Integration(t *testing.T) {
	pool := openIsolated(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO disputes (id, claimant, respondent, campaign_id, claim_amount, denomination, status, outcome, filed_at, resolved_at)
		VALUES (1, 'x', 'y', 1, 10, 'USD', 'resolved', 'claimant', now(), now())
	`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE disputes SET status = 'filed' WHERE id = 1`)
	assert.Error(t, err)
	_, err = pool.Exec(ctx, `UPDATE disputes SET resolved_at = NULL WHERE id = 1`)
	assert.Error(t, err)
	_, err = pool.Exec(ctx, `UPDATE disputes SET outcome = 'respondent', arbitrator = 'b' WHERE id = 1`)
	assert.NoError(t, err)
}

func TestCredentialRepository_Integration(t *testing.T) {
	pool := openIsolated(t)
	repo := auth.NewRepository(pool)
	ctx := context.Background()

	cred, err := repo.CreateCredential(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, principal.Principal("alice"), cred.Principal)

	_, err = repo.CreateCredential(ctx, "alice", "hash")
	assert.ErrorIs(t, err, auth.ErrDuplicatePrincipal)

	_, err = repo.GetCredential(ctx, "bob")
	assert.ErrorIs(t, err, auth.ErrCredentialNotFound)
}
