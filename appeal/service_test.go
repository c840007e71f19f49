package appeal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeflow/admin"
	"disputeflow/arbitration"
	"disputeflow/arbitrator"
	"disputeflow/asset"
	"disputeflow/dispute"
	"disputeflow/escrow"
	"disputeflow/memstore"
	"disputeflow/money"
	"disputeflow/principal"
)

const (
	adminP  principal.Principal = "admin"
	claimX  principal.Principal = "x"
	respY   principal.Principal = "y"
	arbA    principal.Principal = "a"
	arbB    principal.Principal = "b"
	outside principal.Principal = "z"
)

var fixedNow = time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	disputes *dispute.Service
	appeals  *Service
	assets   *asset.Service
	escrow   *escrow.Escrow
}

func as(ps ...principal.Principal) context.Context {
	return principal.WithAuth(context.Background(), ps...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	authz := principal.ContextAuthorizer{}
	ledger := asset.NewLedger(authz)
	esc := escrow.New(ledger, "")
	clock := func() time.Time { return fixedNow }

	_, err := admin.NewService(store, authz).Initialize(as(adminP), admin.InitParams{
		Admin:        adminP,
		Denomination: "USD",
		FilingFee:    money.New(100),
		AppealFee:    money.New(50),
	})
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		disputes: dispute.NewService(store, authz, esc).WithClock(clock),
		appeals:  NewService(store, authz, esc).WithClock(clock),
		assets:   asset.NewService(store, ledger),
		escrow:   esc,
	}
	for _, p := range []principal.Principal{claimX, respY, outside} {
		_, err := f.assets.Credit(context.Background(), p, money.New(1000))
		require.NoError(t, err)
	}
	require.NoError(t, arbitrator.NewRegistry(store, authz).Authorize(as(adminP), adminP, arbA))
	return f
}

// resolvedDispute walks dispute 1 through filing, assignment and a ruling
// for the claimant.
func (f *fixture) resolvedDispute(t *testing.T) arbitration.Dispute {
	t.Helper()
	d, err := f.disputes.File(as(claimX), dispute.FileParams{
		Claimant:        claimX,
		Respondent:      respY,
		CampaignID:      7,
		ClaimAmount:     money.New(1000),
		Description:     "desc",
		EvidencePointer: "QmEvidence",
	})
	require.NoError(t, err)
	_, err = f.disputes.AssignArbitrator(as(adminP), adminP, d.ID, arbA)
	require.NoError(t, err)
	d, err = f.disputes.Resolve(as(arbA), arbA, d.ID, arbitration.OutcomeClaimant, "ok")
	require.NoError(t, err)
	return d
}

func (f *fixture) balance(t *testing.T, p principal.Principal) string {
	t.Helper()
	bal, err := f.assets.Balance(context.Background(), p)
	require.NoError(t, err)
	return bal.String()
}

func (f *fixture) fileAppeal(t *testing.T, by principal.Principal) arbitration.Appeal {
	t.Helper()
	a, err := f.appeals.File(as(by), FileParams{Appellant: by, DisputeID: 1, Reason: "unfair", EvidencePointer: "QmAppeal"})
	require.NoError(t, err)
	return a
}

func TestFileAppeal(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)

	a := f.fileAppeal(t, respY)
	assert.Equal(t, uint64(1), a.ID)

	stored, ok, err := f.appeals.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arbitration.OutcomeClaimant, stored.OriginalOutcome)
	assert.Equal(t, arbitration.OutcomePending, stored.FinalOutcome)
	assert.Equal(t, arbitration.AppealPending, stored.Status)
	assert.Equal(t, uint64(1), stored.DisputeID)
	assert.Equal(t, fixedNow, stored.FiledAt)
	assert.Nil(t, stored.ResolvedAt)
	assert.Nil(t, stored.NewArbitrator)

	assert.Equal(t, "950", f.balance(t, respY))
	assert.Equal(t, "50", f.balance(t, f.escrow.Custodian()))

	notes := f.store.Notifications()
	last := notes[len(notes)-1]
	assert.Equal(t, arbitration.TopicAppealFiled, last.Topic)
	assert.JSONEq(t, `{"appeal_id":1,"dispute_id":1,"appellant":"y"}`, string(last.Payload))
}

func TestFileAppealEligibility(t *testing.T) {
	f := newFixture(t)

	_, err := f.appeals.File(as(respY), FileParams{Appellant: respY, DisputeID: 1})
	assert.ErrorIs(t, err, arbitration.ErrDisputeNotFound)

	_, err = f.disputes.File(as(claimX), dispute.FileParams{Claimant: claimX, Respondent: respY})
	require.NoError(t, err)

	_, err = f.appeals.File(as(respY), FileParams{Appellant: respY, DisputeID: 1})
	require.ErrorIs(t, err, arbitration.ErrDisputeNotResolved)
	assert.Contains(t, err.Error(), "can only appeal resolved disputes")

	_, err = f.disputes.AssignArbitrator(as(adminP), adminP, 1, arbA)
	require.NoError(t, err)
	_, err = f.appeals.File(as(respY), FileParams{Appellant: respY, DisputeID: 1})
	assert.ErrorIs(t, err, arbitration.ErrDisputeNotResolved)

	_, err = f.disputes.Resolve(as(arbA), arbA, 1, arbitration.OutcomeRespondent, "")
	require.NoError(t, err)

	_, err = f.appeals.File(as(outside), FileParams{Appellant: outside, DisputeID: 1})
	require.ErrorIs(t, err, arbitration.ErrNotDisputeParty)
	assert.Contains(t, err.Error(), "only claimant or respondent can appeal")

	_, err = f.appeals.File(as(outside), FileParams{Appellant: respY, DisputeID: 1})
	assert.ErrorIs(t, err, arbitration.KindUnauthorized)

	assert.Equal(t, "1000", f.balance(t, outside))
	assert.Equal(t, "1000", f.balance(t, respY))

	a := f.fileAppeal(t, claimX)
	assert.Equal(t, uint64(1), a.ID)
}

func TestFileAppealInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)

	ctx := as(respY)
	require.NoError(t, f.store.WithTx(ctx, func(tx arbitration.Tx) error {
		return tx.SetBalance(ctx, "USD", respY, money.New(49))
	}))

	_, err := f.appeals.File(ctx, FileParams{Appellant: respY, DisputeID: 1})
	assert.ErrorIs(t, err, arbitration.ErrInsufficientBalance)

	_, ok, err := f.appeals.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveAppealOverridesDispute(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)
	f.fileAppeal(t, respY)

	escrowBefore := f.balance(t, f.escrow.Custodian())
	claimantBefore := f.balance(t, claimX)

	a, err := f.appeals.Resolve(as(adminP), ResolveParams{
		Caller:        adminP,
		AppealID:      1,
		NewArbitrator: arbB,
		FinalOutcome:  arbitration.OutcomeRespondent,
	})
	require.NoError(t, err)
	assert.Equal(t, arbitration.AppealUpheld, a.Status)

	stored, ok, err := f.appeals.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arbitration.AppealUpheld, stored.Status)
	assert.Equal(t, arbitration.OutcomeRespondent, stored.FinalOutcome)
	assert.Equal(t, arbitration.OutcomeClaimant, stored.OriginalOutcome)
	require.NotNil(t, stored.NewArbitrator)
	assert.Equal(t, arbB, *stored.NewArbitrator)
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, fixedNow, *stored.ResolvedAt)

	d, ok, err := f.disputes.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, arbitration.OutcomeRespondent, d.Outcome)
	require.NotNil(t, d.Arbitrator)
	assert.Equal(t, arbB, *d.Arbitrator)
	assert.Equal(t, arbitration.DisputeResolved, d.Status)

	// No funds move on override and the appeal fee stays in escrow.
	assert.Equal(t, escrowBefore, f.balance(t, f.escrow.Custodian()))
	assert.Equal(t, "50", escrowBefore)
	assert.Equal(t, claimantBefore, f.balance(t, claimX))

	notes := f.store.Notifications()
	last := notes[len(notes)-1]
	assert.Equal(t, arbitration.TopicAppealResolved, last.Topic)
	assert.JSONEq(t, `{"appeal_id":1}`, string(last.Payload))
}

func TestResolveAppealAlwaysUpholds(t *testing.T) {
	for _, outcome := range []arbitration.Outcome{
		arbitration.OutcomeClaimant,
		arbitration.OutcomeRespondent,
		arbitration.OutcomeSplit,
		arbitration.OutcomeNoAction,
	} {
		t.Run(string(outcome), func(t *testing.T) {
			f := newFixture(t)
			f.resolvedDispute(t)
			f.fileAppeal(t, claimX)

			a, err := f.appeals.Resolve(as(adminP), ResolveParams{Caller: adminP, AppealID: 1, NewArbitrator: arbB, FinalOutcome: outcome})
			require.NoError(t, err)
			assert.Equal(t, arbitration.AppealUpheld, a.Status)
			assert.NotEqual(t, arbitration.AppealOverturned, a.Status)
			assert.NotEqual(t, arbitration.AppealDismissed, a.Status)
		})
	}
}

func TestResolveAppealErrors(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)
	f.fileAppeal(t, respY)

	_, err := f.appeals.Resolve(as(claimX), ResolveParams{Caller: claimX, AppealID: 1, NewArbitrator: arbB, FinalOutcome: arbitration.OutcomeSplit})
	assert.ErrorIs(t, err, arbitration.ErrUnauthorized)

	_, err = f.appeals.Resolve(as(adminP), ResolveParams{Caller: adminP, AppealID: 5, NewArbitrator: arbB, FinalOutcome: arbitration.OutcomeSplit})
	assert.ErrorIs(t, err, arbitration.ErrAppealNotFound)

	_, err = f.appeals.Resolve(as(adminP), ResolveParams{Caller: adminP, AppealID: 1, NewArbitrator: arbB, FinalOutcome: arbitration.OutcomePending})
	assert.ErrorIs(t, err, arbitration.ErrInvalidOutcome)

	_, err = f.appeals.Resolve(as(adminP), ResolveParams{Caller: adminP, AppealID: 1, NewArbitrator: arbB, FinalOutcome: arbitration.OutcomeSplit})
	require.NoError(t, err)

	_, err = f.appeals.Resolve(as(adminP), ResolveParams{Caller: adminP, AppealID: 1, NewArbitrator: arbA, FinalOutcome: arbitration.OutcomeClaimant})
	require.ErrorIs(t, err, arbitration.ErrAppealNotPending)
	assert.Contains(t, err.Error(), "appeal not pending")

	d, _, err := f.disputes.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, arbitration.OutcomeSplit, d.Outcome)
}

func TestMultipleAppealsPerDispute(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)
	f.fileAppeal(t, respY)
	f.fileAppeal(t, claimX)

	appeals, err := f.appeals.ListByDispute(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, appeals, 2)
	assert.Equal(t, uint64(1), appeals[0].ID)
	assert.Equal(t, uint64(2), appeals[1].ID)
	assert.Equal(t, "100", f.balance(t, f.escrow.Custodian()))

	_, err = f.appeals.ListByDispute(context.Background(), 9)
	assert.ErrorIs(t, err, arbitration.ErrDisputeNotFound)
}

func TestGetUnknownAppeal(t *testing.T) {
	f := newFixture(t)
	_, ok, err := f.appeals.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileAppealRejectsEscrowAccount(t *testing.T) {
	f := newFixture(t)
	f.resolvedDispute(t)
	f.fileAppeal(t, respY)
	custodian := f.escrow.Custodian()
	require.Equal(t, "50", f.balance(t, custodian))

	// a resolved dispute naming the escrow account, stored before parties were checked
	require.NoError(t, f.store.WithTx(context.Background(), func(tx arbitration.Tx) error {
		return tx.SaveDispute(context.Background(), arbitration.Dispute{
			ID:         2,
			Claimant:   claimX,
			Respondent: custodian,
			Status:     arbitration.DisputeResolved,
			Outcome:    arbitration.OutcomeClaimant,
			FiledAt:    fixedNow,
		})
	}))

	_, err := f.appeals.File(as(custodian), FileParams{Appellant: custodian, DisputeID: 2, Reason: "mine"})
	assert.ErrorIs(t, err, arbitration.ErrEscrowAccountParty)
	assert.ErrorIs(t, err, arbitration.KindInvalidInput)

	appeals, err := f.appeals.ListByDispute(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, appeals)
	assert.Equal(t, "50", f.balance(t, custodian))
}
