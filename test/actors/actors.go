package actors

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"disputeflow/admin"
	"disputeflow/appeal"
	"disputeflow/arbitration"
	"disputeflow/dispute"
	"disputeflow/money"
	"disputeflow/notify"
	"disputeflow/principal"
)

// Env is the cast and the services the actors drive.
type Env struct {
	Admin       principal.Principal
	Arbitrators []principal.Principal
	Claimants   []principal.Principal
	Respondents []principal.Principal

	Settings *admin.Service
	Disputes *dispute.Service
	Appeals  *appeal.Service
	Stats    *Stats
}

// Stats counts actor calls. Rejected calls are domain refusals that lost a
// race; Failed calls hit the database or the network.
type Stats struct {
	Succeeded atomic.Int64
	Rejected  atomic.Int64
	Failed    atomic.Int64
}

func (s *Stats) record(err error) {
	if s == nil {
		return
	}
	switch _, domain := arbitration.KindOf(err); {
	case err == nil:
		s.Succeeded.Add(1)
	case domain:
		s.Rejected.Add(1)
	default:
		s.Failed.Add(1)
	}
}

func (s *Stats) String() string {
	return fmt.Sprintf("succeeded=%d rejected=%d failed=%d", s.Succeeded.Load(), s.Rejected.Load(), s.Failed.Load())
}

var rulings = []arbitration.Outcome{
	arbitration.OutcomeClaimant,
	arbitration.OutcomeRespondent,
	arbitration.OutcomeSplit,
	arbitration.OutcomeNoAction,
}

func pick[T any](xs []T) T {
	return xs[rand.Intn(len(xs))]
}

func jitter(base, spread int) time.Duration {
	return time.Duration(base+rand.Intn(spread)) * time.Millisecond
}

// run calls step until ctx is done or stop is closed.
func run(ctx context.Context, stop <-chan struct{}, pause func() time.Duration, step func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(pause()):
		}
	}
}

// randomDispute loads a dispute with an id drawn from those filed so far.
func (e *Env) randomDispute(ctx context.Context) (arbitration.Dispute, bool) {
	n, err := e.Disputes.Count(ctx)
	if err != nil || n == 0 {
		return arbitration.Dispute{}, false
	}
	d, ok, err := e.Disputes.Get(ctx, uint64(rand.Int63n(int64(n)))+1)
	if err != nil {
		return arbitration.Dispute{}, false
	}
	return d, ok
}

// Filer files disputes as claimant against random respondents.
func Filer(ctx context.Context, env *Env, claimant principal.Principal, stop <-chan struct{}) error {
	authed := principal.WithAuth(ctx, claimant)
	return run(ctx, stop, func() time.Duration { return jitter(10, 30) }, func() {
		_, err := env.Disputes.File(authed, dispute.FileParams{
			Claimant:        claimant,
			Respondent:      pick(env.Respondents),
			CampaignID:      uint64(rand.Int63n(1000)),
			ClaimAmount:     money.New(rand.Int63n(1_000_000)),
			Description:     "stress claim",
			EvidencePointer: fmt.Sprintf("ipfs://stress/%d", rand.Int63()),
		})
		env.Stats.record(err)
	})
}

// Assigner hands random disputes to random approved arbitrators. Several
// assigners race for the same filed disputes.
func Assigner(ctx context.Context, env *Env, stop <-chan struct{}) error {
	authed := principal.WithAuth(ctx, env.Admin)
	return run(ctx, stop, func() time.Duration { return jitter(5, 20) }, func() {
		d, ok := env.randomDispute(ctx)
		if !ok {
			return
		}
		_, err := env.Disputes.AssignArbitrator(authed, env.Admin, d.ID, pick(env.Arbitrators))
		env.Stats.record(err)
	})
}

// Resolver rules on random disputes as arb; only those assigned to arb can
// succeed.
func Resolver(ctx context.Context, env *Env, arb principal.Principal, stop <-chan struct{}) error {
	authed := principal.WithAuth(ctx, arb)
	return run(ctx, stop, func() time.Duration { return jitter(5, 20) }, func() {
		d, ok := env.randomDispute(ctx)
		if !ok {
			return
		}
		_, err := env.Disputes.Resolve(authed, arb, d.ID, pick(rulings), "stress ruling")
		env.Stats.record(err)
	})
}

// Appellant appeals random disputes as one of their parties.
func Appellant(ctx context.Context, env *Env, stop <-chan struct{}) error {
	return run(ctx, stop, func() time.Duration { return jitter(20, 40) }, func() {
		d, ok := env.randomDispute(ctx)
		if !ok {
			return
		}
		party := d.Claimant
		if rand.Intn(2) == 0 {
			party = d.Respondent
		}
		_, err := env.Appeals.File(principal.WithAuth(ctx, party), appeal.FileParams{
			Appellant: party,
			DisputeID: d.ID,
			Reason:    "stress appeal",
		})
		env.Stats.record(err)
	})
}

// AppealJudge resolves random appeals as admin.
func AppealJudge(ctx context.Context, env *Env, stop <-chan struct{}) error {
	authed := principal.WithAuth(ctx, env.Admin)
	return run(ctx, stop, func() time.Duration { return jitter(20, 40) }, func() {
		settings, err := env.Settings.Settings(ctx)
		if err != nil || settings.AppealCounter == 0 {
			return
		}
		_, err = env.Appeals.Resolve(authed, appeal.ResolveParams{
			Caller:        env.Admin,
			AppealID:      uint64(rand.Int63n(int64(settings.AppealCounter))) + 1,
			NewArbitrator: pick(env.Arbitrators),
			FinalOutcome:  pick(rulings),
		})
		env.Stats.record(err)
	})
}

// OutboxDrainer runs the outbox worker one batch at a time.
func OutboxDrainer(ctx context.Context, worker *notify.OutboxWorker, stop <-chan struct{}) error {
	return run(ctx, stop, func() time.Duration { return 100 * time.Millisecond }, func() {
		_, _ = worker.ProcessOnce(ctx)
	})
}
