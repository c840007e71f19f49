// Package appeal runs the second, admin-adjudicated round on resolved
// disputes. Resolving an appeal overrides the parent dispute's outcome and
// arbitrator but leaves its status and any released funds untouched.
package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"disputeflow/admin"
	"disputeflow/arbitration"
	"disputeflow/escrow"
	"disputeflow/principal"
)

// FileParams describes a new appeal.
type FileParams struct {
	Appellant       principal.Principal
	DisputeID       uint64
	Reason          string
	EvidencePointer string
}

// ResolveParams is the admin's ruling on an appeal.
type ResolveParams struct {
	Caller        principal.Principal
	AppealID      uint64
	NewArbitrator principal.Principal
	FinalOutcome  arbitration.Outcome
}

// Service files and resolves appeals against resolved disputes.
type Service struct {
	store    arbitration.Store
	authz    principal.Authorizer
	escrow   *escrow.Escrow
	observer escrow.Observer
	now      func() time.Time
}

// NewService returns an appeal workflow that escrows appeal fees through esc.
func NewService(store arbitration.Store, authz principal.Authorizer, esc *escrow.Escrow) *Service {
	return &Service{
		store:    store,
		authz:    authz,
		escrow:   esc,
		observer: escrow.NopObserver{},
		now:      time.Now,
	}
}

// WithClock overrides the clock used for filed and resolved timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithObserver reports committed escrow movements to obs.
func (s *Service) WithObserver(obs escrow.Observer) *Service {
	s.observer = obs
	return s
}

// File opens an appeal on a resolved dispute after collecting the appeal fee
// from the appellant. The fee stays in escrow.
func (s *Service) File(ctx context.Context, params FileParams) (arbitration.Appeal, error) {
	var (
		created arbitration.Appeal
		moved   *escrow.Movement
	)
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if err := arbitration.RequireAuth(ctx, s.authz, params.Appellant); err != nil {
			return err
		}
		if params.Appellant == s.escrow.Custodian() {
			return arbitration.ErrEscrowAccountParty
		}
		d, err := tx.Dispute(ctx, params.DisputeID)
		if err != nil {
			return err
		}
		if d.Status != arbitration.DisputeResolved {
			return arbitration.ErrDisputeNotResolved
		}
		if !d.IsParty(params.Appellant) {
			return arbitration.ErrNotDisputeParty
		}
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}

		id := settings.NextAppealID()
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}

		moved, err = s.escrow.Collect(ctx, tx, settings.Denomination, params.Appellant, settings.AppealFee)
		if err != nil {
			return err
		}

		now := s.timestamp()
		created = arbitration.Appeal{
			ID:              id,
			DisputeID:       d.ID,
			Appellant:       params.Appellant,
			Reason:          params.Reason,
			EvidencePointer: params.EvidencePointer,
			Status:          arbitration.AppealPending,
			FiledAt:         now,
			OriginalOutcome: d.Outcome,
			FinalOutcome:    arbitration.OutcomePending,
		}
		if err := tx.SaveAppeal(ctx, created); err != nil {
			return err
		}
		return tx.Enqueue(ctx, arbitration.AppealFiledNotification(id, d.ID, params.Appellant, now))
	})
	if err != nil {
		return arbitration.Appeal{}, fmt.Errorf("appeal: file: %w", err)
	}
	escrow.Notify(s.observer, moved)
	return created, nil
}

// Resolve closes a pending appeal as Upheld, whatever the final outcome, and
// rewrites the parent dispute's outcome and arbitrator.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (arbitration.Appeal, error) {
	var out arbitration.Appeal
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if _, err := admin.RequireAdmin(ctx, tx, s.authz, params.Caller); err != nil {
			return err
		}
		a, err := tx.Appeal(ctx, params.AppealID)
		if err != nil {
			return err
		}
		if a.Status != arbitration.AppealPending {
			return arbitration.ErrAppealNotPending
		}
		if !params.FinalOutcome.Valid() || params.FinalOutcome == arbitration.OutcomePending {
			return arbitration.ErrInvalidOutcome
		}
		if params.NewArbitrator.IsZero() {
			return arbitration.NewError(arbitration.KindInvalidInput, "new arbitrator required")
		}
		d, err := tx.Dispute(ctx, a.DisputeID)
		if err != nil {
			return err
		}

		now := s.timestamp()
		newArb := params.NewArbitrator
		a.Status = arbitration.AppealUpheld
		a.NewArbitrator = &newArb
		a.FinalOutcome = params.FinalOutcome
		a.ResolvedAt = &now
		if err := tx.SaveAppeal(ctx, a); err != nil {
			return err
		}

		d.Outcome = params.FinalOutcome
		d.Arbitrator = &newArb
		if err := tx.SaveDispute(ctx, d); err != nil {
			return err
		}

		if err := tx.Enqueue(ctx, arbitration.AppealResolvedNotification(a.ID, d.ID, now)); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return arbitration.Appeal{}, fmt.Errorf("appeal: resolve: %w", err)
	}
	return out, nil
}

// Get returns the appeal with id. ok is false for unknown ids.
func (s *Service) Get(ctx context.Context, id uint64) (a arbitration.Appeal, ok bool, err error) {
	err = s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		var err error
		a, err = tx.Appeal(ctx, id)
		return err
	})
	if errors.Is(err, arbitration.ErrAppealNotFound) {
		return arbitration.Appeal{}, false, nil
	}
	if err != nil {
		return arbitration.Appeal{}, false, fmt.Errorf("appeal: get: %w", err)
	}
	return a, true, nil
}

// ListByDispute returns every appeal of disputeID in id order.
func (s *Service) ListByDispute(ctx context.Context, disputeID uint64) ([]arbitration.Appeal, error) {
	var out []arbitration.Appeal
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if _, err := tx.Dispute(ctx, disputeID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAppeals(ctx, disputeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("appeal: list: %w", err)
	}
	return out, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
