// Package dispute runs the dispute state machine:
// Filed -> UnderReview -> Resolved.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"disputeflow/admin"
	"disputeflow/arbitration"
	"disputeflow/arbitrator"
	"disputeflow/escrow"
	"disputeflow/principal"
)

// Service files, assigns and resolves disputes.
type Service struct {
	store    arbitration.Store
	authz    principal.Authorizer
	escrow   *escrow.Escrow
	observer escrow.Observer
	now      func() time.Time
}

// NewService returns a dispute engine that collects and releases fees
// through esc.
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

// File records a new dispute after collecting the filing fee from the
// claimant into escrow.
func (s *Service) File(ctx context.Context, params FileParams) (arbitration.Dispute, error) {
	var (
		created arbitration.Dispute
		moved   *escrow.Movement
	)
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if err := arbitration.RequireAuth(ctx, s.authz, params.Claimant); err != nil {
			return err
		}
		if params.Respondent.IsZero() {
			return arbitration.NewError(arbitration.KindInvalidInput, "respondent required")
		}
		if custodian := s.escrow.Custodian(); params.Claimant == custodian || params.Respondent == custodian {
			return arbitration.ErrEscrowAccountParty
		}
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}

		id := settings.NextDisputeID()
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}

		moved, err = s.escrow.Collect(ctx, tx, settings.Denomination, params.Claimant, settings.FilingFee)
		if err != nil {
			return err
		}

		now := s.timestamp()
		created = arbitration.Dispute{
			ID:              id,
			Claimant:        params.Claimant,
			Respondent:      params.Respondent,
			CampaignID:      params.CampaignID,
			ClaimAmount:     params.ClaimAmount,
			Denomination:    settings.Denomination,
			Description:     params.Description,
			EvidencePointer: params.EvidencePointer,
			Status:          arbitration.DisputeFiled,
			Outcome:         arbitration.OutcomePending,
			FiledAt:         now,
		}
		if err := tx.SaveDispute(ctx, created); err != nil {
			return err
		}
		return tx.Enqueue(ctx, arbitration.DisputeFiledNotification(id, params.Claimant, now))
	})
	if err != nil {
		return arbitration.Dispute{}, fmt.Errorf("dispute: file: %w", err)
	}
	escrow.Notify(s.observer, moved)
	return created, nil
}

// AssignArbitrator hands a filed dispute to an approved arbitrator.
func (s *Service) AssignArbitrator(ctx context.Context, caller principal.Principal, disputeID uint64, arb principal.Principal) (arbitration.Dispute, error) {
	var out arbitration.Dispute
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if _, err := admin.RequireAdmin(ctx, tx, s.authz, caller); err != nil {
			return err
		}
		if err := arbitrator.RequireAuthorized(ctx, tx, arb); err != nil {
			return err
		}
		d, err := tx.Dispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != arbitration.DisputeFiled {
			return arbitration.ErrDisputeNotFiled
		}

		d.Arbitrator = &arb
		d.Status = arbitration.DisputeUnderReview
		if err := tx.SaveDispute(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return arbitration.Dispute{}, fmt.Errorf("dispute: assign arbitrator: %w", err)
	}
	return out, nil
}

// Resolve records the assigned arbitrator's ruling and releases the filing
// fee according to it.
func (s *Service) Resolve(ctx context.Context, caller principal.Principal, disputeID uint64, outcome arbitration.Outcome, notes string) (arbitration.Dispute, error) {
	var (
		out   arbitration.Dispute
		moved *escrow.Movement
	)
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if err := arbitration.RequireAuth(ctx, s.authz, caller); err != nil {
			return err
		}
		d, err := tx.Dispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Arbitrator == nil || *d.Arbitrator != caller {
			return arbitration.ErrNotAssignedArbitrator
		}
		if d.Status != arbitration.DisputeUnderReview {
			return arbitration.ErrDisputeNotUnderReview
		}
		if !outcome.Valid() || outcome == arbitration.OutcomePending {
			return arbitration.ErrInvalidOutcome
		}
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}

		now := s.timestamp()
		d.Outcome = outcome
		d.ResolutionNotes = notes
		d.Status = arbitration.DisputeResolved
		d.ResolvedAt = &now
		if err := tx.SaveDispute(ctx, d); err != nil {
			return err
		}

		moved, err = s.escrow.Release(ctx, tx, settings, d)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, arbitration.DisputeResolvedNotification(d.ID, now)); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return arbitration.Dispute{}, fmt.Errorf("dispute: resolve: %w", err)
	}
	escrow.Notify(s.observer, moved)
	return out, nil
}

// Get returns the dispute with id. ok is false for unknown ids.
func (s *Service) Get(ctx context.Context, id uint64) (d arbitration.Dispute, ok bool, err error) {
	err = s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		var err error
		d, err = tx.Dispute(ctx, id)
		return err
	})
	if errors.Is(err, arbitration.ErrDisputeNotFound) {
		return arbitration.Dispute{}, false, nil
	}
	if err != nil {
		return arbitration.Dispute{}, false, fmt.Errorf("dispute: get: %w", err)
	}
	return d, true, nil
}

// Count returns the number of disputes ever filed; 0 before initialization.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		n = settings.DisputeCounter
		return nil
	})
	if errors.Is(err, arbitration.ErrNotInitialized) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("dispute: count: %w", err)
	}
	return n, nil
}

// List pages through disputes in id order, optionally only those where
// Participant is claimant, respondent or arbitrator.
func (s *Service) List(ctx context.Context, filters ListFilters) (ListResult, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	var res ListResult
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		items, total, err := tx.ListDisputes(ctx, arbitration.DisputeFilter{
			Participant: filters.Participant,
			Page:        filters.Page,
			PageSize:    filters.PageSize,
		})
		if err != nil {
			return err
		}
		res = ListResult{Items: items, Total: total}
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("dispute: list: %w", err)
	}
	return res, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
