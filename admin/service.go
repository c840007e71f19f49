// Package admin owns the singleton settings: one-time initialization and the
// two-phase handover of the admin role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

// ErrMissingDenomination is returned when initialization names no fee asset.
var ErrMissingDenomination = arbitration.NewError(arbitration.KindInvalidInput, "denomination required")

// InitParams configures the contract once.
type InitParams struct {
	Admin        principal.Principal
	Denomination string
	FilingFee    money.Amount
	AppealFee    money.Amount
}

type Service struct {
	store arbitration.Store
	authz principal.Authorizer
}

// NewService creates the admin service.
func NewService(store arbitration.Store, authz principal.Authorizer) *Service {
	return &Service{store: store, authz: authz}
}

// Initialize stores the admin, fee asset and fees. It succeeds exactly once.
func (s *Service) Initialize(ctx context.Context, p InitParams) (arbitration.Settings, error) {
	var out arbitration.Settings
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if _, err := tx.Settings(ctx); err == nil {
			return arbitration.ErrAlreadyInitialized
		} else if !errors.Is(err, arbitration.ErrNotInitialized) {
			return err
		}
		if err := arbitration.RequireAuth(ctx, s.authz, p.Admin); err != nil {
			return err
		}
		if strings.TrimSpace(p.Denomination) == "" {
			return ErrMissingDenomination
		}
		if p.FilingFee.Sign() < 0 || p.AppealFee.Sign() < 0 {
			return arbitration.ErrNegativeFee
		}

		out = arbitration.Settings{
			Admin:        p.Admin,
			Denomination: strings.TrimSpace(p.Denomination),
			FilingFee:    p.FilingFee,
			AppealFee:    p.AppealFee,
		}
		return tx.SaveSettings(ctx, out)
	})
	if err != nil {
		return arbitration.Settings{}, fmt.Errorf("admin: initialize: %w", err)
	}
	return out, nil
}

// ProposeAdmin records proposed as the pending admin. Only the current admin
// may propose; a later proposal replaces an earlier one.
func (s *Service) ProposeAdmin(ctx context.Context, current, proposed principal.Principal) error {
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		settings, err := RequireAdmin(ctx, tx, s.authz, current)
		if err != nil {
			return err
		}
		if proposed.IsZero() {
			return arbitration.NewError(arbitration.KindInvalidInput, "proposed admin required")
		}
		settings.PendingAdmin = &proposed
		return tx.SaveSettings(ctx, settings)
	})
	if err != nil {
		return fmt.Errorf("admin: propose: %w", err)
	}
	return nil
}

// AcceptAdmin completes the handover to the pending admin.
func (s *Service) AcceptAdmin(ctx context.Context, proposed principal.Principal) error {
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if err := arbitration.RequireAuth(ctx, s.authz, proposed); err != nil {
			return err
		}
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if settings.PendingAdmin == nil {
			return arbitration.ErrNoPendingAdmin
		}
		if *settings.PendingAdmin != proposed {
			return arbitration.ErrNotPendingAdmin
		}
		settings.Admin = proposed
		settings.PendingAdmin = nil
		return tx.SaveSettings(ctx, settings)
	})
	if err != nil {
		return fmt.Errorf("admin: accept: %w", err)
	}
	return nil
}

// Settings returns the current settings.
func (s *Service) Settings(ctx context.Context) (arbitration.Settings, error) {
	var out arbitration.Settings
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		var err error
		out, err = tx.Settings(ctx)
		return err
	})
	if err != nil {
		return arbitration.Settings{}, fmt.Errorf("admin: settings: %w", err)
	}
	return out, nil
}

// RequireAdmin verifies that caller authorized the call and is the stored
// admin. The admin slot is read inside tx on every call, so a handover takes
// effect immediately.
func RequireAdmin(ctx context.Context, tx arbitration.Tx, authz principal.Authorizer, caller principal.Principal) (arbitration.Settings, error) {
	if err := arbitration.RequireAuth(ctx, authz, caller); err != nil {
		return arbitration.Settings{}, err
	}
	settings, err := tx.Settings(ctx)
	if err != nil {
		return arbitration.Settings{}, err
	}
	if settings.Admin != caller {
		return arbitration.Settings{}, arbitration.ErrUnauthorized
	}
	return settings, nil
}
