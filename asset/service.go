package asset

import (
	"context"
	"fmt"

	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

// Service exposes balances in the configured denomination outside of the
// arbitration operations.
type Service struct {
	store  arbitration.Store
	ledger *Ledger
}

// NewService exposes ledger balances and operator credits.
func NewService(store arbitration.Store, ledger *Ledger) *Service {
	return &Service{store: store, ledger: ledger}
}

// Balance returns the balance of account in the configured denomination.
func (s *Service) Balance(ctx context.Context, account principal.Principal) (money.Amount, error) {
	var bal money.Amount
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		bal, err = tx.Balance(ctx, settings.Denomination, account)
		return err
	})
	if err != nil {
		return money.Zero, fmt.Errorf("asset: balance: %w", err)
	}
	return bal, nil
}

// Credit funds account in the configured denomination and returns the new
// balance.
func (s *Service) Credit(ctx context.Context, account principal.Principal, amount money.Amount) (money.Amount, error) {
	var bal money.Amount
	err := s.store.WithTx(ctx, func(tx arbitration.Tx) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if err := s.ledger.Credit(ctx, tx, settings.Denomination, account, amount); err != nil {
			return err
		}
		bal, err = tx.Balance(ctx, settings.Denomination, account)
		return err
	})
	if err != nil {
		return money.Zero, fmt.Errorf("asset: credit: %w", err)
	}
	return bal, nil
}
