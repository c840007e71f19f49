// Package asset moves fungible balances between principals. Every call runs
// inside the caller's store transaction, so a failed transfer leaves no trace.
package asset

import (
	"context"
	"fmt"

	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

// Ledger is the transfer service for a single store.
type Ledger struct {
	authz principal.Authorizer
}

// NewLedger returns a ledger that requires authorization from the payer of
// every transfer.
func NewLedger(authz principal.Authorizer) *Ledger {
	if authz == nil {
		authz = principal.ContextAuthorizer{}
	}
	return &Ledger{authz: authz}
}

// Transfer moves amount of denomination from one account to another. A zero
// amount is a no-op.
func (l *Ledger) Transfer(ctx context.Context, tx arbitration.Tx, denomination string, from, to principal.Principal, amount money.Amount) error {
	if amount.Sign() < 0 {
		return arbitration.ErrInvalidAmount
	}
	if err := l.authz.RequireAuth(ctx, from); err != nil {
		return &arbitration.Error{
			Kind: arbitration.KindTransfer,
			Msg:  fmt.Sprintf("asset: transfer not authorized by %s", from),
			Err:  err,
		}
	}
	if amount.IsZero() || from == to {
		return nil
	}

	fromBal, err := tx.Balance(ctx, denomination, from)
	if err != nil {
		return fmt.Errorf("asset: load balance: %w", err)
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("asset: %s holds %s, needs %s: %w", from, fromBal, amount, arbitration.ErrInsufficientBalance)
	}
	toBal, err := tx.Balance(ctx, denomination, to)
	if err != nil {
		return fmt.Errorf("asset: load balance: %w", err)
	}

	nextFrom, err := fromBal.Sub(amount)
	if err != nil {
		return transferOverflow(err)
	}
	nextTo, err := toBal.Add(amount)
	if err != nil {
		return transferOverflow(err)
	}

	if err := tx.SetBalance(ctx, denomination, from, nextFrom); err != nil {
		return fmt.Errorf("asset: store balance: %w", err)
	}
	if err := tx.SetBalance(ctx, denomination, to, nextTo); err != nil {
		return fmt.Errorf("asset: store balance: %w", err)
	}
	return nil
}

// Credit mints amount into account. It is the operator's funding path and
// performs no authorization.
func (l *Ledger) Credit(ctx context.Context, tx arbitration.Tx, denomination string, account principal.Principal, amount money.Amount) error {
	if !amount.IsPositive() {
		return arbitration.ErrInvalidAmount
	}
	bal, err := tx.Balance(ctx, denomination, account)
	if err != nil {
		return fmt.Errorf("asset: load balance: %w", err)
	}
	next, err := bal.Add(amount)
	if err != nil {
		return transferOverflow(err)
	}
	if err := tx.SetBalance(ctx, denomination, account, next); err != nil {
		return fmt.Errorf("asset: store balance: %w", err)
	}
	return nil
}

func transferOverflow(err error) error {
	return &arbitration.Error{Kind: arbitration.KindTransfer, Msg: "asset: balance overflow", Err: err}
}
