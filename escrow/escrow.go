// Package escrow holds filing and appeal fees in a custodian account.
package escrow

import (
	"context"
	"fmt"

	"disputeflow/arbitration"
	"disputeflow/asset"
	"disputeflow/money"
	"disputeflow/principal"
)

// DefaultCustodian is the account that holds escrowed fees unless configured
// otherwise.
const DefaultCustodian principal.Principal = "arbitration-escrow"

// Direction labels an escrow movement.
type Direction string

const (
	Collected Direction = "collected"
	Released  Direction = "released"
)

// Movement is one fee moved into or out of escrow.
type Movement struct {
	Direction Direction
	Account   principal.Principal
	Amount    money.Amount
}

// Escrow moves fees between parties and the custodian account.
type Escrow struct {
	ledger    *asset.Ledger
	custodian principal.Principal
}

// New returns an escrow held by custodian, or by DefaultCustodian when
// custodian is empty.
func New(ledger *asset.Ledger, custodian principal.Principal) *Escrow {
	if custodian.IsZero() {
		custodian = DefaultCustodian
	}
	return &Escrow{ledger: ledger, custodian: custodian}
}

// Custodian returns the escrow account.
func (e *Escrow) Custodian() principal.Principal {
	return e.custodian
}

// Collect moves fee from payer into escrow. A zero fee moves nothing and
// reports no movement. The custodian itself can never pay.
func (e *Escrow) Collect(ctx context.Context, tx arbitration.Tx, denomination string, payer principal.Principal, fee money.Amount) (*Movement, error) {
	if payer == e.custodian {
		return nil, arbitration.ErrEscrowAccountParty
	}
	if fee.IsZero() {
		return nil, nil
	}
	if err := e.ledger.Transfer(ctx, tx, denomination, payer, e.custodian, fee); err != nil {
		return nil, fmt.Errorf("escrow: collect fee: %w", err)
	}
	return &Movement{Direction: Collected, Account: payer, Amount: fee}, nil
}

// Release pays the filing fee of a resolved dispute out of escrow in the
// dispute's denomination: to the claimant when the claimant prevailed,
// otherwise to the admin.
func (e *Escrow) Release(ctx context.Context, tx arbitration.Tx, settings arbitration.Settings, d arbitration.Dispute) (*Movement, error) {
	fee := settings.FilingFee
	if fee.IsZero() {
		return nil, nil
	}
	recipient := settings.Admin
	if d.Outcome == arbitration.OutcomeClaimant {
		recipient = d.Claimant
	}
	ctx = principal.WithAuth(ctx, e.custodian)
	if err := e.ledger.Transfer(ctx, tx, d.Denomination, e.custodian, recipient, fee); err != nil {
		return nil, fmt.Errorf("escrow: release fee: %w", err)
	}
	return &Movement{Direction: Released, Account: recipient, Amount: fee}, nil
}

// Observer is told about movements once their transaction has committed.
type Observer interface {
	EscrowMoved(m Movement)
}

// NopObserver discards movements.
type NopObserver struct{}

func (NopObserver) EscrowMoved(Movement) {}

// Notify reports every non-nil movement to obs.
func Notify(obs Observer, moves ...*Movement) {
	if obs == nil {
		return
	}
	for _, m := range moves {
		if m != nil {
			obs.EscrowMoved(*m)
		}
	}
}
