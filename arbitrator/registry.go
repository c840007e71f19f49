// Package arbitrator is the admin-controlled allow-list of principals that
// may adjudicate disputes.
package arbitrator

import (
	"context"
	"fmt"

	"disputeflow/admin"
	"disputeflow/arbitration"
	"disputeflow/principal"
)

type Registry struct {
	store arbitration.Store
	authz principal.Authorizer
}

// NewRegistry creates the arbitrator allow-list.
func NewRegistry(store arbitration.Store, authz principal.Authorizer) *Registry {
	return &Registry{store: store, authz: authz}
}

// Authorize approves arbitrator. Approving an approved arbitrator is a no-op.
func (r *Registry) Authorize(ctx context.Context, caller, arbitrator principal.Principal) error {
	if err := r.set(ctx, caller, arbitrator, true); err != nil {
		return fmt.Errorf("arbitrator: authorize: %w", err)
	}
	return nil
}

// Revoke withdraws approval. Disputes already assigned to arbitrator keep it.
func (r *Registry) Revoke(ctx context.Context, caller, arbitrator principal.Principal) error {
	if err := r.set(ctx, caller, arbitrator, false); err != nil {
		return fmt.Errorf("arbitrator: revoke: %w", err)
	}
	return nil
}

func (r *Registry) set(ctx context.Context, caller, arbitrator principal.Principal, approved bool) error {
	return r.store.WithTx(ctx, func(tx arbitration.Tx) error {
		if _, err := admin.RequireAdmin(ctx, tx, r.authz, caller); err != nil {
			return err
		}
		if arbitrator.IsZero() {
			return arbitration.NewError(arbitration.KindInvalidInput, "arbitrator required")
		}
		current, err := tx.ArbitratorApproved(ctx, arbitrator)
		if err != nil {
			return err
		}
		if current == approved {
			return nil
		}
		return tx.SetArbitratorApproved(ctx, arbitrator, approved)
	})
}

// IsAuthorized reports whether p is approved. Unknown principals are not.
func (r *Registry) IsAuthorized(ctx context.Context, p principal.Principal) (bool, error) {
	var ok bool
	err := r.store.WithTx(ctx, func(tx arbitration.Tx) error {
		var err error
		ok, err = tx.ArbitratorApproved(ctx, p)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("arbitrator: lookup: %w", err)
	}
	return ok, nil
}

// RequireAuthorized fails with ErrArbitratorNotAuthorized unless p is
// approved in tx.
func RequireAuthorized(ctx context.Context, tx arbitration.Tx, p principal.Principal) error {
	ok, err := tx.ArbitratorApproved(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return arbitration.ErrArbitratorNotAuthorized
	}
	return nil
}
