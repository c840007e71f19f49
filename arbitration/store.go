package arbitration

import (
	"context"

	"disputeflow/money"
	"disputeflow/principal"
)

// Store runs units of work. Implementations serialize every WithTx call
// against every other one and apply the writes of fn only if it returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of persistent state available inside a unit of work.
type Tx interface {
	// Settings returns ErrNotInitialized when the contract was never initialized.
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	Dispute(ctx context.Context, id uint64) (Dispute, error)
	SaveDispute(ctx context.Context, d Dispute) error
	ListDisputes(ctx context.Context, filter DisputeFilter) ([]Dispute, int, error)

	Appeal(ctx context.Context, id uint64) (Appeal, error)
	SaveAppeal(ctx context.Context, a Appeal) error
	ListAppeals(ctx context.Context, disputeID uint64) ([]Appeal, error)

	ArbitratorApproved(ctx context.Context, p principal.Principal) (bool, error)
	SetArbitratorApproved(ctx context.Context, p principal.Principal, approved bool) error

	Balance(ctx context.Context, denomination string, account principal.Principal) (money.Amount, error)
	SetBalance(ctx context.Context, denomination string, account principal.Principal, amount money.Amount) error

	// Enqueue stages a notification; it becomes visible only on commit.
	Enqueue(ctx context.Context, n Notification) error
}
