package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"disputeflow/arbitration"
	"disputeflow/principal"
)

// Repository is the PostgreSQL mapping of the appeals table. Every method
// runs inside the caller's transaction.
type Repository struct{}

// NewRepository returns the appeals table mapping.
func NewRepository() *Repository {
	return &Repository{}
}

const selectColumns = `
	id, dispute_id, appellant, reason, evidence_pointer, status,
	filed_at, resolved_at, new_arbitrator, original_outcome, final_outcome
`

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id uint64) (arbitration.Appeal, error) {
	a, err := scanAppeal(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM appeals WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return arbitration.Appeal{}, arbitration.ErrAppealNotFound
		}
		return arbitration.Appeal{}, fmt.Errorf("appeal: get: %w", err)
	}
	return a, nil
}

// Save inserts a or overwrites the mutable columns of the stored row.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, a arbitration.Appeal) error {
	const upsertSQL = `
		INSERT INTO appeals (
			id, dispute_id, appellant, reason, evidence_pointer, status,
			filed_at, resolved_at, new_arbitrator, original_outcome, final_outcome
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at,
			new_arbitrator = EXCLUDED.new_arbitrator,
			final_outcome = EXCLUDED.final_outcome
	`

	var newArb *string
	if a.NewArbitrator != nil {
		s := a.NewArbitrator.String()
		newArb = &s
	}

	_, err := tx.Exec(ctx, upsertSQL,
		int64(a.ID),
		int64(a.DisputeID),
		a.Appellant.String(),
		a.Reason,
		a.EvidencePointer,
		string(a.Status),
		a.FiledAt,
		a.ResolvedAt,
		newArb,
		string(a.OriginalOutcome),
		string(a.FinalOutcome),
	)
	if err != nil {
		return fmt.Errorf("appeal: save: %w", err)
	}
	return nil
}

// ListByDispute returns the appeals of disputeID in id order.
func (r *Repository) ListByDispute(ctx context.Context, tx pgx.Tx, disputeID uint64) ([]arbitration.Appeal, error) {
	rows, err := tx.Query(ctx, `SELECT `+selectColumns+` FROM appeals WHERE dispute_id = $1 ORDER BY id`, int64(disputeID))
	if err != nil {
		return nil, fmt.Errorf("appeal: list: %w", err)
	}
	defer rows.Close()

	out := make([]arbitration.Appeal, 0, 2)
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, fmt.Errorf("appeal: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appeal: iterate: %w", err)
	}
	return out, nil
}

func scanAppeal(row pgx.Row) (arbitration.Appeal, error) {
	var (
		a         arbitration.Appeal
		id        int64
		disputeID int64
		appellant string
		status    string
		resolved  *time.Time
		newArb    *string
		original  string
		final     string
	)
	err := row.Scan(
		&id,
		&disputeID,
		&appellant,
		&a.Reason,
		&a.EvidencePointer,
		&status,
		&a.FiledAt,
		&resolved,
		&newArb,
		&original,
		&final,
	)
	if err != nil {
		return arbitration.Appeal{}, err
	}

	a.ID = uint64(id)
	a.DisputeID = uint64(disputeID)
	a.Appellant = principal.Principal(appellant)
	a.Status = arbitration.AppealStatus(status)
	a.FiledAt = a.FiledAt.UTC()
	if resolved != nil {
		ts := resolved.UTC()
		a.ResolvedAt = &ts
	}
	if newArb != nil {
		p := principal.Principal(*newArb)
		a.NewArbitrator = &p
	}
	a.OriginalOutcome = arbitration.Outcome(original)
	a.FinalOutcome = arbitration.Outcome(final)
	return a, nil
}
