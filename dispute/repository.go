package dispute

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

// Repository is the PostgreSQL mapping of the disputes table. Every method
// runs inside the caller's transaction.
type Repository struct{}

// NewRepository returns the disputes table mapping.
func NewRepository() *Repository {
	return &Repository{}
}

const selectColumns = `
	id, claimant, respondent, campaign_id::text, claim_amount::text, denomination,
	description, evidence_pointer, status, outcome, resolution_notes,
	filed_at, resolved_at, arbitrator
`

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, id uint64) (arbitration.Dispute, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM disputes WHERE id = $1`, int64(id))
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return arbitration.Dispute{}, arbitration.ErrDisputeNotFound
		}
		return arbitration.Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

// Save inserts d or overwrites the stored row with the same id.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, d arbitration.Dispute) error {
	const upsertSQL = `
		INSERT INTO disputes (
			id, claimant, respondent, campaign_id, claim_amount, denomination,
			description, evidence_pointer, status, outcome, resolution_notes,
			filed_at, resolved_at, arbitrator
		)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			resolution_notes = EXCLUDED.resolution_notes,
			resolved_at = EXCLUDED.resolved_at,
			arbitrator = EXCLUDED.arbitrator
	`

	_, err := tx.Exec(ctx, upsertSQL,
		int64(d.ID),
		d.Claimant.String(),
		d.Respondent.String(),
		strconv.FormatUint(d.CampaignID, 10),
		d.ClaimAmount.String(),
		d.Denomination,
		d.Description,
		d.EvidencePointer,
		string(d.Status),
		string(d.Outcome),
		d.ResolutionNotes,
		d.FiledAt,
		d.ResolvedAt,
		optionalPrincipal(d.Arbitrator),
	)
	if err != nil {
		return fmt.Errorf("dispute: save: %w", err)
	}
	return nil
}

// List returns one page of disputes in id order and the total matching count.
func (r *Repository) List(ctx context.Context, tx pgx.Tx, filter arbitration.DisputeFilter) ([]arbitration.Dispute, int, error) {
	where := ""
	args := []any{}
	if !filter.Participant.IsZero() {
		where = ` WHERE claimant = $1 OR respondent = $1 OR arbitrator = $1`
		args = append(args, filter.Participant.String())
	}

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM disputes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dispute: count: %w", err)
	}

	query := `SELECT ` + selectColumns + ` FROM disputes` + where + ` ORDER BY id`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]arbitration.Dispute, 0, 8)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, total, nil
}

func scanDispute(row pgx.Row) (arbitration.Dispute, error) {
	var (
		d          arbitration.Dispute
		id         int64
		claimant   string
		respondent string
		campaignID string
		claimAmt   string
		status     string
		outcome    string
		resolvedAt *time.Time
		arbitrator *string
	)
	err := row.Scan(
		&id,
		&claimant,
		&respondent,
		&campaignID,
		&claimAmt,
		&d.Denomination,
		&d.Description,
		&d.EvidencePointer,
		&status,
		&outcome,
		&d.ResolutionNotes,
		&d.FiledAt,
		&resolvedAt,
		&arbitrator,
	)
	if err != nil {
		return arbitration.Dispute{}, err
	}

	d.ID = uint64(id)
	d.Claimant = principal.Principal(claimant)
	d.Respondent = principal.Principal(respondent)
	d.CampaignID, err = strconv.ParseUint(campaignID, 10, 64)
	if err != nil {
		return arbitration.Dispute{}, fmt.Errorf("campaign id %q: %w", campaignID, err)
	}
	d.ClaimAmount, err = money.Parse(claimAmt)
	if err != nil {
		return arbitration.Dispute{}, err
	}
	d.Status = arbitration.DisputeStatus(status)
	d.Outcome = arbitration.Outcome(outcome)
	d.FiledAt = d.FiledAt.UTC()
	if resolvedAt != nil {
		ts := resolvedAt.UTC()
		d.ResolvedAt = &ts
	}
	if arbitrator != nil {
		p := principal.Principal(*arbitrator)
		d.Arbitrator = &p
	}
	return d, nil
}

func optionalPrincipal(p *principal.Principal) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}
