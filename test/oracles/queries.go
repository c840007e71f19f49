package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/principal"
)

type Oracle struct {
	Name string
	SQL  string
	Args func(p Params) []any
}

// Params carries run-specific values some oracles compare against.
type Params struct {
	Custodian   string
	TotalSupply string
}

// NewParams binds the escrow account and the total credited supply.
func NewParams(custodian principal.Principal, totalSupply string) Params {
	return Params{Custodian: custodian.String(), TotalSupply: totalSupply}
}

func noArgs(Params) []any { return nil }

// All returns the invariants a healthy database satisfies at any committed
// point. Each query returns the offending rows, so an empty result passes.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_dispute_ids_sequential",
			SQL: `SELECT s.dispute_counter, COUNT(d.id), COALESCE(MAX(d.id), 0)
                  FROM arbitration_settings s LEFT JOIN disputes d ON TRUE
                  GROUP BY s.dispute_counter
                  HAVING s.dispute_counter <> COUNT(d.id) OR s.dispute_counter <> COALESCE(MAX(d.id), 0)`,
			Args: noArgs,
		},
		{
			Name: "O2_appeal_ids_sequential",
			SQL: `SELECT s.appeal_counter, COUNT(a.id), COALESCE(MAX(a.id), 0)
                  FROM arbitration_settings s LEFT JOIN appeals a ON TRUE
                  GROUP BY s.appeal_counter
                  HAVING s.appeal_counter <> COUNT(a.id) OR s.appeal_counter <> COALESCE(MAX(a.id), 0)`,
			Args: noArgs,
		},
		{
			Name: "O3_status_consistency",
			SQL: `SELECT id, status, outcome, arbitrator, resolved_at FROM disputes
                  WHERE (status = 'filed' AND (arbitrator IS NOT NULL OR outcome <> 'pending' OR resolved_at IS NOT NULL))
                     OR (status = 'under_review' AND (arbitrator IS NULL OR outcome <> 'pending' OR resolved_at IS NOT NULL))
                     OR (status = 'resolved' AND (arbitrator IS NULL OR outcome = 'pending' OR resolved_at IS NULL))
                     OR status NOT IN ('filed','under_review','resolved')`,
			Args: noArgs,
		},
		{
			Name: "O4_appeal_eligibility",
			SQL: `SELECT a.id, a.dispute_id, a.appellant FROM appeals a
                  JOIN disputes d ON d.id = a.dispute_id
                  WHERE d.status <> 'resolved'
                     OR a.appellant NOT IN (d.claimant, d.respondent)
                     OR a.filed_at < d.resolved_at`,
			Args: noArgs,
		},
		{
			Name: "O5_appeal_resolution_shape",
			SQL: `SELECT id, status, final_outcome, resolved_at FROM appeals
                  WHERE (status = 'pending' AND (resolved_at IS NOT NULL OR final_outcome <> 'pending'))
                     OR (status = 'upheld' AND (resolved_at IS NULL OR new_arbitrator IS NULL OR final_outcome = 'pending'))
                     OR status NOT IN ('pending','upheld')`,
			Args: noArgs,
		},
		{
			Name: "O6_escrow_holds_unreleased_fees",
			SQL: `SELECT COALESCE(b.amount, 0) AS held, expected.amount AS expected
                  FROM arbitration_settings s
                  CROSS JOIN LATERAL (
                      SELECT s.filing_fee * (SELECT COUNT(*) FROM disputes WHERE status <> 'resolved')
                           + s.appeal_fee * (SELECT COUNT(*) FROM appeals) AS amount
                  ) expected
                  LEFT JOIN balances b ON b.denomination = s.denomination AND b.account = $1
                  WHERE COALESCE(b.amount, 0) <> expected.amount`,
			Args: func(p Params) []any { return []any{p.Custodian} },
		},
		{
			Name: "O7_supply_conserved",
			SQL: `SELECT SUM(amount) FROM balances
                  HAVING COALESCE(SUM(amount), 0) <> $1::numeric`,
			Args: func(p Params) []any { return []any{p.TotalSupply} },
		},
		{
			Name: "O8_no_negative_balance",
			SQL:  `SELECT denomination, account, amount FROM balances WHERE amount < 0`,
			Args: noArgs,
		},
		{
			Name: "O9_notification_per_transition",
			SQL: `SELECT 'filed' AS topic WHERE (SELECT COUNT(*) FROM outbox WHERE topic = 'filed') <> (SELECT COUNT(*) FROM disputes)
                  UNION ALL
                  SELECT 'resolved' WHERE (SELECT COUNT(*) FROM outbox WHERE topic = 'resolved') <> (SELECT COUNT(*) FROM disputes WHERE status = 'resolved')
                  UNION ALL
                  SELECT 'appeal_filed' WHERE (SELECT COUNT(*) FROM outbox WHERE topic = 'appeal_filed') <> (SELECT COUNT(*) FROM appeals)
                  UNION ALL
                  SELECT 'appeal_resolved' WHERE (SELECT COUNT(*) FROM outbox WHERE topic = 'appeal_resolved') <> (SELECT COUNT(*) FROM appeals WHERE status <> 'pending')`,
			Args: noArgs,
		},
		{
			Name: "O10_history_guards_installed",
			SQL: `SELECT 'missing_history_guard' AS detail
                  WHERE (SELECT COUNT(*) FROM pg_trigger WHERE tgname IN ('disputes_history_guard','appeals_history_guard')) < 2`,
			Args: noArgs,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool, p Params) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL, o.Args(p)...)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
