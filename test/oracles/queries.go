// Package oracles holds the SQL invariants checked while the stress actors
// run. A row returned by any oracle is a consistency violation.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_remaining_nonnegative",
			SQL:  `SELECT id, remaining_amount FROM deals WHERE remaining_amount < 0`,
		},
		{
			// Until a ruling freezes the balance, the remaining amount must
			// equal the milestone total minus what has been released.
			Name: "O2_milestone_conservation",
			SQL: `SELECT d.id, d.remaining_amount, m.total, m.released
                  FROM deals d
                  JOIN (SELECT deal_id,
                               SUM(amount) AS total,
                               COALESCE(SUM(amount) FILTER (WHERE is_released), 0) AS released
                        FROM deal_milestones GROUP BY deal_id) m ON m.deal_id = d.id
                  WHERE NOT d.is_resolved
                    AND d.remaining_amount <> m.total - m.released`,
		},
		{
			Name: "O3_event_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT deal_id, seq,
                             LAG(seq) OVER (PARTITION BY deal_id ORDER BY seq) AS prev
                      FROM deal_events WHERE deal_id IS NOT NULL)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O4_resolved_implies_completed_ruling",
			SQL:  `SELECT id, status, ruling FROM deals WHERE is_resolved AND (status <> 4 OR ruling = 0)`,
		},
		{
			// A deal completed by releases (not by a ruling) must have every
			// milestone released and nothing remaining.
			Name: "O5_completed_by_release_is_drained",
			SQL: `SELECT d.id FROM deals d
                  WHERE d.status = 4 AND NOT d.is_resolved
                    AND (d.remaining_amount <> 0
                         OR EXISTS (SELECT 1 FROM deal_milestones m
                                    WHERE m.deal_id = d.id AND NOT m.is_released))`,
		},
		{
			Name: "O6_released_milestones_immutable",
			SQL: `SELECT e.deal_id, e.payload->>'index' AS idx, COUNT(*)
                  FROM deal_events e
                  WHERE e.type = 'MILESTONE_RELEASED'
                  GROUP BY e.deal_id, e.payload->>'index'
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_balance_nonnegative",
			SQL:  `SELECT address, currency, amount FROM balances WHERE amount < 0`,
		},
		{
			Name: "O8_outbox_staleness",
			SQL: `SELECT id, topic, status, attempts FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_arbiter_bounds",
			SQL: `SELECT address, stake, reputation FROM arbiter_profiles
                  WHERE stake < 0 OR reputation < 0 OR reputation > 100`,
		},
		{
			Name: "O10_disputed_never_resolved",
			SQL:  `SELECT id FROM deals WHERE status = 3 AND is_resolved`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
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
	}
	return "", "", nil
}
