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

// All returns the journal invariants. Each query returns offending rows; an
// empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_seq_gapless",
			SQL: `SELECT workflow_id, seq, rn FROM (
                      SELECT workflow_id, seq,
                             ROW_NUMBER() OVER (PARTITION BY workflow_id ORDER BY seq) AS rn
                      FROM onboarding_events) s
                  WHERE seq <> rn`,
		},
		{
			Name: "O2_event_journaled_once",
			SQL: `SELECT payload->>'event_id', COUNT(*) FROM onboarding_events
                  GROUP BY payload->>'event_id' HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_outbox_paired",
			SQL: `WITH e AS (
                      SELECT workflow_id::text AS wid, COUNT(*) AS n FROM onboarding_events GROUP BY 1),
                  o AS (
                      SELECT payload->>'workflow_id' AS wid, COUNT(*) AS n FROM outbox GROUP BY 1)
                  SELECT e.wid, e.n, o.n FROM e FULL OUTER JOIN o ON o.wid = e.wid
                  WHERE e.n IS DISTINCT FROM o.n`,
		},
		{
			Name: "O4_progress_monotonic",
			SQL: `WITH p AS (
                      SELECT workflow_id, seq, progress,
                             LAG(progress) OVER (PARTITION BY workflow_id ORDER BY seq) AS prev
                      FROM onboarding_events)
                  SELECT * FROM p WHERE prev IS NOT NULL AND progress < prev`,
		},
		{
			Name: "O5_stage_order",
			SQL: `SELECT workflow_id FROM onboarding_events
                  GROUP BY workflow_id
                  HAVING MIN(seq) FILTER (WHERE type = 'identity_verified') < MAX(seq) FILTER (WHERE type = 'document_signed')
                      OR MIN(seq) FILTER (WHERE type = 'transfer_completed') < MAX(seq) FILTER (WHERE type = 'identity_verified')
                      OR MIN(seq) FILTER (WHERE type = 'document_signed') < MAX(seq) FILTER (WHERE type = 'committed')`,
		},
		{
			Name: "O6_single_transfer",
			SQL: `SELECT workflow_id, COUNT(*) FROM onboarding_events
                  WHERE type = 'transfer_completed'
                  GROUP BY workflow_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_transfer_completes_progress",
			SQL: `SELECT id FROM onboarding_events
                  WHERE type = 'transfer_completed' AND progress <> 100`,
		},
		{
			Name: "O8_outbox_stale",
			SQL: `SELECT id FROM outbox
                  WHERE status <> 'processed'
                    AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
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
