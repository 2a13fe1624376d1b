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

// All returns the invariant checks run against a live dispute database. Each
// query must return zero rows; any row is a violation.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_tracking_id_format",
			SQL:  `SELECT id, tracking_id FROM disputes WHERE tracking_id !~ '^DIS-[0-9A-F]{12}$'`,
		},
		{
			Name: "O2_tracking_id_unique",
			SQL: `SELECT tracking_id, COUNT(*) FROM disputes
                  GROUP BY tracking_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_resolved_at_consistency",
			SQL: `SELECT id, status, resolved_at FROM disputes
                  WHERE (status = 'resolved' AND resolved_at IS NULL)
                     OR (status <> 'resolved' AND resolved_at IS NOT NULL)`,
		},
		{
			Name: "O4_subcategory_linkage",
			SQL: `SELECT d.id FROM disputes d
                  JOIN dispute_subcategories s ON s.id = d.subcategory_id
                  WHERE s.category_id <> d.category_id`,
		},
		{
			Name: "O5_single_file_per_dispute",
			SQL: `SELECT dispute_id, COUNT(*) FROM dispute_files
                  GROUP BY dispute_id HAVING COUNT(*) > 1`,
		},
		{
			// The reply transaction reopens resolved disputes under FOR UPDATE,
			// so a resolved dispute never keeps a counterpart reply meaningfully
			// newer than its resolution. A short grace window absorbs replies
			// that commit while the sweep statement is executing.
			Name: "O6_no_resolved_with_newer_counterpart",
			SQL: `SELECT d.id FROM disputes d
                  WHERE d.status = 'resolved'
                    AND EXISTS (
                        SELECT 1 FROM replies r
                        WHERE r.dispute_id = d.id
                          AND r."group" = 'sterling'
                          AND r.created_at > d.resolved_at + interval '5 seconds')`,
		},
		{
			Name: "O7_reply_snapshot_present",
			SQL:  `SELECT id FROM replies WHERE email = '' OR "group" = ''`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
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
