package deal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader serves the read-only accessors over the deal store.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// Get loads a deal and its milestones without locking.
func (r *Reader) Get(ctx context.Context, dealID int64) (Deal, error) {
	const q = `
SELECT id, ref_id, payer, payee, arbiter, currency, remaining_amount, status, is_resolved, ruling, created_at
FROM deals
WHERE id = $1
`
	d, err := scanDeal(r.pool.QueryRow(ctx, q, dealID))
	if err != nil {
		return Deal{}, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT amount, is_released, end_time, requires_approval
FROM deal_milestones
WHERE deal_id = $1
ORDER BY idx
`, dealID)
	if err != nil {
		return Deal{}, fmt.Errorf("deal: load milestones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Milestone
		if err := rows.Scan(&m.Amount, &m.Released, &m.EndTime, &m.RequiresApproval); err != nil {
			return Deal{}, fmt.Errorf("deal: scan milestone: %w", err)
		}
		d.Milestones = append(d.Milestones, m)
	}
	if err := rows.Err(); err != nil {
		return Deal{}, fmt.Errorf("deal: iterate milestones: %w", err)
	}
	return d, nil
}

// GetMilestone returns one milestone by index.
func (r *Reader) GetMilestone(ctx context.Context, dealID int64, index int) (Milestone, error) {
	d, err := r.Get(ctx, dealID)
	if err != nil {
		return Milestone{}, err
	}
	if index < 0 || index >= len(d.Milestones) {
		return Milestone{}, ErrBadIndex
	}
	return d.Milestones[index], nil
}
