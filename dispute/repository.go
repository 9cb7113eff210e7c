package dispute

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/deal"
)

// Repository owns the SQL for dispute resolution. Deal loading and the
// notification log are shared with the deal store.
type Repository struct {
	deals *deal.Repository
}

func NewRepository() *Repository {
	return &Repository{deals: deal.NewRepository()}
}

func (r *Repository) GetDealForUpdate(ctx context.Context, tx pgx.Tx, dealID int64) (deal.Deal, error) {
	return r.deals.GetForUpdate(ctx, tx, dealID)
}

func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, dealID int64, eventType, actor string, payload map[string]any) error {
	return r.deals.AppendEvent(ctx, tx, dealID, eventType, actor, payload)
}

func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return r.deals.EnqueueOutbox(ctx, tx, topic, payload)
}

// MarkResolved closes the deal with its final ruling. The remaining amount is
// left untouched: the deal record keeps the pre-ruling balance as its last
// accounting state.
func (r *Repository) MarkResolved(ctx context.Context, tx pgx.Tx, dealID int64, ruling deal.Ruling) error {
	if _, err := tx.Exec(ctx, `
UPDATE deals
SET is_resolved = true, ruling = $2, status = $3, updated_at = get_tx_timestamp()
WHERE id = $1
`, dealID, int(ruling), int(deal.StatusCompleted)); err != nil {
		return fmt.Errorf("dispute: mark resolved: %w", err)
	}
	return nil
}

// CreditResolution bumps the arbiter's resolved-dispute counter.
func (r *Repository) CreditResolution(ctx context.Context, tx pgx.Tx, arbiter string) error {
	if _, err := tx.Exec(ctx, `
UPDATE arbiter_profiles
SET disputes_resolved = disputes_resolved + 1, updated_at = get_tx_timestamp()
WHERE address = $1
`, arbiter); err != nil {
		return fmt.Errorf("dispute: credit resolution: %w", err)
	}
	return nil
}

// List returns disputed deals, or every dispute ever raised when openOnly is
// false.
func List(ctx context.Context, pool *pgxpool.Pool, openOnly bool) ([]Record, error) {
	query := `
SELECT id, payer, payee, arbiter, status, is_resolved, ruling, updated_at
FROM deals
WHERE status = $1
`
	args := []any{int(deal.StatusDisputed)}
	if !openOnly {
		query += ` OR is_resolved`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var (
			rec       Record
			statusInt int
			rulingInt int
		)
		if err := rows.Scan(&rec.DealID, &rec.Payer, &rec.Payee, &rec.Arbiter, &statusInt, &rec.Resolved, &rulingInt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		if rec.Status, err = deal.StatusFromInt(statusInt); err != nil {
			return nil, err
		}
		if rec.Ruling, err = deal.RulingFromInt(rulingInt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}
