package deal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository owns the SQL for the deal store. Every write method runs inside
// the caller's transaction so an aborted operation leaves no partial state.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertDeal stores a funded deal and its milestones verbatim and returns the
// assigned sequential deal ID.
func (r *Repository) InsertDeal(ctx context.Context, tx pgx.Tx, params CreateParams) (Deal, error) {
	const insertSQL = `
INSERT INTO deals (ref_id, payer, payee, arbiter, currency, remaining_amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at
`

	d := Deal{
		RefID:           params.RefID,
		Payer:           params.Payer,
		Payee:           params.Payee,
		Arbiter:         params.Arbiter,
		Currency:        params.Currency,
		RemainingAmount: params.Amount,
		Status:          StatusFunded,
	}
	if err := tx.QueryRow(ctx, insertSQL,
		params.RefID,
		params.Payer,
		params.Payee,
		params.Arbiter,
		params.Currency,
		params.Amount,
		int(StatusFunded),
	).Scan(&d.ID, &d.CreatedAt); err != nil {
		return Deal{}, fmt.Errorf("deal: insert: %w", err)
	}

	for i, amount := range params.MilestoneAmounts {
		m := Milestone{
			Amount:           amount,
			EndTime:          params.MilestoneEndTimes[i],
			RequiresApproval: params.MilestoneApprovals[i],
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO deal_milestones (deal_id, idx, amount, end_time, requires_approval)
VALUES ($1, $2, $3, $4, $5)
`, d.ID, i, m.Amount, m.EndTime, m.RequiresApproval); err != nil {
			return Deal{}, fmt.Errorf("deal: insert milestone %d: %w", i, err)
		}
		d.Milestones = append(d.Milestones, m)
	}

	return d, nil
}

// GetForUpdate locks the deal row and loads it with its milestones. The row
// lock serializes all mutating operations on the deal.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, dealID int64) (Deal, error) {
	const dealSQL = `
SELECT id, ref_id, payer, payee, arbiter, currency, remaining_amount, status, is_resolved, ruling, created_at
FROM deals
WHERE id = $1
FOR UPDATE
`
	d, err := scanDeal(tx.QueryRow(ctx, dealSQL, dealID))
	if err != nil {
		return Deal{}, err
	}

	rows, err := tx.Query(ctx, `
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

// ReleaseMilestone freezes the milestone and applies the new remaining amount
// and status computed by the service.
func (r *Repository) ReleaseMilestone(ctx context.Context, tx pgx.Tx, dealID int64, index int, remaining int64, status Status) error {
	tag, err := tx.Exec(ctx, `
UPDATE deal_milestones SET is_released = true
WHERE deal_id = $1 AND idx = $2 AND NOT is_released
`, dealID, index)
	if err != nil {
		return fmt.Errorf("deal: mark milestone released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReleased
	}

	if _, err := tx.Exec(ctx, `
UPDATE deals
SET remaining_amount = $2, status = $3, updated_at = get_tx_timestamp()
WHERE id = $1
`, dealID, remaining, int(status)); err != nil {
		return fmt.Errorf("deal: update after release: %w", err)
	}
	return nil
}

// MarkDisputed moves the deal into Disputed and clears any stale resolution.
func (r *Repository) MarkDisputed(ctx context.Context, tx pgx.Tx, dealID int64) error {
	if _, err := tx.Exec(ctx, `
UPDATE deals
SET status = $2, is_resolved = false, ruling = 0, updated_at = get_tx_timestamp()
WHERE id = $1
`, dealID, int(StatusDisputed)); err != nil {
		return fmt.Errorf("deal: mark disputed: %w", err)
	}
	return nil
}

// AppendEvent writes one entry to the append-only notification log. seq is
// per-deal monotonic; callers hold the deal row lock.
func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, dealID int64, eventType, actor string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("deal: marshal event payload: %w", err)
	}
	var actorVal any
	if actor != "" {
		actorVal = actor
	}
	const q = `
INSERT INTO deal_events (deal_id, seq, type, actor, payload)
VALUES ($1, COALESCE((SELECT MAX(seq) + 1 FROM deal_events WHERE deal_id = $1), 1), $2, $3, $4::jsonb)
`
	if _, err := tx.Exec(ctx, q, dealID, eventType, actorVal, body); err != nil {
		return fmt.Errorf("deal: insert event: %w", err)
	}
	return nil
}

// EnqueueOutbox stages a notification for the background dispatcher.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("deal: marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("deal: enqueue outbox: %w", err)
	}
	return nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var (
		d         Deal
		statusInt int
		rulingInt int
	)
	err := row.Scan(&d.ID, &d.RefID, &d.Payer, &d.Payee, &d.Arbiter, &d.Currency,
		&d.RemainingAmount, &statusInt, &d.Resolved, &rulingInt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deal{}, ErrNotFound
	}
	if err != nil {
		return Deal{}, fmt.Errorf("deal: scan: %w", err)
	}

	if d.Status, err = StatusFromInt(statusInt); err != nil {
		return Deal{}, err
	}
	if d.Ruling, err = RulingFromInt(rulingInt); err != nil {
		return Deal{}, err
	}
	return d, nil
}
