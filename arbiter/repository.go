package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository owns the SQL for the arbiter registry.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertStake adds amount to the arbiter's stake, creating the profile with
// default reputation on first stake. An arbiter whose stake was fully slashed
// re-enters with a fresh reputation on the next stake, matching the implicit
// "zero stake means new profile" behavior of the original registry.
func (r *Repository) UpsertStake(ctx context.Context, tx pgx.Tx, address string, amount int64) (Profile, error) {
	const q = `
INSERT INTO arbiter_profiles (address, stake, reputation, disputes_resolved, is_active)
VALUES ($1, $2, $3, 0, true)
ON CONFLICT (address) DO UPDATE SET
    stake             = arbiter_profiles.stake + EXCLUDED.stake,
    reputation        = CASE WHEN arbiter_profiles.stake = 0 THEN $3 ELSE arbiter_profiles.reputation END,
    disputes_resolved = CASE WHEN arbiter_profiles.stake = 0 THEN 0 ELSE arbiter_profiles.disputes_resolved END,
    is_active         = CASE WHEN arbiter_profiles.stake = 0 THEN true ELSE arbiter_profiles.is_active END,
    updated_at        = get_tx_timestamp()
RETURNING address, stake, reputation, disputes_resolved, is_active, created_at
`
	var p Profile
	if err := tx.QueryRow(ctx, q, address, amount, DefaultReputation).
		Scan(&p.Address, &p.Stake, &p.Reputation, &p.DisputesResolved, &p.Active, &p.CreatedAt); err != nil {
		return Profile{}, fmt.Errorf("arbiter: upsert stake: %w", err)
	}
	return p, nil
}

// GetForUpdate locks the profile row.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, address string) (Profile, error) {
	const q = `
SELECT address, stake, reputation, disputes_resolved, is_active, created_at
FROM arbiter_profiles
WHERE address = $1
FOR UPDATE
`
	var p Profile
	err := tx.QueryRow(ctx, q, address).
		Scan(&p.Address, &p.Stake, &p.Reputation, &p.DisputesResolved, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("arbiter: load for update: %w", err)
	}
	return p, nil
}

// ApplySlash writes the post-slash stake, reputation and active flag.
func (r *Repository) ApplySlash(ctx context.Context, tx pgx.Tx, address string, stake int64, reputation int, active bool) error {
	if _, err := tx.Exec(ctx, `
UPDATE arbiter_profiles
SET stake = $2, reputation = $3, is_active = $4, updated_at = get_tx_timestamp()
WHERE address = $1
`, address, stake, reputation, active); err != nil {
		return fmt.Errorf("arbiter: apply slash: %w", err)
	}
	return nil
}

// Get reads a profile without locking.
func (r *Repository) Get(ctx context.Context, address string) (Profile, error) {
	const q = `
SELECT address, stake, reputation, disputes_resolved, is_active, created_at
FROM arbiter_profiles
WHERE address = $1
`
	var p Profile
	err := r.pool.QueryRow(ctx, q, address).
		Scan(&p.Address, &p.Stake, &p.Reputation, &p.DisputesResolved, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("arbiter: load: %w", err)
	}
	return p, nil
}

// AppendRegistryEvent writes a registry notification to the append-only log.
// Registry events are not tied to a deal, so deal_id and seq stay NULL.
func (r *Repository) AppendRegistryEvent(ctx context.Context, tx pgx.Tx, eventType, actor string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("arbiter: marshal event payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO deal_events (type, actor, payload)
VALUES ($1, $2, $3::jsonb)
`, eventType, actor, body); err != nil {
		return fmt.Errorf("arbiter: insert event: %w", err)
	}
	return nil
}

// EnqueueOutbox stages a registry notification for the dispatcher.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("arbiter: marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("arbiter: enqueue outbox: %w", err)
	}
	return nil
}
