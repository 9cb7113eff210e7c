// Package actors holds the concurrent workloads for the settlement stress
// test. Each actor loops until stop closes, driving one side of the deal
// lifecycle and tolerating the domain rejections that contention produces.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/arbiter"
	"escrowflow/deal"
	"escrowflow/dispute"
	"escrowflow/token"
)

// domainRejection reports whether err is an expected guard failure under
// contention rather than an infrastructure fault.
func domainRejection(err error) bool {
	for _, sentinel := range []error{
		deal.ErrBadStatus,
		deal.ErrAlreadyReleased,
		deal.ErrBadIndex,
		deal.ErrTimeLocked,
		deal.ErrNotAuthorized,
		deal.ErrTransferFailed,
		dispute.ErrNotDisputed,
		dispute.ErrAlreadyResolved,
		dispute.ErrOverRemaining,
		arbiter.ErrLowStake,
		arbiter.ErrTransferFailed,
		token.ErrInsufficientFunds,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Funder keeps creating small funded deals between the fixed parties. The
// payer balance is topped up so funding pulls keep succeeding.
func Funder(ctx context.Context, svc *deal.Service, ledger *token.Ledger, payer, payee, arb string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		amount := int64(100 + rand.Intn(400))
		if err := ledger.Deposit(ctx, payer, "USDQ", amount); err != nil {
			return fmt.Errorf("funder deposit: %w", err)
		}

		half := amount / 2
		_, err := svc.Create(ctx, payer, deal.CreateParams{
			RefID:              fmt.Sprintf("stress-%d", rand.Int63()),
			Payee:              payee,
			Arbiter:            arb,
			Currency:           "USDQ",
			Amount:             amount,
			MilestoneAmounts:   []int64{half, amount - half},
			MilestoneEndTimes:  []*time.Time{nil, nil},
			MilestoneApprovals: []bool{false, false},
		})
		if err != nil && !domainRejection(err) {
			return fmt.Errorf("funder create: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Releaser races to release random milestones of random live deals. Replays
// and bad statuses are expected; anything else is a failure.
func Releaser(ctx context.Context, pool *pgxpool.Pool, svc *deal.Service, caller string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		dealID, ok := pickDeal(ctx, pool, []int{int(deal.StatusFunded), int(deal.StatusActive)})
		if ok {
			_, err := svc.ReleaseMilestone(ctx, caller, dealID, rand.Intn(2))
			if err != nil && !errors.Is(err, deal.ErrNotFound) && !domainRejection(err) {
				return fmt.Errorf("releaser: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Disputer escalates random live deals.
func Disputer(ctx context.Context, pool *pgxpool.Pool, svc *deal.Service, caller string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		dealID, ok := pickDeal(ctx, pool, []int{int(deal.StatusFunded), int(deal.StatusActive)})
		if ok {
			err := svc.RaiseDispute(ctx, caller, dealID)
			if err != nil && !errors.Is(err, deal.ErrNotFound) && !domainRejection(err) {
				return fmt.Errorf("disputer: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Resolver rules on random disputed deals with an arbitrary split of the
// remaining amount.
func Resolver(ctx context.Context, pool *pgxpool.Pool, svc *dispute.Service, caller string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		dealID, ok := pickDeal(ctx, pool, []int{int(deal.StatusDisputed)})
		if ok {
			var remaining int64
			if err := pool.QueryRow(ctx, `SELECT remaining_amount FROM deals WHERE id=$1`, dealID).Scan(&remaining); err == nil && remaining > 0 {
				payerShare := rand.Int63n(remaining + 1)
				_, err := svc.Resolve(ctx, caller, dealID, payerShare, remaining-payerShare)
				if err != nil && !errors.Is(err, deal.ErrNotFound) && !domainRejection(err) {
					return fmt.Errorf("resolver: %w", err)
				}
			}
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// Staker repeatedly tops up an arbiter bond, exercising the registry upsert
// under contention.
func Staker(ctx context.Context, svc *arbiter.Service, ledger *token.Ledger, caller string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		amount := int64(100 + rand.Intn(100))
		if err := ledger.Deposit(ctx, caller, "USDQ", amount); err != nil {
			return fmt.Errorf("staker deposit: %w", err)
		}
		if _, err := svc.Register(ctx, caller, amount); err != nil && !domainRejection(err) {
			return fmt.Errorf("staker register: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED, randomly
// failing some deliveries to exercise the retry path.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', processed_at=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// pickDeal returns a random deal id currently in one of the given statuses.
func pickDeal(ctx context.Context, pool *pgxpool.Pool, statuses []int) (int64, bool) {
	var dealID int64
	err := pool.QueryRow(ctx,
		`SELECT id FROM deals WHERE status = ANY($1) ORDER BY random() LIMIT 1`,
		statuses,
	).Scan(&dealID)
	if err != nil {
		return 0, false
	}
	return dealID, true
}
