package deal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"escrowflow/token"
)

// TestDealLifecycle_Integration connects to a real PostgreSQL via DATABASE_URL
// and runs create plus release against the ledger-backed adapter.
func TestDealLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"deals", "deal_milestones", "deal_events", "outbox", "balances"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skipf("database schema missing table %s; apply migrations first", table)
		}
	}

	suffix := time.Now().UnixNano()
	payer := fmt.Sprintf("0xpayer-%d", suffix)
	payee := fmt.Sprintf("0xpayee-%d", suffix)
	arb := fmt.Sprintf("0xarb-%d", suffix)
	escrow := fmt.Sprintf("vault-%d", suffix)

	ledger := token.NewLedger(pool, escrow)
	if err := ledger.Deposit(ctx, payer, "USDQ", 1000); err != nil {
		t.Fatalf("seed payer balance: %v", err)
	}

	svc := NewService(pool, nil, ledger, escrow, zap.NewNop().Sugar(), nil)

	dealID, err := svc.Create(ctx, payer, CreateParams{
		RefID:              fmt.Sprintf("itest-%d", suffix),
		Payee:              payee,
		Arbiter:            arb,
		Currency:           "USDQ",
		Amount:             1000,
		MilestoneAmounts:   []int64{400, 600},
		MilestoneEndTimes:  []*time.Time{nil, nil},
		MilestoneApprovals: []bool{false, false},
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM deal_events WHERE deal_id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'deal_id' = $1::text`, fmt.Sprint(dealID))
		pool.Exec(ctx2, `DELETE FROM deal_milestones WHERE deal_id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM deals WHERE id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM balances WHERE address IN ($1, $2, $3, $4)`, payer, payee, arb, escrow)
	})

	// Funding moved the full amount from the payer into custody.
	if got, _ := ledger.Balance(ctx, payer, "USDQ"); got != 0 {
		t.Fatalf("expected payer balance 0 after funding, got %d", got)
	}
	if got, _ := ledger.Balance(ctx, escrow, "USDQ"); got != 1000 {
		t.Fatalf("expected escrow balance 1000 after funding, got %d", got)
	}

	result, err := svc.ReleaseMilestone(ctx, payer, dealID, 0)
	if err != nil {
		t.Fatalf("release milestone: %v", err)
	}
	wantFee := ReleaseFee(400)
	if result.Payout != 400-wantFee || result.Fee != wantFee {
		t.Fatalf("unexpected release result: %+v", result)
	}

	if got, _ := ledger.Balance(ctx, payee, "USDQ"); got != result.Payout {
		t.Fatalf("expected payee balance %d, got %d", result.Payout, got)
	}

	reader := NewReader(pool)
	d, err := reader.Get(ctx, dealID)
	if err != nil {
		t.Fatalf("read deal: %v", err)
	}
	if d.Status != StatusActive || d.RemainingAmount != 600 {
		t.Fatalf("unexpected deal state: status=%s remaining=%d", d.Status, d.RemainingAmount)
	}
	if !d.Milestones[0].Released || d.Milestones[1].Released {
		t.Fatalf("unexpected milestone flags: %+v", d.Milestones)
	}

	// A replay of the same release must be rejected without moving funds.
	if _, err := svc.ReleaseMilestone(ctx, payer, dealID, 0); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased on replay, got %v", err)
	}
	if got, _ := ledger.Balance(ctx, payee, "USDQ"); got != result.Payout {
		t.Fatalf("replay moved funds: payee balance %d", got)
	}

	// The event log carries the creation and the single release in order.
	var evCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM deal_events WHERE deal_id = $1 AND type IN ($2, $3)`,
		dealID, EventDealCreated, EventMilestoneReleased,
	).Scan(&evCount); err != nil {
		t.Fatalf("verify events: %v", err)
	}
	if evCount != 2 {
		t.Fatalf("expected 2 events, got %d", evCount)
	}

	var outCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE topic = $1 AND payload->>'deal_id' = $2`,
		TopicMilestoneReleased, fmt.Sprint(dealID),
	).Scan(&outCount); err != nil {
		t.Fatalf("verify outbox: %v", err)
	}
	if outCount != 1 {
		t.Fatalf("expected 1 outbox message, got %d", outCount)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
