package dispute

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"escrowflow/deal"
	"escrowflow/token"
)

// TestResolution_Integration runs the full dispute path against a live
// PostgreSQL: fund, dispute, resolve, and verify the ledger split.
func TestResolution_Integration(t *testing.T) {
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

	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'deals')`,
	).Scan(&exists); err != nil || !exists {
		t.Skip("database schema missing; apply migrations first")
	}

	suffix := time.Now().UnixNano()
	payer := fmt.Sprintf("0xpayer-%d", suffix)
	payee := fmt.Sprintf("0xpayee-%d", suffix)
	arb := fmt.Sprintf("0xarb-%d", suffix)
	escrow := fmt.Sprintf("vault-%d", suffix)

	ledger := token.NewLedger(pool, escrow)
	if err := ledger.Deposit(ctx, payer, "USDQ", 200); err != nil {
		t.Fatalf("seed payer balance: %v", err)
	}

	log := zap.NewNop().Sugar()
	deals := deal.NewService(pool, nil, ledger, escrow, log, nil)
	disputes := NewService(pool, nil, ledger, log, nil)

	dealID, err := deals.Create(ctx, payer, deal.CreateParams{
		RefID:              fmt.Sprintf("itest-dispute-%d", suffix),
		Payee:              payee,
		Arbiter:            arb,
		Currency:           "USDQ",
		Amount:             200,
		MilestoneAmounts:   []int64{200},
		MilestoneEndTimes:  []*time.Time{nil},
		MilestoneApprovals: []bool{true},
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM deal_events WHERE deal_id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'deal_id' = $1`, fmt.Sprint(dealID))
		pool.Exec(ctx2, `DELETE FROM deal_milestones WHERE deal_id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM deals WHERE id = $1`, dealID)
		pool.Exec(ctx2, `DELETE FROM balances WHERE address IN ($1, $2, $3, $4)`, payer, payee, arb, escrow)
	})

	if err := deals.RaiseDispute(ctx, payee, dealID); err != nil {
		t.Fatalf("raise dispute: %v", err)
	}

	res, err := disputes.Resolve(ctx, arb, dealID, 100, 100)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.NetPayer != 95 || res.NetPayee != 95 || res.Fee != 10 || res.Ruling != deal.RulingSplit {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	for addr, want := range map[string]int64{payer: 95, payee: 95, arb: 10, escrow: 0} {
		got, err := ledger.Balance(ctx, addr, "USDQ")
		if err != nil {
			t.Fatalf("read balance %s: %v", addr, err)
		}
		if got != want {
			t.Fatalf("balance %s: expected %d, got %d", addr, want, got)
		}
	}

	reader := deal.NewReader(pool)
	d, err := reader.Get(ctx, dealID)
	if err != nil {
		t.Fatalf("read deal: %v", err)
	}
	if d.Status != deal.StatusCompleted || !d.Resolved || d.Ruling != deal.RulingSplit {
		t.Fatalf("unexpected deal state: %+v", d)
	}

	// A second ruling must be rejected.
	if _, err := disputes.Resolve(ctx, arb, dealID, 200, 0); err == nil {
		t.Fatal("expected replayed resolution to fail")
	}

	records, err := List(ctx, pool, false)
	if err != nil {
		t.Fatalf("list disputes: %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.DealID == dealID && rec.Resolved {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the resolved deal in the dispute listing")
	}
}
