package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestLedger_Integration exercises the balance transfer path against a live
// PostgreSQL via DATABASE_URL.
func TestLedger_Integration(t *testing.T) {
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
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'balances')`,
	).Scan(&exists); err != nil || !exists {
		t.Skip("database schema missing; apply migrations first")
	}

	suffix := time.Now().UnixNano()
	alice := fmt.Sprintf("0xalice-%d", suffix)
	bob := fmt.Sprintf("0xbob-%d", suffix)
	custody := fmt.Sprintf("vault-%d", suffix)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM balances WHERE address IN ($1, $2, $3)`, alice, bob, custody)
	})

	ledger := NewLedger(pool, custody)

	if err := ledger.Deposit(ctx, alice, "USDQ", 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := ledger.TransferFrom(ctx, "USDQ", alice, bob, 200); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	for addr, want := range map[string]int64{alice: 300, bob: 200} {
		got, err := ledger.Balance(ctx, addr, "USDQ")
		if err != nil {
			t.Fatalf("balance %s: %v", addr, err)
		}
		if got != want {
			t.Fatalf("balance %s: expected %d, got %d", addr, want, got)
		}
	}

	// An uncovered debit fails and leaves both balances untouched.
	if err := ledger.TransferFrom(ctx, "USDQ", alice, bob, 301); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got, _ := ledger.Balance(ctx, alice, "USDQ"); got != 300 {
		t.Fatalf("failed transfer moved funds: alice has %d", got)
	}

	// A sender with no balance row at all reads as insufficient.
	if err := ledger.TransferFrom(ctx, "USDQ", "0xnobody", bob, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for unknown sender, got %v", err)
	}

	// Transfer sends from the custody account.
	if err := ledger.Deposit(ctx, custody, "USDQ", 50); err != nil {
		t.Fatalf("deposit custody: %v", err)
	}
	if err := ledger.Transfer(ctx, "USDQ", bob, 50); err != nil {
		t.Fatalf("custody transfer: %v", err)
	}
	if got, _ := ledger.Balance(ctx, bob, "USDQ"); got != 250 {
		t.Fatalf("expected bob 250, got %d", got)
	}
}

func TestLedger_RejectsBadAmounts(t *testing.T) {
	ledger := NewLedger(nil, "vault")

	if err := ledger.TransferFrom(context.Background(), "USDQ", "a", "b", 0); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount for zero, got %v", err)
	}
	if err := ledger.TransferFrom(context.Background(), "USDQ", "a", "b", -5); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount for negative, got %v", err)
	}
	if err := ledger.Deposit(context.Background(), "a", "USDQ", 0); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount for zero deposit, got %v", err)
	}
}
