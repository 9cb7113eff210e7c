package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"escrowflow/admin"
	"escrowflow/arbiter"
	"escrowflow/deal"
	"escrowflow/dispute"
	"escrowflow/test/actors"
	"escrowflow/test/chaos"
	"escrowflow/test/infra"
	"escrowflow/test/oracles"
	"escrowflow/token"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestSettlementConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed engine config and the arbiter bond
	adminAddr := fmt.Sprintf("0xadmin-%d", rand.Int63())
	arbAddr := fmt.Sprintf("0xarb-%d", rand.Int63())
	escrow := fmt.Sprintf("vault-%d", rand.Int63())

	log := zap.NewNop().Sugar()
	ledger := token.NewLedger(pool, escrow)
	adminSvc := admin.NewService(pool)
	if err := adminSvc.Initialize(ctx, adminAddr); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := adminSvc.InitializeRegistry(ctx, "USDQ", 100); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	dealSvc := deal.NewService(pool, nil, ledger, escrow, log, nil)
	disputeSvc := dispute.NewService(pool, nil, ledger, log, nil)
	arbiterSvc := arbiter.NewService(pool, arbiter.NewRepository(pool), adminSvc, ledger, escrow, log, nil)

	if err := ledger.Deposit(ctx, arbAddr, "USDQ", 1000); err != nil {
		t.Fatalf("seed arbiter balance: %v", err)
	}
	if _, err := arbiterSvc.Register(ctx, arbAddr, 1000); err != nil {
		t.Fatalf("seed arbiter bond: %v", err)
	}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// payers and payees battling over the same deal population
	for i := 0; i < *flConcurrency; i++ {
		payer := fmt.Sprintf("0xpayer-%d", i)
		payee := fmt.Sprintf("0xpayee-%d", i)
		g.Go(func() error {
			return actors.Funder(ctx2, dealSvc, ledger, payer, payee, arbAddr, stop)
		})
		g.Go(func() error { return actors.Releaser(ctx2, pool, dealSvc, payer, stop) })
	}

	// escalation and rulings over the shared population
	g.Go(func() error { return actors.Disputer(ctx2, pool, dealSvc, "0xpayer-0", stop) })
	g.Go(func() error { return actors.Resolver(ctx2, pool, disputeSvc, arbAddr, stop) })
	// arbiter bond churn
	g.Go(func() error { return actors.Staker(ctx2, arbiterSvc, ledger, arbAddr, stop) })
	// outbox drain
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"deals", `SELECT id, status, remaining_amount, is_resolved, ruling FROM deals ORDER BY id DESC LIMIT 50`},
		{"deal_events", `SELECT id, deal_id, seq, type, created_at FROM deal_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
		{"arbiter_profiles", `SELECT address, stake, reputation, disputes_resolved, is_active FROM arbiter_profiles LIMIT 50`},
		{"balances", `SELECT address, currency, amount FROM balances ORDER BY address LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
