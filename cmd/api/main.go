package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"escrowflow/account"
	"escrowflow/admin"
	"escrowflow/arbiter"
	"escrowflow/config"
	"escrowflow/db"
	"escrowflow/deal"
	"escrowflow/dispute"
	"escrowflow/logger"
	"escrowflow/metrics"
	"escrowflow/outbox"
	"escrowflow/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logg.Fatalw("bootstrap database pool", "err", err)
	}
	defer pool.Close()

	adminService := admin.NewService(pool)
	if err := adminService.Initialize(ctx, cfg.AdminAddress); err != nil {
		logg.Fatalw("seed admin", "err", err)
	}
	if err := adminService.InitializeRegistry(ctx, cfg.StakingCurrency, cfg.MinStake); err != nil {
		logg.Fatalw("seed registry settings", "err", err)
	}

	var adapter token.Adapter = token.NewLedger(pool, cfg.EscrowAddress)
	if cfg.EthRPCURL != "" {
		erc20, err := token.NewERC20(ctx, cfg.EthRPCURL, cfg.EthPrivateKey)
		if err != nil {
			logg.Fatalw("bootstrap erc20 adapter", "err", err)
		}
		adapter = erc20
		logg.Infow("settling through erc20 adapter", "rpc", cfg.EthRPCURL)
	}

	m := metrics.NewEngine(nil)

	server := &Server{
		accountService: account.NewService(account.NewRepository(pool), cfg.JWTSecret),
		dealService:    deal.NewService(pool, nil, adapter, cfg.EscrowAddress, logg, m),
		dealReader:     deal.NewReader(pool),
		disputeService: dispute.NewService(pool, nil, adapter, logg, m),
		arbiterService: arbiter.NewService(pool, arbiter.NewRepository(pool), adminService, adapter, cfg.EscrowAddress, logg, m),
		adminService:   adminService,
		listDisputes: func(ctx context.Context, openOnly bool) ([]dispute.Record, error) {
			return dispute.List(ctx, pool, openOnly)
		},
		log: logg,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatcher := outbox.NewDispatcher(pool, outbox.LogSink{Log: logg}, logg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := dispatcher.Run(gctx, 4)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logg.Fatalw("server exited", "err", err)
	}
	logg.Infow("shutdown complete")
}
