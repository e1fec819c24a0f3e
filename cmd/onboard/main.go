package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"investflow/catalog"
	"investflow/config"
	"investflow/db"
	"investflow/journal"
	"investflow/kyc"
	"investflow/migrations"
	"investflow/schedule"
	"investflow/signing"
	"investflow/walkthrough"
	"investflow/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		config.Exitf("onboard: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return err
		}
		cat = loaded
	}

	var receipts *signing.ReceiptIssuer
	if cfg.ReceiptSecret != "" {
		issuer, err := signing.NewReceiptIssuer(cfg.ReceiptSecret, "investflow")
		if err != nil {
			return err
		}
		receipts = issuer
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()
	background, bgCtx := errgroup.WithContext(bgCtx)

	var sink workflow.Sink
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns:        int32(cfg.Investors) + 4,
			MaxConnIdleTime: 30 * time.Second,
			MaxConnLifetime: 5 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("bootstrap database pool: %w", err)
		}
		defer pool.Close()

		if err := migrations.Apply(ctx, pool); err != nil {
			return err
		}
		writer := journal.NewWriter(journal.NewService(pool, nil), 1024, logger)
		background.Go(func() error { return writer.Run(bgCtx) })
		sink = writer
		logger.Info("journal enabled")
	}

	logger.Info("onboarding investors",
		"offering", cat.Offering,
		"investors", cfg.Investors,
		"documents", len(cat.Documents),
		"minimum", cfg.MinimumInvestment.StringFixed(2),
	)

	investors, invCtx := errgroup.WithContext(bgCtx)
	for i := 0; i < cfg.Investors; i++ {
		loop := schedule.NewLoop(64)
		background.Go(func() error {
			if err := loop.Run(bgCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

		name := fmt.Sprintf("Investor %d", i+1)
		o, err := workflow.New(bgCtx, workflow.Options{
			Scheduler: loop,
			Documents: cat.Documents,
			Sources:   cat.PaymentSources,
			Minimum:   cfg.MinimumInvestment,
			Sink:      sink,
			Logger:    logger,
			Receipts:  receipts,
			Profile:   kyc.Profile{FullName: name, Email: fmt.Sprintf("investor%d@example.com", i+1)},
			KYC:       cfg.KYC(),
			Transfer:  cfg.Transfer(),
		})
		if err != nil {
			return err
		}

		inv := &walkthrough.Investor{
			Name:        name,
			Address:     kyc.Address{Country: "US", Line1: fmt.Sprintf("%d Market St", 100+i), City: "San Francisco", PostalCode: "94105"},
			Amount:      cfg.MinimumInvestment.Add(decimal.NewFromInt(int64(1000 * i))),
			SourceID:    cat.PaymentSources[i%len(cat.PaymentSources)].ID,
			Loop:        loop,
			Workflow:    o,
			Poll:        100 * time.Millisecond,
			MaxRestarts: 2,
			Logger:      logger,
		}
		investors.Go(func() error {
			snap, err := inv.Run(invCtx)
			if err != nil {
				return err
			}
			logger.Info("investor funded",
				"investor", inv.Name,
				"workflow_id", snap.WorkflowID,
				"amount", snap.Funding.Amount.StringFixed(2),
				"reference", snap.Funding.Reference,
			)
			return nil
		})
	}

	invErr := investors.Wait()
	cancelBackground()
	if err := background.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return invErr
}
