package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"magnate/internal/config"
	"magnate/internal/db"
	"magnate/internal/econ"

	"github.com/joho/godotenv"
)

// The worker is the only wave scheduler: one ticker, one wave at a time. The
// sequential loop is what enforces the no-overlap invariant.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadServiceFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	// The wave engine never trades, so the worker runs without a rate
	// limiter and does not need Redis.
	econSvc := econ.NewService(pool, nil, cfg.Econ, logger)
	if err := econSvc.EnsureSystemAccount(ctx); err != nil {
		logger.Error("system account init failed", "err", err)
		os.Exit(1)
	}
	if cfg.StartupSeedDemo {
		if err := econSvc.SeedDemo(ctx); err != nil {
			logger.Error("seed demo failed", "err", err)
			os.Exit(1)
		}
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("MAGNATE_WAVE_RUN_ONCE")), "true")
	if runOnce {
		if _, err := econSvc.RunPurchaseWave(ctx); err != nil {
			logger.Error("wave failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.WaveEvery)
	defer ticker.Stop()

	logger.Info("worker started", "wave_every", cfg.WaveEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if _, err := econSvc.RunPurchaseWave(ctx); err != nil {
				logger.Error("purchase wave failed", "err", err)
				continue
			}
		}
	}
}
