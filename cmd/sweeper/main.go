package main

import (
	"context"
	"flag"
	"github.com/SatriaFarel/BookPoint/internal/app"
	"github.com/SatriaFarel/BookPoint/internal/config"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-sweeper"

	lg, err := app.Logger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("startup", zap.Error(err))
	}
	defer deps.Close()

	sweeper := deps.Sweeper()
	if *once {
		res, err := sweeper.Run(ctx)
		if err != nil {
			lg.Error("sweep failed", zap.Error(err))
			return
		}
		lg.Info("sweep done", zap.Strings("completed", res.Completed), zap.Strings("purged", res.Purged))
		return
	}

	lg.Info("sweeper started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Duration("grace", cfg.ShipGracePeriod),
		zap.Duration("retention", cfg.RejectRetention),
	)
	(&orders.Scheduler{Sweeper: sweeper, Interval: cfg.SweepInterval, Log: lg.Named("scheduler")}).Run(ctx)
	lg.Info("sweeper stopped")
}
