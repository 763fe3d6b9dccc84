package main

import (
	"context"
	"errors"
	"github.com/SatriaFarel/BookPoint/internal/app"
	"github.com/SatriaFarel/BookPoint/internal/config"
	"github.com/SatriaFarel/BookPoint/internal/httpx"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

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

	svc := &orders.Service{
		Store:  deps.Store,
		Events: deps.Events(),
		Log:    lg.Named("orders"),
		Name:   cfg.ServiceName,
	}
	sweeper := deps.Sweeper()

	router := httpx.NewRouter(lg)
	oh := &httpx.OrdersHandler{Orders: svc, Sweeper: sweeper}
	sh := &httpx.SellersHandler{
		Orders: svc,
		Settlement: &orders.Settlement{
			Store:             deps.Store,
			LowStockThreshold: cfg.LowStockThreshold,
			ProfitRateBPS:     cfg.ProfitRateBPS,
		},
	}
	if deps.Cache != nil {
		oh.Cache = deps.Cache
		sh.Cache = deps.Cache
	}
	if cfg.CheckoutRatePerSec > 0 {
		oh.Limiter = httpx.NewRateLimiter(cfg.CheckoutRatePerSec, cfg.CheckoutBurst, 10*time.Minute)
	}
	oh.Register(router)
	sh.Register(router)

	srv := httpx.NewServer(cfg.HTTPAddr, router)
	sched := &orders.Scheduler{Sweeper: sweeper, Interval: cfg.SweepInterval, Log: lg.Named("scheduler")}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("exit", zap.Error(err))
	}
}
