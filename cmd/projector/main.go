package main

import (
	"context"
	"github.com/SatriaFarel/BookPoint/internal/config"
	kafkax "github.com/SatriaFarel/BookPoint/internal/kafka"
	"github.com/SatriaFarel/BookPoint/internal/logger"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/SatriaFarel/BookPoint/internal/projection"
	"github.com/SatriaFarel/BookPoint/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	lg = lg.With(zap.String("service", cfg.ServiceName+"-projector"))
	defer func() { _ = lg.Sync() }()

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		lg.Fatal("projector needs REDIS_ADDR and KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		lg.Fatal("redis", zap.Error(err))
	}

	p := &projection.Projector{
		Cache: &redisx.Cache{RDB: rdb},
		Log:   lg.Named("projector"),
		Name:  cfg.ProjectorGroup,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderLifecycle, cfg.ProjectorWorkers, lg.Named("consumer"))

	lg.Info("projector started",
		zap.String("group", cfg.ProjectorGroup),
		zap.String("topic", orders.TopicOrderLifecycle),
		zap.Int("workers", cfg.ProjectorWorkers),
	)
	if err := cons.Start(ctx, p.HandleLifecycle); err != nil {
		lg.Error("consumer exit", zap.Error(err))
	}
	lg.Info("projector stopped")
}
