// Package app assembles the shared runtime pieces for the binaries in cmd.
package app

import (
	"context"
	"fmt"
	"github.com/SatriaFarel/BookPoint/internal/config"
	kafkax "github.com/SatriaFarel/BookPoint/internal/kafka"
	"github.com/SatriaFarel/BookPoint/internal/logger"
	"github.com/SatriaFarel/BookPoint/internal/memstore"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/SatriaFarel/BookPoint/internal/postgres"
	"github.com/SatriaFarel/BookPoint/internal/redisx"
	"go.uber.org/zap"
)

// Deps are the optional collaborators. Cache and Producer are nil when their
// backends are not configured.
type Deps struct {
	Cfg      config.Config
	Log      *zap.Logger
	Store    orders.Store
	Cache    *redisx.Cache
	Producer *kafkax.Producer

	closers []func()
}

func Logger(cfg config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("service", cfg.ServiceName))
	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("detail", w))
	}
	return log, nil
}

// Open connects the store, then Redis and Kafka when configured.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{Cfg: cfg, Log: log}

	switch cfg.StoreDriver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			d.Close()
			return nil, err
		}
		d.Store = &orders.Repo{DB: pool}
	case "memory":
		log.Warn("using in-memory store, data is lost on exit")
		d.Store = memstore.New()
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		if err := redisx.Ping(ctx, rdb); err != nil {
			_ = rdb.Close()
			d.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		d.Cache = &redisx.Cache{RDB: rdb}
	}

	if len(cfg.KafkaBrokers) > 0 {
		p := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, log.Named("kafka"))
		p.Start()
		d.closers = append(d.closers, p.Close)
		d.Producer = p
	}
	return d, nil
}

// Events returns the lifecycle publisher, or nil when Kafka is off.
func (d *Deps) Events() orders.Publisher {
	if d.Producer == nil {
		return nil
	}
	return d.Producer
}

// Locker returns the cross-process sweep lock, or nil without Redis.
func (d *Deps) Locker() orders.Locker {
	if d.Cache == nil {
		return nil
	}
	return d.Cache
}

// Sweeper keeps the Redis cache in step with every sweep when Redis is
// configured, whether or not a projector is running.
func (d *Deps) Sweeper() *orders.Sweeper {
	sw := &orders.Sweeper{
		Store:       d.Store,
		Events:      d.Events(),
		Log:         d.Log.Named("sweeper"),
		Locker:      d.Locker(),
		GracePeriod: d.Cfg.ShipGracePeriod,
		Retention:   d.Cfg.RejectRetention,
		Name:        d.Cfg.ServiceName,
	}
	if d.Cache != nil {
		sw.OnSwept = d.Cache.OrderSwept
	}
	return sw
}

// Close releases resources in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
