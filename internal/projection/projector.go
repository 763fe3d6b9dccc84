// Package projection keeps the Redis read caches in step with order
// lifecycle events, including changes made by the sweeper process.
package projection

import (
	"context"
	kafkax "github.com/SatriaFarel/BookPoint/internal/kafka"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/SatriaFarel/BookPoint/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Cache interface {
	MarkProcessed(ctx context.Context, service, eventID string) (bool, error)
	Forget(ctx context.Context, service, eventID string) error
	SetOrderStatus(ctx context.Context, orderID string, e redisx.StatusEntry) error
	DropOrderStatus(ctx context.Context, orderID string) error
	InvalidateSeller(ctx context.Context, sellerID string) error
}

type Projector struct {
	Cache Cache
	Log   *zap.Logger
	// Name scopes the dedup keys.
	Name string
}

// HandleLifecycle is the consumer handler for the lifecycle topic.
// Undecodable or unknown messages are logged and skipped so they do not
// block the partition.
func (p *Projector) HandleLifecycle(ctx context.Context, m kafkago.Message) error {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		log.Warn("skip undecodable event", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if env.EventVersion > orders.EventVersion {
		log.Warn("skip newer event version", zap.String("event_id", env.EventID), zap.Int("version", env.EventVersion))
		return nil
	}
	payload, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		log.Warn("skip event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	first, err := p.Cache.MarkProcessed(ctx, p.Name, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := p.apply(ctx, env.EventType, payload); err != nil {
		if ferr := p.Cache.Forget(ctx, p.Name, env.EventID); ferr != nil {
			log.Warn("forget dedup mark", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	log.Debug("event projected",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("order_id", payload.OrderID),
	)
	return nil
}

func (p *Projector) apply(ctx context.Context, eventType string, pl orders.OrderEventPayload) error {
	switch eventType {
	case orders.EventOrderPurged:
		if err := p.Cache.DropOrderStatus(ctx, pl.OrderID); err != nil {
			return err
		}
	case orders.EventOrderSubmitted, orders.EventOrderApproved, orders.EventOrderRejected,
		orders.EventOrderShipped, orders.EventOrderCompleted:
		err := p.Cache.SetOrderStatus(ctx, pl.OrderID, redisx.StatusEntry{Status: pl.Status, UpdatedAt: pl.UpdatedAt})
		if err != nil {
			return err
		}
	default:
		return nil
	}
	return p.Cache.InvalidateSeller(ctx, pl.SellerID)
}
