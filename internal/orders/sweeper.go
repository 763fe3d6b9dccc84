package orders

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"time"
)

const (
	DefaultShipGracePeriod = 3 * 24 * time.Hour
	DefaultRejectRetention = 30 * 24 * time.Hour

	sweepLockName = "sweep"
	sweepLockTTL  = 5 * time.Minute
)

type SweepResult struct {
	Completed []string `json:"completed"`
	Purged    []string `json:"purged"`
}

// Sweeper applies the time based rules: shipped orders past the grace
// period complete, rejected orders past the retention window are deleted.
// Every candidate is re-checked under its row lock, so overlapping or
// repeated runs change nothing the first run did not.
type Sweeper struct {
	Store       Store
	Clock       Clock
	Events      Publisher
	Log         *zap.Logger
	Locker      Locker
	GracePeriod time.Duration
	Retention   time.Duration
	Name        string
	// OnSwept runs after each committed completion or purge with the order
	// as the sweep left it. Errors are logged and do not stop the run.
	OnSwept func(ctx context.Context, o Order, purged bool) error
}

func (s *Sweeper) clock() Clock {
	if s.Clock == nil {
		return SystemClock{}
	}
	return s.Clock
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Sweeper) grace() time.Duration {
	if s.GracePeriod <= 0 {
		return DefaultShipGracePeriod
	}
	return s.GracePeriod
}

func (s *Sweeper) retention() time.Duration {
	if s.Retention <= 0 {
		return DefaultRejectRetention
	}
	return s.Retention
}

// Run processes the whole candidate set. It stops at the first storage
// error; orders handled before that stay handled.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Completed: []string{}, Purged: []string{}}

	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx, sweepLockName, sweepLockTTL)
		if err != nil {
			return res, err
		}
		if !ok {
			s.logger().Info("sweep already running elsewhere, skipping")
			return res, nil
		}
		defer unlock()
	}

	now := s.clock().Now()

	shipCutoff := now.Add(-s.grace())
	ids, err := s.Store.StaleOrders(ctx, StatusShipped, shipCutoff)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		o, done, err := s.complete(ctx, id, shipCutoff, now)
		if err != nil {
			return res, err
		}
		if done {
			res.Completed = append(res.Completed, id)
			emit(ctx, s.Events, s.logger(), s.Name, EventOrderCompleted, o, now)
			s.notify(ctx, o, false)
		}
	}

	purgeCutoff := now.Add(-s.retention())
	ids, err = s.Store.StaleOrders(ctx, StatusRejected, purgeCutoff)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		o, done, err := s.purge(ctx, id, purgeCutoff)
		if err != nil {
			return res, err
		}
		if done {
			res.Purged = append(res.Purged, id)
			emit(ctx, s.Events, s.logger(), s.Name, EventOrderPurged, o, now)
			s.notify(ctx, o, true)
		}
	}

	if len(res.Completed) > 0 || len(res.Purged) > 0 {
		s.logger().Info("sweep finished",
			zap.Int("completed", len(res.Completed)),
			zap.Int("purged", len(res.Purged)),
		)
	}
	return res, nil
}

func (s *Sweeper) notify(ctx context.Context, o Order, purged bool) {
	if s.OnSwept == nil {
		return
	}
	if err := s.OnSwept(ctx, o, purged); err != nil {
		s.logger().Warn("sweep hook", zap.String("order_id", o.ID), zap.Bool("purged", purged), zap.Error(err))
	}
}

func (s *Sweeper) complete(ctx context.Context, id string, cutoff, now time.Time) (Order, bool, error) {
	var out Order
	done := false
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if o.Status != StatusShipped || o.UpdatedAt.After(cutoff) {
			return nil
		}
		if err := o.advance(StatusCompleted, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o, StatusShipped); err != nil {
			return err
		}
		out, done = o, true
		return nil
	})
	return out, done, err
}

func (s *Sweeper) purge(ctx context.Context, id string, cutoff time.Time) (Order, bool, error) {
	var out Order
	done := false
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if o.Status != StatusRejected || o.UpdatedAt.After(cutoff) {
			return nil
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		out, done = o, true
		return nil
	})
	return out, done, err
}
