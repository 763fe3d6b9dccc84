package orders

import (
	"context"
	"go.uber.org/zap"
	"time"
)

// Scheduler runs the sweeper once at start and then on every tick until ctx
// is cancelled. A failed run is logged and retried on the next tick.
type Scheduler struct {
	Sweeper  *Sweeper
	Interval time.Duration
	Log      *zap.Logger
}

func (s *Scheduler) Run(ctx context.Context) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := s.Sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
