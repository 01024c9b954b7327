package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval  = time.Hour
	DefaultStaleRideAfter = 2 * time.Hour
)

// Sweeper periodically cancels OPEN rides nobody accepted.
type Sweeper struct {
	service    *Service
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
}

func NewSweeper(service *Service, interval, staleAfter time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleRideAfter
	}
	return &Sweeper{service: service, interval: interval, staleAfter: staleAfter, logger: logger}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of rides cancelled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.service.CancelStaleOpenRides(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("stale ride sweep failed", zap.Int("cancelled", n), zap.Error(err))
		return n
	}
	if n > 0 {
		s.logger.Info("cancelled stale rides", zap.Int("count", n), zap.Duration("olderThan", s.staleAfter))
	}
	return n
}
