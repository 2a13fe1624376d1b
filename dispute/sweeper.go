package dispute

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper drives the scheduled auto-resolution pass. A TryLock guard keeps
// runs from overlapping when a pass outlives the tick interval.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
}

func NewSweeper(service *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, sweeping on every tick until the context is cancelled.
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

// Sweep runs one pass. Returns false without sweeping when a prior pass is
// still executing.
func (s *Sweeper) Sweep(ctx context.Context) bool {
	if !s.mu.TryLock() {
		s.logger.Warn("sweep skipped, previous run still executing")
		return false
	}
	defer s.mu.Unlock()

	resolved, err := s.service.ResolveStale(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return true
	}
	s.logger.Debug("sweep finished", zap.Int64("resolved", resolved))
	return true
}
