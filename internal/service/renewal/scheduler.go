// internal/service/renewal/scheduler.go
package renewal

import (
	"context"
	"sync"
	"time"

	"athlos-billing/internal/domain/billing"

	"go.uber.org/zap"
)

// Scheduler drives periodic scan passes. At most one loop runs per process;
// a second Start while running is a warning no-op. The loop fires an
// immediate first scan on Start, then ticks at the configured interval.
type Scheduler struct {
	scanner *Scanner
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(scanner *Scanner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scanner: scanner,
		logger:  logger,
	}
}

// Start registers the recurring scan. Idempotent: calling Start while a loop
// is already running logs a warning and changes nothing.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Warn("renewal scheduler already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("renewal scheduler started", zap.Duration("interval", interval))

	go s.run(ctx, interval, s.done)
}

// Stop cancels the scan loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("renewal scheduler stopped")
}

// RetryOne runs the renewal pipeline for a single subscription immediately,
// bypassing the due-set scan. Used for operator-triggered retries.
func (s *Scheduler) RetryOne(ctx context.Context, subscriptionID int64) *billing.RenewalResult {
	return s.scanner.ProcessOne(ctx, subscriptionID)
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	s.scan(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan runs one pass and swallows its error so the next tick always fires.
func (s *Scheduler) scan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.scanner.RunScan(ctx, time.Now()); err != nil {
		s.logger.Error("renewal scan failed", zap.Error(err))
	}
}
