package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
)

type overdueRunner interface {
	Run(ctx context.Context, now time.Time) (*dto.OverdueScanReport, error)
}

// OverdueScheduler triggers an overdue scan on a fixed interval. Ticks are
// handled sequentially; a failed or timed-out run is retried on the next tick.
type OverdueScheduler struct {
	runner   overdueRunner
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewOverdueScheduler constructs a scheduler.
func NewOverdueScheduler(runner overdueRunner, interval, timeout time.Duration, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScheduler{
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start boots the ticker goroutine. It returns immediately and stops when ctx ends.
func (s *OverdueScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	s.logger.Info("overdue scheduler started", zap.Duration("interval", s.interval), zap.Duration("timeout", s.timeout))
}

// Wait blocks until the ticker goroutine has exited.
func (s *OverdueScheduler) Wait() {
	s.wg.Wait()
}

// RunOnce performs a single scan bounded by the configured timeout.
func (s *OverdueScheduler) RunOnce(ctx context.Context) *dto.OverdueScanReport {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	report, err := s.runner.Run(runCtx, s.now())
	if err != nil {
		s.logger.Error("scheduled overdue scan failed", zap.Error(err))
		return nil
	}
	if report != nil && report.Partial {
		s.logger.Warn("scheduled overdue scan interrupted before all candidates were evaluated",
			zap.Int("overdue", len(report.Overdue)),
			zap.Int("dispatched", report.Dispatched),
		)
	}
	return report
}
