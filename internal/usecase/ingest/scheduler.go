package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	domingest "github.com/kailas-cloud/docdex/internal/domain/ingest"
)

// Runner performs one ingestion run.
type Runner interface {
	Run(ctx context.Context) (domingest.Run, error)
}

// Scheduler runs ingestion periodically. A tick that finds a run already
// in progress is skipped; a failed run is retried from scratch on the next tick.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	timeout    time.Duration
	runOnStart bool
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. timeout bounds each run; zero means DefaultTimeout.
func NewScheduler(runner Runner, interval, timeout time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		timeout:    timeout,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start launches the background loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop, interrupting a run in progress, and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.logger.Info("Ingestion scheduler started",
		zap.Duration("interval", s.interval),
		zap.Bool("run_on_start", s.runOnStart),
	)
	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Ingestion scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIngestRunning):
		s.logger.Info("Scheduled ingestion skipped, a run is already in progress")
	default:
		// Already logged with its run id by the service.
		s.logger.Warn("Scheduled ingestion failed, will retry next tick", zap.Error(err))
	}
}
