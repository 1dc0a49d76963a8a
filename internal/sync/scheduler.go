package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Scheduler periodically syncs the active project. A cycle that finds no
// active project or loses the inflight race is skipped quietly.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// OnSummary is invoked after each completed cycle, failed or not.
	OnSummary func(Summary, error)
}

// NewScheduler creates a Scheduler driving orchestrator every interval.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger,
	}
}

// Start launches the sync loop. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.cycle(runCtx)
		for {
			select {
			case <-runCtx.Done():
				s.logger.Debug("sync loop stopped")
				return
			case <-ticker.C:
				s.cycle(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) cycle(ctx context.Context) {
	summary, err := s.orchestrator.SyncActive(ctx)
	switch {
	case err == nil:
		s.logger.Debug("scheduled sync finished",
			zap.String("outcome", summary.Outcome),
			zap.Int("new_commits", summary.NewCommits),
		)
	case errors.Is(err, ErrSyncInFlight):
		s.logger.Debug("scheduled sync skipped, already in flight")
		return
	case errors.Is(err, ErrNoActiveProject):
		s.logger.Debug("scheduled sync skipped, no active project")
		return
	default:
		s.logger.Warn("scheduled sync failed", zap.Error(err))
	}
	if s.OnSummary != nil {
		s.OnSummary(summary, err)
	}
}
