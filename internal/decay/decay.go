// Package decay runs the periodic inactivity pass over every project pet's
// condition.
package decay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/game"
)

// DefaultInterval spaces decay passes about an hour apart. The pass itself
// keys off how long the pet has been idle, so the interval only bounds how
// stale the displayed condition can get.
const DefaultInterval = time.Hour

// Ticker applies decay on a fixed interval, starting with one immediate
// pass so a process restart catches up on idle time right away.
type Ticker struct {
	owner    *game.Owner
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// Now is injectable for tests.
	Now func() time.Time

	// OnTick is invoked after each pass.
	OnTick func()
}

// NewTicker creates a decay Ticker. A non-positive interval falls back to
// the default.
func NewTicker(owner *game.Owner, interval time.Duration, logger *zap.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{
		owner:    owner,
		interval: interval,
		logger:   logger,
		Now:      time.Now,
	}
}

// Start launches the decay loop.
func (t *Ticker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.pass(runCtx)
		for {
			select {
			case <-runCtx.Done():
				t.logger.Debug("decay loop stopped")
				return
			case <-ticker.C:
				t.pass(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current pass to finish.
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *Ticker) pass(ctx context.Context) {
	t.owner.ApplyDecay(ctx, t.Now().UTC())
	if t.OnTick != nil {
		t.OnTick()
	}
}
