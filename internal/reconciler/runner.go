package reconciler

import (
	"context"
	"log/slog"
	"time"

	"replicator/pkg/backoff"
)

// sweepRetries is how many times a failed sweep is retried within one tick
// before giving up until the next interval.
const sweepRetries = 3

// Runner drives the reconciler on an internal timer. It is an alternative
// to external scheduling (cmd/job-sweeper); both may coexist, since
// overlapping sweeps are safe.
type Runner struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// NewRunner creates a runner sweeping at the configured interval.
func NewRunner(r *Reconciler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{
		reconciler: r,
		interval:   interval,
		logger:     slog.With("component", "sweep-runner"),
	}
}

// Run sweeps until ctx is cancelled. The first sweep happens after one
// full interval, not at startup, so a crash-looping service does not hammer
// the store.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Sweep runner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Sweep runner stopped")
			return
		case <-ticker.C:
			r.sweepWithRetry(ctx)
		}
	}
}

// sweepWithRetry retries a failed sweep with exponential backoff. A sweep
// that keeps failing is abandoned until the next tick; the staleness
// policy re-derives everything from the store, so nothing is lost.
func (r *Runner) sweepWithRetry(ctx context.Context) {
	cfg := &backoff.Config{Initial: 2 * time.Second, Max: 30 * time.Second}

	for attempt := 1; ; attempt++ {
		_, err := r.reconciler.Sweep(ctx)
		if err == nil {
			return
		}
		if attempt > sweepRetries {
			r.logger.Error("Sweep failed, giving up until next interval", "attempts", attempt, "error", err)
			return
		}
		delay := backoff.Exponential(attempt, cfg)
		r.logger.Warn("Sweep failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
