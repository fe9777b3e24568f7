// Package reconciler detects and cleans up stuck replication jobs.
//
// The reconciler is the system's only self-healing mechanism: a worker that
// dies silently leaves its job in pending or running forever, and only the
// periodic sweep can move it to failed. Sweeps are safe to run repeatedly
// and concurrently - the staleness check is a pure function of freshly
// re-read store data, and the terminal write is idempotent.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"replicator/internal/job"
	"replicator/internal/observability"
	"replicator/pkg/circuitbreaker"
)

// Reason kinds for cleaned-job metrics. Closed set, low cardinality.
const (
	reasonPendingTimeout = "pending-timeout"
	reasonInstanceGone   = "instance-gone"
	reasonRunningTimeout = "running-timeout"
	reasonNoInstance     = "no-instance"
)

// Result is the outcome of one complete sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Cleaned int `json:"cleaned"`
}

// Reconciler scans non-terminal jobs and force-fails stuck ones.
type Reconciler struct {
	store       job.Store
	provisioner job.Provisioner
	metrics     *observability.Metrics
	notifier    job.Notifier
	cfg         Config
	logger      *slog.Logger

	now func() time.Time // injectable clock
}

// New creates a reconciler. metrics and notifier may be nil.
func New(store job.Store, provisioner job.Provisioner, metrics *observability.Metrics, notifier job.Notifier, cfg Config) *Reconciler {
	return &Reconciler{
		store:       store,
		provisioner: provisioner,
		metrics:     metrics,
		notifier:    notifier,
		cfg:         cfg.withDefaults(),
		logger:      slog.With("component", "reconciler"),
		now:         time.Now,
	}
}

// Sweep scans every pending and running job, applies the staleness policy,
// and force-fails stuck jobs with a single terminal write each.
//
// A scan enumeration failure aborts the whole sweep: a partial sweep could
// under-report stuck jobs, so no partial result is ever returned and no
// aggregate metrics are emitted for the attempt. Per-job update failures
// do NOT abort the sweep; the job stays eligible for the next one.
func (r *Reconciler) Sweep(ctx context.Context) (*Result, error) {
	start := time.Now()
	now := r.now().UTC()

	// One breaker per sweep: when the provisioner API keeps failing, stop
	// querying it and fall back to the generic diagnosis for the rest of
	// the batch instead of stalling on every record.
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())

	var res Result
	err := r.store.ScanStatus(ctx, job.NonTerminalStates, func(rec *job.Record) error {
		res.Scanned++

		if rec.CreatedAt.IsZero() {
			// A record without a trustworthy age must never be
			// force-failed. Deliberate no-op, not an error.
			r.logger.Warn("Job has no usable created_at, skipping", "jobId", rec.ID, "status", rec.Status)
			return nil
		}

		age := now.Sub(rec.CreatedAt)

		switch rec.Status {
		case job.StatePending:
			if age > r.cfg.PendingMaxAge {
				reason := fmt.Sprintf("Job stuck in pending state for %.1f hours (max: %g)",
					age.Hours(), r.cfg.PendingMaxAge.Hours())
				if r.markFailed(ctx, rec, reason, reasonPendingTimeout) {
					res.Cleaned++
				}
			}

		case job.StateRunning:
			if age > r.cfg.RunningMaxAge {
				reason, kind := r.diagnoseRunning(ctx, breaker, rec, age)
				if r.markFailed(ctx, rec, reason, kind) {
					res.Cleaned++
				}
			}
		}
		return nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordSweepFailure(ctx)
		}
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordSweepCompleted(ctx, res.Scanned, res.Cleaned, time.Since(start).Seconds())
	}
	r.logger.Info("Sweep complete", "scanned", res.Scanned, "cleaned", res.Cleaned)
	return &res, nil
}

// diagnoseRunning picks the failure reason for a running job past its
// threshold. The provisioner cross-check upgrades the diagnosis when the
// worker resource is confirmed dead; a check failure or an open breaker
// degrades to the generic reason rather than aborting.
//
// Note the deliberate policy: a job past the running threshold is failed
// even when the provisioner confirms its instance is alive. Runtime past
// the threshold is treated as stuck regardless of liveness.
func (r *Reconciler) diagnoseRunning(ctx context.Context, breaker *circuitbreaker.Breaker, rec *job.Record, age time.Duration) (string, string) {
	generic := fmt.Sprintf("Job running for %.1f hours (max: %g), assuming stuck",
		age.Hours(), r.cfg.RunningMaxAge.Hours())

	if rec.InstanceID == "" {
		return fmt.Sprintf("Job stuck in running state for %.1f hours with no instance", age.Hours()),
			reasonNoInstance
	}

	if !breaker.Allow() {
		return generic, reasonRunningTimeout
	}

	state, err := r.provisioner.Describe(ctx, rec.InstanceID)
	if err != nil {
		breaker.RecordFailure()
		r.logger.Warn("Instance state check failed, assuming stuck", "jobId", rec.ID, "instanceId", rec.InstanceID, "error", err)
		return generic, reasonRunningTimeout
	}
	breaker.RecordSuccess()

	if state.Gone() {
		return fmt.Sprintf("Job instance %s terminated but job still marked as running", rec.InstanceID),
			reasonInstanceGone
	}
	return generic, reasonRunningTimeout
}

// markFailed performs the single terminal write for a stuck job. The write
// is unconditional at the field level: it does not require the previously
// read status to still be current, because failed is terminal and repeated
// writes converge. Returns false if the update could not be persisted; the
// job is then retried by the next sweep.
func (r *Reconciler) markFailed(ctx context.Context, rec *job.Record, reason, kind string) bool {
	r.logger.Info("Marking stuck job failed", "jobId", rec.ID, "status", rec.Status, "reason", reason)

	status := job.StateFailed
	now := r.now().UTC()
	err := r.store.Update(ctx, rec.ID, job.Fields{
		Status:    &status,
		Error:     &reason,
		UpdatedAt: &now,
	})
	if err != nil {
		r.logger.Error("Failed to mark stuck job failed", "jobId", rec.ID, "error", err)
		return false
	}

	if r.metrics != nil {
		r.metrics.RecordStuckJobCleaned(ctx, rec.ID, kind)
	}
	if r.notifier != nil {
		if err := r.notifier.Dispatch(job.NewStuckCleanedEvent(rec.ID, rec.Status, reason)); err != nil {
			r.logger.Warn("Failed to dispatch cleanup event", "jobId", rec.ID, "error", err)
		}
	}
	return true
}
