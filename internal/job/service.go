package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"replicator/internal/apperrors"
	"replicator/internal/observability"
	"replicator/pkg/cloudevent"
)

// DefaultRetention is how long job records are kept before the store's TTL
// purges them, independent of job status.
const DefaultRetention = 30 * 24 * time.Hour

// Notifier delivers operator events. Delivery is async and best-effort;
// a Dispatch failure never fails the primary operation.
type Notifier interface {
	Dispatch(event *cloudevent.CloudEvent) error
}

// Service manages the job lifecycle: creation, the transition into
// provisioning, and the synchronous provisioning-failure transition.
//
// The Service is stateless - all job state lives in the Store. This enables:
//   - Service restarts without affecting running jobs
//   - Horizontal scaling with multiple service instances
//   - The reconciler observing the same records from a separate activation
type Service struct {
	store       Store
	provisioner Provisioner
	metrics     *observability.Metrics
	notifier    Notifier
	retention   time.Duration
}

// NewService creates a new job service. metrics and notifier may be nil.
func NewService(store Store, provisioner Provisioner, metrics *observability.Metrics, notifier Notifier) *Service {
	return &Service{
		store:       store,
		provisioner: provisioner,
		metrics:     metrics,
		notifier:    notifier,
		retention:   DefaultRetention,
	}
}

// WithRetention overrides the record retention horizon.
func (s *Service) WithRetention(d time.Duration) *Service {
	if d > 0 {
		s.retention = d
	}
	return s
}

// Submit validates a job spec, creates its record, and launches a worker.
//
// The record is written in provisioning status BEFORE the launch attempt.
// Ordering matters: if the launch is rejected, the record is flipped to
// failed and stays queryable, rather than the job silently vanishing.
// By the time Submit returns the record is in exactly one of provisioning
// (worker launching) or failed (launch rejected).
func (s *Service) Submit(ctx context.Context, spec *Spec) (*Submission, error) {
	if err := validate(spec); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Status:    StateProvisioning,
		Command:   spec.Command,
		SourceURL: spec.SourceURL,
		TargetURL: spec.TargetURL,
		Filter:    spec.Filter,
		Options:   spec.Options,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention).Unix(),
	}

	logger := slog.With("jobId", rec.ID, "command", rec.Command)

	if err := s.store.Put(ctx, rec); err != nil {
		logger.Error("Failed to create job record", "error", err)
		return nil, apperrors.Unavailable("job store", "Put", err)
	}

	instanceID, err := s.provisioner.Launch(ctx, rec)
	if err != nil {
		logger.Error("Worker launch failed", "error", err)
		s.markProvisionFailed(ctx, rec.ID, err)
		if s.metrics != nil {
			s.metrics.RecordProvisionFailure(ctx)
		}
		s.notify(NewProvisionFailedEvent(rec.ID, err))
		return nil, apperrors.Provision("provisioner.Launch", err)
	}

	// A failed instance_id write is logged, not surfaced: the record stays
	// in provisioning and the reconciler is the safety net if the worker
	// never reports in.
	if err := s.store.Update(ctx, rec.ID, Fields{InstanceID: &instanceID}); err != nil {
		logger.Warn("Failed to record instance reference", "instanceId", instanceID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx)
	}
	s.notify(NewSubmittedEvent(rec.ID, instanceID))

	logger.Info("Job submitted", "instanceId", instanceID)

	return &Submission{JobID: rec.ID, Status: StateProvisioning}, nil
}

// Get returns the externally visible status of a job.
func (s *Service) Get(ctx context.Context, jobID string) (*StatusView, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return rec.View(), nil
}

// markProvisionFailed flips the record to failed after a launch rejection.
// A persistence failure here is logged and left for the reconciler.
func (s *Service) markProvisionFailed(ctx context.Context, jobID string, cause error) {
	status := StateFailed
	reason := fmt.Sprintf("provisioning failed: %v", cause)
	now := time.Now().UTC()
	if err := s.store.Update(ctx, jobID, Fields{
		Status:    &status,
		Error:     &reason,
		UpdatedAt: &now,
	}); err != nil {
		slog.Error("Failed to mark job failed after launch rejection", "jobId", jobID, "error", err)
	}
}

func (s *Service) notify(event *cloudevent.CloudEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(event); err != nil {
		slog.Warn("Failed to dispatch job event", "type", event.Type, "error", err)
	}
}

// validate checks the required submit fields. Filter and options are opaque
// payloads and are never validated.
func validate(spec *Spec) error {
	if spec == nil {
		return apperrors.Validation("", "request body is required")
	}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"command", spec.Command},
		{"source_url", spec.SourceURL},
		{"target_url", spec.TargetURL},
	} {
		if f.value == "" {
			return apperrors.Validation(f.name, fmt.Sprintf("missing required field: %s", f.name))
		}
	}
	return nil
}
