package job

import (
	"context"
	"time"
)

// Fields is a partial update applied to a job record. Nil fields are left
// untouched. The write is unconditional at the field level: marking an
// already-failed job failed again is a harmless no-op, which is what makes
// repeated reconciler sweeps safe.
//
// The one guard lives at the store boundary: a Status write that would move
// a record out of a terminal state is ignored, not applied.
type Fields struct {
	Status     *State
	Error      *string
	InstanceID *string
	UpdatedAt  *time.Time
}

// Store is the durable job record store.
//
// Implementations are injected into the Service and Reconciler so tests can
// substitute in-memory fakes.
type Store interface {
	// Put creates or replaces a job record.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record for a job ID.
	// Returns an apperrors.ErrNotFound error if no record exists.
	Get(ctx context.Context, id string) (*Record, error)

	// Update applies a partial update to a record.
	Update(ctx context.Context, id string, fields Fields) error

	// ScanStatus invokes fn for every record whose status is in states,
	// draining all pages of the underlying scan. A fn error stops the scan
	// and is returned. An enumeration failure is returned as
	// apperrors.ErrUnavailable; partial results must not be trusted.
	ScanStatus(ctx context.Context, states []State, fn func(*Record) error) error

	// Ready checks if the store is reachable.
	Ready(ctx context.Context) error
}
