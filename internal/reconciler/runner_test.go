package reconciler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"replicator/internal/job"
	"replicator/internal/testutil"
)

// countingStore wraps fakeStore to track scan invocations.
type countingStore struct {
	*fakeStore
	scans atomic.Int64
}

func (s *countingStore) ScanStatus(ctx context.Context, states []job.State, fn func(*job.Record) error) error {
	s.scans.Add(1)
	return s.fakeStore.ScanStatus(ctx, states, fn)
}

func TestRunnerSweepsOnInterval(t *testing.T) {
	t.Parallel()

	store := &countingStore{fakeStore: newFakeStore()}
	r := New(store, &fakeProvisioner{}, nil, nil, Config{
		PendingMaxAge: 1 * time.Hour,
		RunningMaxAge: 12 * time.Hour,
	})
	runner := NewRunner(r, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	testutil.MustWaitForCount(t, &store.scans, 2,
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunnerDefaultsInterval(t *testing.T) {
	t.Parallel()

	runner := NewRunner(nil, 0)
	if runner.interval != 5*time.Minute {
		t.Fatalf("interval = %v, want 5m", runner.interval)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.PendingMaxAge != 1*time.Hour {
		t.Errorf("PendingMaxAge = %v, want 1h", cfg.PendingMaxAge)
	}
	if cfg.RunningMaxAge != 12*time.Hour {
		t.Errorf("RunningMaxAge = %v, want 12h", cfg.RunningMaxAge)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.SweepInterval)
	}
}
