package docker

import (
	"testing"

	"replicator/internal/job"
)

func TestMapState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status string
		want   job.InstanceState
		gone   bool
	}{
		{"created", job.InstancePending, false},
		{"restarting", job.InstancePending, false},
		{"running", job.InstanceRunning, false},
		{"paused", job.InstanceRunning, false},
		{"removing", job.InstanceShuttingDown, true},
		{"exited", job.InstanceStopped, true},
		{"dead", job.InstanceTerminated, true},
		{"", job.InstanceNotFound, true},
		{"bogus", job.InstanceNotFound, true},
	}

	for _, tt := range tests {
		t.Run("status "+tt.status, func(t *testing.T) {
			t.Parallel()
			got := mapState(tt.status)
			if got != tt.want {
				t.Errorf("mapState(%q) = %q, want %q", tt.status, got, tt.want)
			}
			if got.Gone() != tt.gone {
				t.Errorf("Expected Gone()=%v for %q", tt.gone, got)
			}
		})
	}
}
