// Package job owns the job data model, lifecycle service, and the
// capability interfaces its collaborators implement.
package job

import "context"

// InstanceState is the lifecycle state of a provisioned worker resource.
type InstanceState string

const (
	InstancePending      InstanceState = "pending"
	InstanceRunning      InstanceState = "running"
	InstanceStopping     InstanceState = "stopping"
	InstanceStopped      InstanceState = "stopped"
	InstanceShuttingDown InstanceState = "shutting-down"
	InstanceTerminated   InstanceState = "terminated"
	InstanceNotFound     InstanceState = "not-found"
)

// Gone reports whether the worker resource is dead or dying: terminated,
// on its way down, or no longer known to the provisioner. A job still
// marked running with a gone instance cannot make progress.
func (s InstanceState) Gone() bool {
	switch s {
	case InstanceStopping, InstanceStopped, InstanceShuttingDown, InstanceTerminated, InstanceNotFound:
		return true
	}
	return false
}

// Provisioner launches and inspects worker compute resources.
//
// # State Management
//
// The Provisioner holds no job state. All job state lives in the Store;
// the Provisioner is only consulted to launch workers and, during
// reconciliation, to cross-check whether a worker resource is still alive.
type Provisioner interface {
	// Launch starts a worker resource for the job and returns its
	// reference. The job record already exists when Launch is called, so a
	// launch failure remains observable to the caller via Get.
	Launch(ctx context.Context, rec *Record) (string, error)

	// Describe returns the current lifecycle state of a worker resource.
	// A resource unknown to the backend reports InstanceNotFound with a
	// nil error; errors are reserved for transport failures.
	Describe(ctx context.Context, instanceID string) (InstanceState, error)

	// Ready checks if the provisioner backend is reachable.
	Ready(ctx context.Context) error
}
