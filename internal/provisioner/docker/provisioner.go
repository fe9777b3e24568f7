// Package docker provisions replication workers as local Docker containers.
//
// This is the development backend: it mirrors the EC2 provisioner's contract
// against the host Docker daemon so the full submit/sweep path runs on a
// laptop with no cloud account.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"replicator/internal/job"
)

// Labels attached to worker containers so operators and tests can find them.
const (
	labelManagedBy = "managed-by"
	labelJobID     = "job.id"
	managedByValue = "replicator"
)

// Provisioner is the Docker-backed job.Provisioner.
type Provisioner struct {
	client *client.Client
	cfg    WorkerConfig
	logger *slog.Logger
}

var _ job.Provisioner = (*Provisioner)(nil)

// New creates a provisioner against the host Docker daemon.
func New(cfg WorkerConfig) (*Provisioner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("WORKER_IMAGE is required for the docker provisioner")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Provisioner{
		client: dockerClient,
		cfg:    cfg,
		logger: slog.With("component", "docker-provisioner"),
	}, nil
}

// Launch starts a worker container for the job and returns its container ID.
// The container ID plays the instance-ID role everywhere else in the system.
func (p *Provisioner) Launch(ctx context.Context, rec *job.Record) (string, error) {
	spec, err := json.Marshal(&job.Spec{
		Command:   rec.Command,
		SourceURL: rec.SourceURL,
		TargetURL: rec.TargetURL,
		Filter:    rec.Filter,
		Options:   rec.Options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job spec: %w", err)
	}

	created, err := p.client.ContainerCreate(ctx,
		&container.Config{
			Image: p.cfg.Image,
			Env: []string{
				"JOB_ID=" + rec.ID,
				"JOB_SPEC=" + string(spec),
			},
			Labels: map[string]string{
				labelManagedBy: managedByValue,
				labelJobID:     rec.ID,
			},
		},
		&container.HostConfig{ExtraHosts: p.cfg.ExtraHosts},
		nil, nil,
		"replication-worker-"+rec.ID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create worker container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Best-effort cleanup of the never-started container.
		_ = p.client.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start worker container: %w", err)
	}

	p.logger.Info("Worker container started", "jobId", rec.ID, "containerId", created.ID[:12])
	return created.ID, nil
}

// Describe reports the lifecycle state of a worker container. A removed
// container maps to InstanceNotFound with a nil error.
func (p *Provisioner) Describe(ctx context.Context, instanceID string) (job.InstanceState, error) {
	inspect, err := p.client.ContainerInspect(ctx, instanceID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return job.InstanceNotFound, nil
		}
		return "", fmt.Errorf("failed to inspect container %s: %w", instanceID, err)
	}
	if inspect.State == nil {
		return job.InstanceNotFound, nil
	}
	return mapState(inspect.State.Status), nil
}

// Ready verifies the Docker daemon is reachable.
func (p *Provisioner) Ready(ctx context.Context) error {
	if _, err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// mapState translates a Docker container status into the shared worker
// lifecycle vocabulary. Exited and dead containers count as gone: a worker
// that stopped without completing its job is never coming back.
func mapState(status string) job.InstanceState {
	switch status {
	case "created", "restarting":
		return job.InstancePending
	case "running", "paused":
		return job.InstanceRunning
	case "removing":
		return job.InstanceShuttingDown
	case "exited":
		return job.InstanceStopped
	case "dead":
		return job.InstanceTerminated
	default:
		return job.InstanceNotFound
	}
}
