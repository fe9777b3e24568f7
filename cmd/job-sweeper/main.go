// job-sweeper runs one reconciliation sweep and exits.
//
// It exists for scheduled execution (cron, EventBridge, Kubernetes CronJob)
// in deployments that prefer an external trigger over the jobs-service's
// internal timer. Exit code 0 means the sweep completed, even if it cleaned
// nothing; a failed sweep exits non-zero so the scheduler can alert.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"replicator/internal/awsutil"
	"replicator/internal/config"
	"replicator/internal/job"
	"replicator/internal/observability"
	dockerprov "replicator/internal/provisioner/docker"
	ec2prov "replicator/internal/provisioner/ec2"
	"replicator/internal/reconciler"
	"replicator/internal/store/dynamo"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Sweep failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), config.GetDurationEnv("SWEEP_TIMEOUT", 10*time.Minute))
	defer cancel()

	var sink observability.Sink
	if namespace := config.GetEnv("CLOUDWATCH_NAMESPACE", ""); namespace != "" {
		awsCfg, err := awsutil.Load(ctx)
		if err != nil {
			return err
		}
		sink = observability.NewCloudWatchSink(awsCfg, namespace)
	}
	metrics, _, err := observability.NewMetrics(ctx, sink)
	if err != nil {
		return err
	}

	store, err := dynamo.New(ctx)
	if err != nil {
		return err
	}

	provisioner, err := newProvisioner(ctx, config.GetEnv("PROVISIONER", "ec2"))
	if err != nil {
		return err
	}

	sweeper := reconciler.New(store, provisioner, metrics, nil, reconciler.LoadConfigFromEnv())

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}

	slog.Info("Sweep finished", "scanned", result.Scanned, "cleaned", result.Cleaned)

	// CloudWatch emissions are fire-and-forget goroutines; give them a
	// moment to flush before the process exits.
	if sink != nil {
		time.Sleep(2 * time.Second)
	}
	return nil
}

func newProvisioner(ctx context.Context, backend string) (job.Provisioner, error) {
	switch backend {
	case "ec2":
		return ec2prov.New(ctx)
	case "docker":
		return dockerprov.New(dockerprov.LoadConfigFromEnv())
	default:
		return nil, fmt.Errorf("unknown provisioner backend %q (want ec2 or docker)", backend)
	}
}
