// jobs-service is the HTTP API server for managing replication jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replicator/internal/api"
	"replicator/internal/awsutil"
	"replicator/internal/config"
	"replicator/internal/dispatcher"
	"replicator/internal/health"
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
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	reconcilerCfg := reconciler.LoadConfigFromEnv()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics, with an optional CloudWatch sink alongside Prometheus
	var sink observability.Sink
	if namespace := config.GetEnv("CLOUDWATCH_NAMESPACE", ""); namespace != "" {
		awsCfg, err := awsutil.Load(ctx)
		if err != nil {
			return err
		}
		sink = observability.NewCloudWatchSink(awsCfg, namespace)
		slog.Info("CloudWatch metric sink enabled", "namespace", namespace)
	}
	metrics, metricsHandler, err := observability.NewMetrics(ctx, sink)
	if err != nil {
		return err
	}

	// Create job store
	store, err := dynamo.New(ctx)
	if err != nil {
		return err
	}

	// Create worker provisioner backend
	provisioner, err := newProvisioner(ctx, svcCfg.Provisioner)
	if err != nil {
		return err
	}
	slog.Info("Provisioner backend ready", "backend", svcCfg.Provisioner)

	// Create operator event dispatcher
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)

	// Create job service
	jobService := job.NewService(store, provisioner, metrics, eventDispatcher).
		WithRetention(svcCfg.JobRetention)

	// Create reconciler and its periodic runner
	sweeper := reconciler.New(store, provisioner, metrics, eventDispatcher, reconcilerCfg)
	runner := reconciler.NewRunner(sweeper, reconcilerCfg.SweepInterval)
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	go runner.Run(runnerCtx)

	// Create health checker
	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"store":       store,
		"provisioner": provisioner,
	})

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Sweeper:       sweeper,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()
	stopRunner()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain operator event dispatcher
	slog.Info("Draining event dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Running workers are self-contained: they carry their own job spec and
	// report back to the job table, so they outlive the service untouched.
	slog.Info("Running jobs will continue independently")
	slog.Info("Shutdown complete")
	return nil
}

// newProvisioner builds the backend named by PROVISIONER.
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
