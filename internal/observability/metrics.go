package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/sweeps take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Dispatcher queue depth
//
// Counters are at-least-the-true-count: a sweep racing another sweep over
// the same stuck job may double-emit a cleaned counter, which is accepted.
type Metrics struct {
	meter metric.Meter
	sink  Sink // optional secondary sink (CloudWatch); fire-and-forget

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job lifecycle metrics
	JobsSubmitted     metric.Int64Counter
	ProvisionFailures metric.Int64Counter

	// Reconciler metrics
	SweepDuration    metric.Float64Histogram
	SweepJobsScanned metric.Int64Counter
	SweepJobsCleaned metric.Int64Counter
	SweepFailures    metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// Sink accepts counter emissions for an external metrics backend.
// Emit must never block or fail the caller's primary operation.
type Sink interface {
	Emit(name string, value float64, dimensions map[string]string)
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
// sink may be nil.
func NewMetrics(ctx context.Context, sink Sink) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("replicator")
	m := &Metrics{meter: meter, sink: sink}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job lifecycle metrics
	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Total number of jobs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ProvisionFailures, err = meter.Int64Counter(
		"job_provision_failures_total",
		metric.WithDescription("Total number of worker launch rejections at submit time"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Reconciler metrics
	m.SweepDuration, err = meter.Float64Histogram(
		"sweep_duration_seconds",
		metric.WithDescription("Stale-job sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SweepJobsScanned, err = meter.Int64Counter(
		"sweep_jobs_scanned_total",
		metric.WithDescription("Total non-terminal jobs examined by sweeps"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SweepJobsCleaned, err = meter.Int64Counter(
		"sweep_jobs_cleaned_total",
		metric.WithDescription("Total stuck jobs force-failed by sweeps"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SweepFailures, err = meter.Int64Counter(
		"sweep_failures_total",
		metric.WithDescription("Total sweeps aborted by a job store scan failure"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Operator event delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobSubmitted records a job accepted with its worker launching.
func (m *Metrics) RecordJobSubmitted(ctx context.Context) {
	m.JobsSubmitted.Add(ctx, 1)
	m.emit("JobSubmitted", 1, nil)
}

// RecordProvisionFailure records a worker launch rejection at submit time.
func (m *Metrics) RecordProvisionFailure(ctx context.Context) {
	m.ProvisionFailures.Add(ctx, 1)
	m.emit("ProvisionFailed", 1, nil)
}

// RecordStuckJobCleaned records one job force-failed by a sweep.
// The per-job JobId dimension goes only to the sink; the otel counter
// carries the low-cardinality reason kind instead.
func (m *Metrics) RecordStuckJobCleaned(ctx context.Context, jobID, reasonKind string) {
	m.SweepJobsCleaned.Add(ctx, 1, metric.WithAttributes(reasonAttr(reasonKind)))
	m.emit("StuckJobCleaned", 1, map[string]string{"JobId": jobID})
}

// RecordSweepCompleted records the aggregate result of a successful sweep.
func (m *Metrics) RecordSweepCompleted(ctx context.Context, scanned, cleaned int, durationSeconds float64) {
	m.SweepDuration.Record(ctx, durationSeconds)
	m.SweepJobsScanned.Add(ctx, int64(scanned))
	m.emit("JobsScanned", float64(scanned), nil)
	m.emit("StuckJobsFound", float64(cleaned), nil)
}

// RecordSweepFailure records a sweep aborted by a scan failure.
// Partial counts from the failed attempt are deliberately NOT recorded;
// an aborted sweep must not feed historical metrics as if conclusive.
func (m *Metrics) RecordSweepFailure(ctx context.Context) {
	m.SweepFailures.Add(ctx, 1)
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}

func (m *Metrics) emit(name string, value float64, dims map[string]string) {
	if m.sink != nil {
		m.sink.Emit(name, value, dims)
	}
}
