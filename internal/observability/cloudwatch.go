package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// cloudwatchTimeout bounds each PutMetricData call so a slow CloudWatch
// endpoint cannot hold goroutines open indefinitely.
const cloudwatchTimeout = 5 * time.Second

// CloudWatchAPI is the subset of the CloudWatch client used by the sink.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink emits counters to CloudWatch under a fixed namespace.
//
// Emissions are fire-and-forget: each runs on its own goroutine with a
// short timeout, and failures are logged, never surfaced. The sink must
// never block or fail the caller's primary operation.
type CloudWatchSink struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchSink creates a sink publishing under the given namespace.
func NewCloudWatchSink(cfg aws.Config, namespace string) *CloudWatchSink {
	return &CloudWatchSink{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		logger:    slog.With("component", "cloudwatch-sink"),
	}
}

// Emit publishes a single counter datum. Non-blocking.
func (s *CloudWatchSink) Emit(name string, value float64, dimensions map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cloudwatchTimeout)
		defer cancel()

		_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(s.namespace),
			MetricData: []cwtypes.MetricDatum{datum},
		})
		if err != nil {
			s.logger.Warn("Metric emission failed", "metric", name, "error", err)
		}
	}()
}

// Verify CloudWatchSink implements Sink
var _ Sink = (*CloudWatchSink)(nil)
