package job

import (
	"fmt"
	"time"

	"replicator/pkg/cloudevent"
)

// Event types for operator notifications.
const (
	EventTypeSubmitted       = "replicator.job.submitted"
	EventTypeProvisionFailed = "replicator.job.provision_failed"
	EventTypeStuckCleaned    = "replicator.job.stuck_cleaned"
)

// eventSource identifies this service in CloudEvent envelopes.
const eventSource = "replicator/jobs-service"

func newEvent(eventType, jobID string, data map[string]any) *cloudevent.CloudEvent {
	eventID := fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano())
	return cloudevent.New(eventType, eventSource, jobID, eventID, data)
}

// NewSubmittedEvent reports a job accepted with its worker launching.
func NewSubmittedEvent(jobID, instanceID string) *cloudevent.CloudEvent {
	return newEvent(EventTypeSubmitted, jobID, map[string]any{
		"jobId":      jobID,
		"instanceId": instanceID,
	})
}

// NewProvisionFailedEvent reports a worker launch rejection.
func NewProvisionFailedEvent(jobID string, cause error) *cloudevent.CloudEvent {
	return newEvent(EventTypeProvisionFailed, jobID, map[string]any{
		"jobId": jobID,
		"error": cause.Error(),
	})
}

// NewStuckCleanedEvent reports a job force-failed by the reconciler.
func NewStuckCleanedEvent(jobID string, status State, reason string) *cloudevent.CloudEvent {
	return newEvent(EventTypeStuckCleaned, jobID, map[string]any{
		"jobId":  jobID,
		"status": string(status),
		"reason": reason,
	})
}
