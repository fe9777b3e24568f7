// Package dispatcher provides async webhook notification with buffering and retry.
package dispatcher

import (
	"context"
	"errors"

	"replicator/pkg/cloudevent"
)

// ErrBufferFull is returned when the dispatcher's buffer is full and the event is dropped.
var ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

// Dispatcher fans job lifecycle events out to the configured operator
// webhooks. Implementations may use in-memory buffering, message queues, etc.
type Dispatcher interface {
	// Dispatch queues an event for async delivery to every configured
	// destination. Non-blocking. Returns ErrBufferFull if the event
	// cannot be queued for at least one destination.
	Dispatch(event *cloudevent.CloudEvent) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to deliver queued events.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// delivery is one queued send: an event bound to a single destination.
type delivery struct {
	payload     *cloudevent.CloudEvent
	destination string
	requeues    int // times requeued due to an open circuit
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth    int   // current queue size
	Queued        int64 // total deliveries queued
	Delivered     int64 // successful deliveries
	Failed        int64 // failed after retries
	Dropped       int64 // dropped due to full buffer or max requeues
	Requeued      int64 // requeued due to open circuit
	RetriesTotal  int64 // total retry attempts
	BreakersTotal int   // total circuit breakers
	BreakersOpen  int   // currently open breakers
}
