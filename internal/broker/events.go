// Package broker task lifecycle events.
// This file defines the event stream emitted by the dispatcher and the
// worker pool; the server wires it to metrics.
package broker

import "time"

// EventType names a task lifecycle transition
type EventType string

const (
	// EventEnqueued fires when a task is handed to the broker
	EventEnqueued EventType = "enqueued"
	// EventStarted fires when a worker begins executing a delivery
	EventStarted EventType = "started"
	// EventSucceeded fires when a task completes
	EventSucceeded EventType = "succeeded"
	// EventRetried fires when a failed task is scheduled for redelivery
	EventRetried EventType = "retried"
	// EventFailed fires when a task fails terminally
	EventFailed EventType = "failed"
)

// Event describes one task lifecycle transition
type Event struct {
	Type       EventType
	TaskID     string
	TaskType   string
	Queue      string
	Worker     string
	RetryCount int
	Elapsed    time.Duration
	Err        error
}

// EventSink receives lifecycle events. Sinks run inline on the dispatch
// and worker paths and must not block.
type EventSink func(Event)

// emit forwards the event when a sink is configured
func emit(sink EventSink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}
