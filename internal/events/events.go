// Package events provides a pub/sub bus for worker and pool lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted when a worker goroutine becomes live
	EventWorkerStarted EventType = "worker_started"
	// EventJobPicked is emitted when a worker dequeues a job
	EventJobPicked EventType = "job_picked"
	// EventWorkerStopped is emitted when a worker exits its loop
	EventWorkerStopped EventType = "worker_stopped"
	// EventWorkerFailed is emitted when a worker exits because a job panicked
	EventWorkerFailed EventType = "worker_failed"
	// EventPoolStopped is emitted after every worker has been joined
	EventPoolStopped EventType = "pool_stopped"
)

// Reason explains why a worker stopped
type Reason string

const (
	ReasonQueueClosed Reason = "queue_closed"
	ReasonRecvFailed  Reason = "recv_failed"
	ReasonPanic       Reason = "panic"
)

// Event represents a lifecycle event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Reason Reason `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newEvent(t EventType, workerID int) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(workerID int) Event {
	return newEvent(EventWorkerStarted, workerID)
}

// NewJobPickedEvent creates a job picked event
func NewJobPickedEvent(workerID int) Event {
	return newEvent(EventJobPicked, workerID)
}

// NewWorkerStoppedEvent creates a worker stopped event
func NewWorkerStoppedEvent(workerID int, reason Reason, err error) Event {
	e := newEvent(EventWorkerStopped, workerID)
	e.Data.Reason = reason
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewWorkerFailedEvent creates a worker failed event
func NewWorkerFailedEvent(workerID int, err error) Event {
	e := newEvent(EventWorkerFailed, workerID)
	e.Data.Reason = ReasonPanic
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewPoolStoppedEvent creates a pool stopped event. WorkerID is -1.
func NewPoolStoppedEvent() Event {
	return newEvent(EventPoolStopped, -1)
}
