// Package sse streams batch progress to HTTP clients as Server-Sent Events.
package sse

import (
	"context"
	"time"
)

// Event is one Server-Sent Event, written as
// "event: <Type>\nid: <ID>\ndata: <JSON Data>\n\n".
type Event struct {
	Type string `json:"type"`
	// Job scopes the event to a batch job class for client filtering. It is
	// not written to the stream.
	Job  string `json:"-"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data"`
}

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker fans published events out to subscribed clients.
type Broker interface {
	Publisher
	// Subscribe returns a channel closed when ctx ends, cleanup is called or
	// the broker stops. A nil channel means the subscription was rejected.
	Subscribe(ctx context.Context, opts ...ClientOption) (events <-chan Event, cleanup func())
	Start(ctx context.Context) error
	Stop() error
	ClientCount() int
}

// Batch event types.
const (
	EventTypeBatchStarted  = "batch:started"
	EventTypeBatchItem     = "batch:item"
	EventTypeBatchFinished = "batch:finished"
)

const (
	eventTypeConnected = "connected"
)

// Item statuses.
const (
	ItemStatusSucceeded = "succeeded"
	ItemStatusFailed    = "failed"
	ItemStatusSkipped   = "skipped"
)

// BatchStartedData is the payload of batch:started.
type BatchStartedData struct {
	Job       string `json:"job"`
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Timestamp string `json:"timestamp"`
}

// BatchItemData is the payload of batch:item, sent once per date.
type BatchItemData struct {
	Job        string `json:"job"`
	RunID      string `json:"run_id"`
	Date       string `json:"date"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// BatchFinishedData is the payload of batch:finished.
type BatchFinishedData struct {
	Job          string `json:"job"`
	RunID        string `json:"run_id"`
	Success      bool   `json:"success"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	StoppedEarly bool   `json:"stopped_early"`
	Remaining    int    `json:"remaining"`
	Timestamp    string `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewBatchStartedEvent creates a batch:started event.
func NewBatchStartedEvent(job, runID string, total int) Event {
	return Event{
		Type: EventTypeBatchStarted,
		Job:  job,
		ID:   runID,
		Data: BatchStartedData{Job: job, RunID: runID, Total: total, Timestamp: timestamp()},
	}
}

// NewBatchItemEvent creates a batch:item event. A nil err with skipped false
// is a success.
func NewBatchItemEvent(job, runID, date string, err error, skipped bool, d time.Duration) Event {
	data := BatchItemData{
		Job:        job,
		RunID:      runID,
		Date:       date,
		Status:     ItemStatusSucceeded,
		DurationMs: d.Milliseconds(),
		Timestamp:  timestamp(),
	}
	switch {
	case skipped:
		data.Status = ItemStatusSkipped
	case err != nil:
		data.Status = ItemStatusFailed
		data.Error = err.Error()
	}
	return Event{Type: EventTypeBatchItem, Job: job, ID: runID, Data: data}
}

// NewBatchFinishedEvent creates a batch:finished event.
func NewBatchFinishedEvent(job string, data BatchFinishedData) Event {
	data.Job = job
	data.Timestamp = timestamp()
	return Event{Type: EventTypeBatchFinished, Job: job, ID: data.RunID, Data: data}
}
