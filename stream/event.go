// Package stream publishes job lifecycle events to live subscribers. The
// Broker is registered with the engine as an extension; the API serves its
// subscriptions over SSE and WebSocket.
//
// Events are advisory. A subscriber that falls behind loses events, and
// the job store stays the source of truth.
package stream

import (
	"encoding/json"
	"time"

	"github.com/xraph/herald/job"
)

// EventType names a lifecycle event. The values match the audit actions.
type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
	EventJobRecovered EventType = "job.recovered"
	EventCronFired    EventType = "cron.fired"
)

// Event is one message on the wire. Topic is the most specific topic the
// event was published on, so a firehose reader can still route it.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// JobEventData describes a job at the moment of the event. Source and
// AutomationID come from the payload, whichever kind it is.
type JobEventData struct {
	JobID        int64  `json:"job_id"`
	Kind         string `json:"kind,omitempty"`
	Status       string `json:"status,omitempty"`
	Source       string `json:"source,omitempty"`
	AutomationID string `json:"automation_id,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	NextRunAt    string `json:"next_run_at,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Receipt      string `json:"receipt,omitempty"`
	Error        string `json:"error,omitempty"`
}

// CronEventData identifies the schedule entry that fired and the job it
// enqueued.
type CronEventData struct {
	EntryName string `json:"entry_name"`
	JobID     int64  `json:"job_id"`
}

func describe(j *job.Job) JobEventData {
	d := JobEventData{
		JobID:      j.ID,
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		RetryCount: j.RetryCount,
	}
	switch {
	case j.Payload.Delivery != nil:
		d.Source = j.Payload.Delivery.Source
	case j.Payload.Trigger != nil:
		d.AutomationID = j.Payload.Trigger.AutomationID
	}
	return d
}
