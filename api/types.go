package api

import (
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/job"
)

// CreateDeliveryRequest is the body of POST /v1/deliveries.
type CreateDeliveryRequest struct {
	Source       string `json:"source"`
	Message      string `json:"message"`
	Severity     string `json:"severity,omitempty"`
	Title        string `json:"title,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
	MaxRetries   *int   `json:"max_retries,omitempty"`
}

// CreateTriggerRequest is the body of POST /v1/triggers.
type CreateTriggerRequest struct {
	AutomationID     string         `json:"automation_id"`
	RequestedBy      string         `json:"requested_by,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
	NotifyOnComplete bool           `json:"notify_on_complete,omitempty"`
	ScheduledFor     string         `json:"scheduled_for,omitempty"`
	MaxRetries       *int           `json:"max_retries,omitempty"`
}

// EnqueueResponse is returned by the create endpoints.
type EnqueueResponse struct {
	ID int64 `json:"id"`
}

// JobListResponse wraps a list of jobs.
type JobListResponse struct {
	Jobs  []*job.Job `json:"jobs"`
	Count int        `json:"count"`
}

// DLQListResponse wraps a list of failed-job entries.
type DLQListResponse struct {
	Entries []*dlq.Entry `json:"entries"`
	Count   int          `json:"count"`
}

// ReplayResponse reports how many failed jobs were replayed.
type ReplayResponse struct {
	Replayed int `json:"replayed"`
}

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	*job.Stats
	Queues []string `json:"queues"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func scheduleOptions(scheduledFor string, maxRetries *int) []job.Option {
	var opts []job.Option
	if scheduledFor != "" {
		opts = append(opts, job.WithSchedule(scheduledFor))
	}
	if maxRetries != nil {
		opts = append(opts, job.WithMaxRetries(*maxRetries))
	}
	return opts
}
