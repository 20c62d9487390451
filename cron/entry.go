package cron

import (
	"time"

	"github.com/xraph/herald/job"
)

// Entry represents a registered cron job.
type Entry struct {
	Name       string      `json:"name"`
	Schedule   string      `json:"schedule"`
	Payload    job.Payload `json:"payload"`
	MaxRetries *int        `json:"max_retries,omitempty"`
	Enabled    bool        `json:"enabled"`
	LastRunAt  *time.Time  `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time  `json:"next_run_at,omitempty"`
	LastJobID  int64       `json:"last_job_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Payload = e.Payload.Clone()
	if e.MaxRetries != nil {
		n := *e.MaxRetries
		cp.MaxRetries = &n
	}
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		cp.LastRunAt = &t
	}
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		cp.NextRunAt = &t
	}
	return &cp
}

// options returns the job options applied to every enqueued job.
func (e *Entry) options() []job.Option {
	if e.MaxRetries == nil {
		return nil
	}
	return []job.Option{job.WithMaxRetries(*e.MaxRetries)}
}
