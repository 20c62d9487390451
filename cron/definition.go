package cron

import "github.com/xraph/herald/job"

// Definition describes a recurring job to register with the Scheduler.
type Definition struct {
	// Name is the unique identifier for this cron entry.
	Name string `json:"name"`

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string `json:"schedule"`

	// Payload is enqueued on every fire.
	Payload job.Payload `json:"payload"`

	// MaxRetries overrides the job default when set.
	MaxRetries *int `json:"max_retries,omitempty"`

	// Disabled registers the entry without arming it.
	Disabled bool `json:"disabled,omitempty"`
}
