package dlq

import (
	"time"

	"github.com/xraph/herald/job"
)

// Entry is a failed job as shown to operators.
type Entry struct {
	JobID      int64       `json:"job_id"`
	Kind       job.Kind    `json:"kind"`
	Payload    job.Payload `json:"payload"`
	Error      string      `json:"error"`
	RetryCount int         `json:"retry_count"`
	MaxRetries int         `json:"max_retries"`
	FailedAt   time.Time   `json:"failed_at"`
	CreatedAt  time.Time   `json:"created_at"`
}

// EntryFromJob builds an Entry from a failed job.
func EntryFromJob(j *job.Job) *Entry {
	return &Entry{
		JobID:      j.ID,
		Kind:       j.Kind,
		Payload:    j.Payload.Clone(),
		Error:      j.LastError,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		FailedAt:   j.UpdatedAt,
		CreatedAt:  j.CreatedAt,
	}
}
