package job

import "time"

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to run, either because it is
	// not yet due or because it is waiting out a retry backoff.
	StatusPending Status = "pending"
	// StatusProcessing means the executor is running the job right now.
	StatusProcessing Status = "processing"
	// StatusDone means the job finished successfully.
	StatusDone Status = "done"
	// StatusFailed means the job exhausted its retries and is parked.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Kind selects the queue and executor that run a job.
type Kind string

const (
	// KindDelivery jobs send a chat notification.
	KindDelivery Kind = "delivery"
	// KindTrigger jobs fire a remote automation.
	KindTrigger Kind = "trigger"
)

// Job represents a unit of work tracked through the persistent state machine.
type Job struct {
	ID               int64      `json:"id"`
	Kind             Kind       `json:"kind"`
	Status           Status     `json:"status"`
	Payload          Payload    `json:"payload"`
	MaxRetries       int        `json:"max_retries"`
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error,omitempty"`
	Receipt          string     `json:"receipt,omitempty"`
	NotifyOnComplete bool       `json:"notify_on_complete,omitempty"`
	ScheduledFor     time.Time  `json:"scheduled_for"`
	ExecutedAt       *time.Time `json:"executed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Due reports whether the job is eligible to run at the given time.
func (j *Job) Due(now time.Time) bool {
	return !j.ScheduledFor.After(now)
}

// Clone returns a deep copy of the job. Stores hand out clones so callers
// can never mutate stored state.
func (j *Job) Clone() *Job {
	cp := *j
	if j.ExecutedAt != nil {
		t := *j.ExecutedAt
		cp.ExecutedAt = &t
	}
	cp.Payload = j.Payload.Clone()
	return &cp
}
