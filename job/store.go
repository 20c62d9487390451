package job

import (
	"context"
	"time"
)

// DoneWindow is the trailing window used for Stats.DoneRecent.
const DoneWindow = 24 * time.Hour

// Stats is an aggregate snapshot of the job table.
type Stats struct {
	Pending         int64 `json:"pending"`
	Processing      int64 `json:"processing"`
	ScheduledFuture int64 `json:"scheduled_future"`
	Failed          int64 `json:"failed"`
	DoneRecent      int64 `json:"done_recent"`
}

// Store defines the persistence contract for jobs. Every method is atomic
// with respect to a single job row.
type Store interface {
	// Create inserts j as pending and returns the store-assigned ID. j.ID is
	// set on success.
	Create(ctx context.Context, j *Job) (int64, error)

	// Get retrieves a job by ID. Returns herald.ErrJobNotFound when absent.
	Get(ctx context.Context, id int64) (*Job, error)

	// SetStatus unconditionally sets the status. Transitioning to done
	// stamps ExecutedAt; any other status overwrites LastError with errText.
	SetStatus(ctx context.Context, id int64, status Status, errText string) error

	// SetStatusIf is SetStatus guarded by a compare-and-set on the current
	// status. It reports whether the row was updated.
	SetStatusIf(ctx context.Context, id int64, from, to Status, errText string) (bool, error)

	// ScheduleRetry moves a processing job back to pending, records errText
	// as LastError and pushes ScheduledFor to at. It reports whether the
	// row was still processing.
	ScheduleRetry(ctx context.Context, id int64, at time.Time, errText string) (bool, error)

	// SetReceipt records the executor receipt for a job.
	SetReceipt(ctx context.Context, id int64, receipt string) error

	// IncrementRetry atomically increments RetryCount and returns the new
	// value.
	IncrementRetry(ctx context.Context, id int64) (int, error)

	// IncrementRetryIf is IncrementRetry guarded on the current status. It
	// returns the new count and true, or 0 and false when the job is in
	// another status.
	IncrementRetryIf(ctx context.Context, id int64, status Status) (int, bool, error)

	// QueryDue returns pending jobs with ScheduledFor <= cutoff, earliest
	// first.
	QueryDue(ctx context.Context, cutoff time.Time) ([]*Job, error)

	// QueryByStatus returns jobs in the given status, oldest first. A limit
	// of zero means no limit.
	QueryByStatus(ctx context.Context, status Status, limit int) ([]*Job, error)

	// Cancel moves a pending or processing job to cancelled. It returns
	// false when the job is absent or already terminal.
	Cancel(ctx context.Context, id int64) (bool, error)

	// RetryNow moves a failed job back to pending, resetting RetryCount and
	// clearing LastError. It returns false when the job is not failed.
	RetryNow(ctx context.Context, id int64) (bool, error)

	// Stats returns aggregate counts relative to now.
	Stats(ctx context.Context, now time.Time) (*Stats, error)

	// PurgeDone deletes done jobs whose ExecutedAt is before olderThan and
	// returns the number removed.
	PurgeDone(ctx context.Context, olderThan time.Time) (int64, error)
}
