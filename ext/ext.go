// Package ext lets code outside the engine observe jobs as they move
// through their lifecycle. An extension is anything with a Name; it opts
// into events by also implementing hook interfaces, one per event:
//
//	type pager struct{ notify func(string) }
//
//	func (pager) Name() string { return "pager" }
//
//	func (p pager) OnJobFailed(_ context.Context, j *job.Job, err error) error {
//	    p.notify(fmt.Sprintf("%s job %d parked: %v", j.Kind, j.ID, err))
//	    return nil
//	}
//
// Hooks run synchronously on the queue goroutine that caused the event, so
// they should return quickly. A hook that errors or panics is logged by the
// [Registry] and does not affect the job.
package ext

import (
	"context"
	"time"

	"github.com/xraph/herald/job"
)

// Extension is implemented by everything registered with a Registry. An
// extension receives only the events whose hook interfaces it implements.
type Extension interface {
	Name() string
}

// JobEnqueued fires once the job row exists.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted fires after the claim, before the executor runs.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted fires after the row is marked done.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying fires after a failed attempt when the job went back to
// pending. attempt equals the job's new RetryCount.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobFailed fires when the job is parked after its last attempt.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled fires after a successful cancel.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, jobID int64) error
}

// JobRecovered fires for each job that startup recovery moved from
// processing back to pending.
type JobRecovered interface {
	OnJobRecovered(ctx context.Context, j *job.Job) error
}

// CronFired fires after a cron entry enqueued its job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID int64) error
}

// Shutdown fires once the queues have drained.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
