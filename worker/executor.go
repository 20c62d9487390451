// Package worker provides the job queue engine: a sequential Queue per job
// kind that claims jobs from the store, runs them through middleware and the
// kind's Executor, and drives retry, parking and completion side effects.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

// process runs one pass of the state machine for id. Every step after the
// claim is guarded by a compare-and-set on the processing status so a job
// cancelled mid-flight keeps its cancelled status.
func (q *Queue) process(ctx context.Context, id int64) {
	if q.isClosing() {
		q.logger.Debug("job left pending at shutdown", slog.Int64("job_id", id))
		return
	}

	j, err := q.store.Get(ctx, id)
	if errors.Is(err, herald.ErrJobNotFound) {
		q.logger.Debug("job vanished before processing", slog.Int64("job_id", id))
		return
	}
	if err != nil {
		q.logger.Error("load job failed", slog.Int64("job_id", id), slog.String("error", err.Error()))
		return
	}
	if j.Status != job.StatusPending {
		q.logger.Debug("job not pending, skipping",
			slog.Int64("job_id", id),
			slog.String("status", string(j.Status)),
		)
		return
	}
	if j.Kind != q.kind {
		q.logger.Warn("job kind does not match queue, skipping",
			slog.Int64("job_id", id),
			slog.String("kind", string(j.Kind)),
		)
		return
	}

	claimed, err := q.store.SetStatusIf(ctx, id, job.StatusPending, job.StatusProcessing, j.LastError)
	if err != nil {
		q.logger.Error("claim job failed", slog.Int64("job_id", id), slog.String("error", err.Error()))
		return
	}
	if !claimed {
		return
	}
	j.Status = job.StatusProcessing

	q.extensions.EmitJobStarted(ctx, j)
	q.execute(ctx, j)
}

// execute runs the executor through the middleware chain and records the
// outcome. Bookkeeping writes survive cancellation of ctx so a shutdown
// deadline never strands a finished attempt.
func (q *Queue) execute(ctx context.Context, j *job.Job) {
	start := time.Now()

	var receipt string
	terminal := func(ctx context.Context) error {
		r, err := q.executor.Execute(ctx, j)
		receipt = r
		return err
	}

	err := q.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	bg := context.WithoutCancel(ctx)
	if err != nil {
		q.handleFailure(bg, j, err)
		return
	}
	q.handleSuccess(bg, j, receipt, elapsed)
}

// handleSuccess marks the job done and emits the lifecycle event. The
// receipt is written only once the row is done, so a job cancelled
// mid-flight is left exactly as the cancel wrote it.
func (q *Queue) handleSuccess(ctx context.Context, j *job.Job, receipt string, elapsed time.Duration) {
	ok, err := q.store.SetStatusIf(ctx, j.ID, job.StatusProcessing, job.StatusDone, "")
	if err != nil {
		q.logger.Error("mark job done failed", slog.Int64("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		q.logger.Info("job changed status while running, discarding success", slog.Int64("job_id", j.ID))
		return
	}

	now := q.now().UTC()
	j.Status = job.StatusDone
	j.ExecutedAt = &now

	if receipt != "" {
		if err := q.store.SetReceipt(ctx, j.ID, receipt); err != nil {
			q.logger.Error("record receipt failed",
				slog.Int64("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
		j.Receipt = receipt
	}

	q.extensions.EmitJobCompleted(ctx, j, elapsed)
	q.notify(ctx, j, nil)
}

// handleFailure counts the failed attempt and either schedules a retry or
// parks the job as failed. The count only moves while the row is still
// processing.
func (q *Queue) handleFailure(ctx context.Context, j *job.Job, cause error) {
	count, ok, err := q.store.IncrementRetryIf(ctx, j.ID, job.StatusProcessing)
	if err != nil {
		q.logger.Error("increment retry failed", slog.Int64("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		q.logger.Info("job changed status while running, discarding failure", slog.Int64("job_id", j.ID))
		return
	}
	j.RetryCount = count
	j.LastError = cause.Error()

	execErr := &herald.ExecutionError{JobID: j.ID, Attempt: count, Err: cause}
	if count >= j.MaxRetries {
		q.park(ctx, j, execErr)
		return
	}
	q.scheduleRetry(ctx, j, execErr)
}

// scheduleRetry returns the job to pending, due after the backoff delay,
// and arms a timer to re-submit it.
func (q *Queue) scheduleRetry(ctx context.Context, j *job.Job, execErr *herald.ExecutionError) {
	delay := q.backoff.Delay(j.RetryCount)
	next := q.now().UTC().Add(delay)

	ok, err := q.store.ScheduleRetry(ctx, j.ID, next, j.LastError)
	if err != nil {
		q.logger.Error("schedule retry failed", slog.Int64("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		q.logger.Info("job changed status while running, discarding retry", slog.Int64("job_id", j.ID))
		return
	}
	j.Status = job.StatusPending
	j.ScheduledFor = next

	q.extensions.EmitJobRetrying(ctx, j, j.RetryCount, next)
	q.logger.Info("job scheduled for retry",
		slog.Int64("job_id", j.ID),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
		slog.String("error", execErr.Err.Error()),
	)
	q.after(delay, j.ID)
}

// park marks the job failed after it exhausted its retries.
func (q *Queue) park(ctx context.Context, j *job.Job, execErr *herald.ExecutionError) {
	ok, err := q.store.SetStatusIf(ctx, j.ID, job.StatusProcessing, job.StatusFailed, j.LastError)
	if err != nil {
		q.logger.Error("mark job failed failed", slog.Int64("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		q.logger.Info("job changed status while running, discarding failure", slog.Int64("job_id", j.ID))
		return
	}
	j.Status = job.StatusFailed

	q.extensions.EmitJobFailed(ctx, j, execErr)
	q.logger.Warn("job failed after exhausting retries",
		slog.Int64("job_id", j.ID),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", execErr.Err.Error()),
	)
	q.notify(ctx, j, execErr)
}

// notify emits the completion summary for trigger jobs that asked for one.
func (q *Queue) notify(ctx context.Context, j *job.Job, jobErr error) {
	if q.notifier == nil || !j.NotifyOnComplete || j.Kind != job.KindTrigger {
		return
	}
	if err := q.notifier.Emit(ctx, j, Summary(j, jobErr), jobErr == nil); err != nil {
		q.logger.Warn("completion notification failed",
			slog.Int64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Summary renders the completion message for a finished job.
func Summary(j *job.Job, jobErr error) string {
	name := fmt.Sprintf("job %d", j.ID)
	if t := j.Payload.Trigger; t != nil {
		name = "automation " + t.AutomationID
	}
	if jobErr != nil {
		var execErr *herald.ExecutionError
		if errors.As(jobErr, &execErr) {
			jobErr = execErr.Err
		}
		noun := "attempts"
		if j.RetryCount == 1 {
			noun = "attempt"
		}
		return fmt.Sprintf("%s failed after %d %s: %v", name, j.RetryCount, noun, jobErr)
	}
	if t := j.Payload.Trigger; t != nil && t.RequestedBy != "" {
		return fmt.Sprintf("%s triggered (requested by %s)", name, t.RequestedBy)
	}
	return name + " completed"
}
