package audithook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
)

var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobEnqueued  = (*Extension)(nil)
	_ ext.JobStarted   = (*Extension)(nil)
	_ ext.JobCompleted = (*Extension)(nil)
	_ ext.JobRetrying  = (*Extension)(nil)
	_ ext.JobFailed    = (*Extension)(nil)
	_ ext.JobCancelled = (*Extension)(nil)
	_ ext.JobRecovered = (*Extension)(nil)
	_ ext.CronFired    = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f(ctx, event).
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension records Herald lifecycle events through a Recorder. Recorder
// errors are logged and never fail the hook.
type Extension struct {
	recorder Recorder
	actions  map[string]struct{}   // nil means every action
	kinds    map[job.Kind]struct{} // nil means every kind
	logger   *slog.Logger
}

// New creates an Extension that records through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{recorder: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	evt := jobEvent(ActionJobEnqueued, j)
	evt.Metadata["scheduled_for"] = j.ScheduledFor.UTC().Format(time.RFC3339)
	evt.Metadata["max_retries"] = j.MaxRetries
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	evt := jobEvent(ActionJobStarted, j)
	evt.Metadata["retry_count"] = j.RetryCount
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	evt := jobEvent(ActionJobCompleted, j)
	evt.Metadata["elapsed_ms"] = elapsed.Milliseconds()
	if j.Receipt != "" {
		evt.Metadata["receipt"] = j.Receipt
	}
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	evt := jobEvent(ActionJobRetrying, j).with(SeverityWarning, OutcomeFailure)
	evt.Metadata["attempt"] = attempt
	evt.Metadata["next_run_at"] = nextRunAt.UTC().Format(time.RFC3339)
	if j.LastError != "" {
		evt.Reason = j.LastError
	}
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	evt := jobEvent(ActionJobFailed, j).with(SeverityCritical, OutcomeFailure)
	evt.Metadata["retry_count"] = j.RetryCount
	evt.Metadata["max_retries"] = j.MaxRetries
	if jobErr != nil {
		evt.Reason = jobErr.Error()
		evt.Metadata["error"] = evt.Reason
	}
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobCancelled(ctx context.Context, id int64) error {
	evt := &AuditEvent{
		Action:     ActionJobCancelled,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: strconv.FormatInt(id, 10),
		Metadata:   map[string]any{},
		Outcome:    OutcomeSuccess,
		Severity:   SeverityWarning,
	}
	return e.emit(ctx, evt)
}

func (e *Extension) OnJobRecovered(ctx context.Context, j *job.Job) error {
	evt := jobEvent(ActionJobRecovered, j).with(SeverityWarning, OutcomeSuccess)
	if j.LastError != "" {
		evt.Metadata["last_error"] = j.LastError
	}
	return e.emit(ctx, evt)
}

func (e *Extension) OnCronFired(ctx context.Context, entryName string, id int64) error {
	return e.emit(ctx, &AuditEvent{
		Action:     ActionCronFired,
		Resource:   ResourceCron,
		Category:   CategoryCron,
		ResourceID: entryName,
		Metadata:   map[string]any{"job_id": id},
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	})
}

// jobEvent starts an info/success event for j, carrying the fields an
// operator needs to find the job: kind plus the payload's routing field.
func jobEvent(action string, j *job.Job) *AuditEvent {
	meta := map[string]any{"kind": string(j.Kind)}
	switch {
	case j.Payload.Delivery != nil:
		meta["source"] = j.Payload.Delivery.Source
	case j.Payload.Trigger != nil:
		meta["automation_id"] = j.Payload.Trigger.AutomationID
		if j.Payload.Trigger.RequestedBy != "" {
			meta["requested_by"] = j.Payload.Trigger.RequestedBy
		}
	}
	return &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: strconv.FormatInt(j.ID, 10),
		Metadata:   meta,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	}
}

func (evt *AuditEvent) with(severity, outcome string) *AuditEvent {
	evt.Severity = severity
	evt.Outcome = outcome
	return evt
}

func (e *Extension) wants(evt *AuditEvent) bool {
	if e.actions != nil {
		if _, ok := e.actions[evt.Action]; !ok {
			return false
		}
	}
	if e.kinds == nil {
		return true
	}
	kind, ok := evt.Metadata["kind"].(string)
	if !ok {
		return true
	}
	_, ok = e.kinds[job.Kind(kind)]
	return ok
}

func (e *Extension) emit(ctx context.Context, evt *AuditEvent) error {
	if !e.wants(evt) {
		return nil
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
