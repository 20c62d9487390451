package job

import (
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/timeexpr"
)

// Options configures per-job behavior such as retries and scheduling.
type Options struct {
	// MaxRetries is the number of failed attempts tolerated before the job
	// is parked as failed.
	MaxRetries int

	// Schedule is a time expression ("5m", "2 hours", "now", an absolute
	// date). Empty means immediate.
	Schedule string

	// RunAt schedules the job at an absolute time. It wins over Schedule.
	RunAt time.Time

	// NotifyOnComplete asks for a completion summary. Trigger jobs only.
	NotifyOnComplete bool
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithSchedule sets a relative or absolute time expression.
func WithSchedule(expr string) Option {
	return func(o *Options) {
		o.Schedule = expr
	}
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithNotifyOnComplete requests a completion message for a trigger job.
func WithNotifyOnComplete(v bool) Option {
	return func(o *Options) {
		o.NotifyOnComplete = v
	}
}

// Build validates the payload, resolves the schedule and returns a pending
// job ready to be handed to Store.Create. The ID is assigned by the store.
func Build(now time.Time, payload Payload, opts ...Option) (*Job, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := payload.Clone()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if o.MaxRetries < 0 {
		return nil, &herald.ValidationError{Field: "max_retries", Reason: "must be >= 0"}
	}
	kind := p.Kind()
	if o.NotifyOnComplete && kind != KindTrigger {
		return nil, &herald.ValidationError{Field: "notify_on_complete", Reason: "only supported for trigger jobs"}
	}

	scheduled := now
	switch {
	case !o.RunAt.IsZero():
		scheduled = o.RunAt
	case o.Schedule != "":
		t, err := timeexpr.Resolve(o.Schedule, now)
		if err != nil {
			return nil, err
		}
		scheduled = t
	}

	return &Job{
		Kind:             kind,
		Status:           StatusPending,
		Payload:          p,
		MaxRetries:       o.MaxRetries,
		NotifyOnComplete: o.NotifyOnComplete,
		ScheduledFor:     scheduled.UTC(),
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}, nil
}
