package ext

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald/job"
)

// hook is one extension's implementation of hook interface H.
type hook[H any] struct {
	ext  string
	impl H
}

// hooks is the per-interface fan-out list.
type hooks[H any] []hook[H]

func (hs *hooks[H]) add(e Extension) {
	if impl, ok := e.(H); ok {
		*hs = append(*hs, hook[H]{ext: e.Name(), impl: impl})
	}
}

// Registry fans lifecycle events out to extensions in registration order.
// Hook errors and panics are logged and swallowed: an extension can never
// change the outcome of a job.
type Registry struct {
	logger *slog.Logger

	mu           sync.RWMutex
	all          []Extension
	jobEnqueued  hooks[JobEnqueued]
	jobStarted   hooks[JobStarted]
	jobCompleted hooks[JobCompleted]
	jobRetrying  hooks[JobRetrying]
	jobFailed    hooks[JobFailed]
	jobCancelled hooks[JobCancelled]
	jobRecovered hooks[JobRecovered]
	cronFired    hooks[CronFired]
	shutdown     hooks[Shutdown]
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds e to every hook list it implements.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.all = append(r.all, e)
	r.jobEnqueued.add(e)
	r.jobStarted.add(e)
	r.jobCompleted.add(e)
	r.jobRetrying.add(e)
	r.jobFailed.add(e)
	r.jobCancelled.add(e)
	r.jobRecovered.add(e)
	r.cronFired.add(e)
	r.shutdown.add(e)
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.all...)
}

func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	dispatch(r, &r.jobEnqueued, "OnJobEnqueued", func(h JobEnqueued) error {
		return h.OnJobEnqueued(ctx, j)
	})
}

func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	dispatch(r, &r.jobStarted, "OnJobStarted", func(h JobStarted) error {
		return h.OnJobStarted(ctx, j)
	})
}

func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	dispatch(r, &r.jobCompleted, "OnJobCompleted", func(h JobCompleted) error {
		return h.OnJobCompleted(ctx, j, elapsed)
	})
}

func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	dispatch(r, &r.jobRetrying, "OnJobRetrying", func(h JobRetrying) error {
		return h.OnJobRetrying(ctx, j, attempt, nextRunAt)
	})
}

func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	dispatch(r, &r.jobFailed, "OnJobFailed", func(h JobFailed) error {
		return h.OnJobFailed(ctx, j, jobErr)
	})
}

func (r *Registry) EmitJobCancelled(ctx context.Context, jobID int64) {
	dispatch(r, &r.jobCancelled, "OnJobCancelled", func(h JobCancelled) error {
		return h.OnJobCancelled(ctx, jobID)
	})
}

func (r *Registry) EmitJobRecovered(ctx context.Context, j *job.Job) {
	dispatch(r, &r.jobRecovered, "OnJobRecovered", func(h JobRecovered) error {
		return h.OnJobRecovered(ctx, j)
	})
}

func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobID int64) {
	dispatch(r, &r.cronFired, "OnCronFired", func(h CronFired) error {
		return h.OnCronFired(ctx, entryName, jobID)
	})
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(r, &r.shutdown, "OnShutdown", func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

// dispatch calls fn for every hook in list. The list is copied under the
// read lock so a hook may register further extensions without deadlock.
func dispatch[H any](r *Registry, list *hooks[H], name string, fn func(H) error) {
	r.mu.RLock()
	targets := append(hooks[H](nil), (*list)...)
	r.mu.RUnlock()

	for _, h := range targets {
		if err := call(h.impl, fn); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", name),
				slog.String("extension", h.ext),
				slog.String("error", err.Error()),
			)
		}
	}
}

func call[H any](impl H, fn func(H) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(impl)
}
