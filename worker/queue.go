package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
	"github.com/xraph/herald/middleware"
)

// Notifier receives the completion summary of jobs that asked for one.
// Errors are logged and never change the job's status.
type Notifier interface {
	Emit(ctx context.Context, j *job.Job, summary string, success bool) error
}

// Queue is a sequential executor for one job kind. A single goroutine
// consumes job IDs in submission order, so at most one executor call is
// in flight per Queue.
type Queue struct {
	kind       job.Kind
	store      job.Store
	executor   job.Executor
	backoff    backoff.Strategy
	extensions *ext.Registry
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time

	mws         []middleware.Middleware
	mw          middleware.Middleware
	execTimeout time.Duration

	wake   chan struct{} // holds one token while waiting has grown
	quit   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closing bool
	waiting []int64            // FIFO of submitted IDs, unbounded
	queued  map[int64]struct{} // IDs in waiting
	timers  map[*time.Timer]struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) { q.backoff = s }
}

// WithExtensions sets the registry that receives lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.extensions = r }
}

// WithNotifier sets the completion side-channel.
func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// WithMiddleware appends middleware around each executor call.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mws = append(q.mws, mws...) }
}

// WithExecTimeout bounds each executor call. Zero disables the bound.
func WithExecTimeout(d time.Duration) Option {
	return func(q *Queue) { q.execTimeout = d }
}

// WithClock overrides the clock used to compute retry times.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue that runs jobs of the given kind through executor.
// Call Start to begin processing.
func New(kind job.Kind, store job.Store, executor job.Executor, opts ...Option) *Queue {
	q := &Queue{
		kind:        kind,
		store:       store,
		executor:    executor,
		backoff:     backoff.DefaultStrategy(),
		logger:      slog.Default(),
		now:         time.Now,
		execTimeout: herald.DefaultConfig().ExecTimeout,
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		queued:      make(map[int64]struct{}),
		timers:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.extensions == nil {
		q.extensions = ext.NewRegistry(q.logger)
	}
	q.logger = q.logger.With(slog.String("queue", string(kind)))

	chain := make([]middleware.Middleware, 0, len(q.mws)+2)
	chain = append(chain, middleware.Recover(q.logger))
	chain = append(chain, q.mws...)
	chain = append(chain, middleware.Timeout(q.execTimeout))
	q.mw = middleware.Chain(chain...)

	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Kind returns the job kind this queue runs.
func (q *Queue) Kind() job.Kind { return q.kind }

// Start launches the processing goroutine. It returns immediately.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closing {
		return
	}
	q.started = true
	q.logger.Info("queue starting")
	go q.loop()
}

// Enqueue persists j and, when it is already due, submits it for
// processing. It returns the store-assigned ID without waiting for the
// executor.
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) (int64, error) {
	if j.Kind != q.kind {
		return 0, &herald.ValidationError{Field: "kind", Reason: "queue " + string(q.kind) + " cannot run " + string(j.Kind) + " jobs"}
	}
	if q.isClosing() {
		return 0, herald.ErrQueueClosed
	}

	id, err := q.store.Create(ctx, j)
	if err != nil {
		return 0, err
	}
	q.extensions.EmitJobEnqueued(ctx, j)
	q.logger.Debug("job enqueued",
		slog.Int64("job_id", id),
		slog.Time("scheduled_for", j.ScheduledFor),
	)

	if j.Due(q.now()) {
		_ = q.Process(id)
	}
	return id, nil
}

// Process submits a job ID for sequential processing. It never blocks and
// never drops: IDs wait in submission order however long the backlog is.
// Submitting an ID that is already waiting is a no-op.
func (q *Queue) Process(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing {
		return herald.ErrQueueClosed
	}
	if _, ok := q.queued[id]; ok {
		return nil
	}
	q.queued[id] = struct{}{}
	q.waiting = append(q.waiting, id)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel moves a pending or processing job to cancelled. An in-flight
// executor call is not interrupted; its outcome is discarded.
func (q *Queue) Cancel(ctx context.Context, id int64) (bool, error) {
	ok, err := q.store.Cancel(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	q.extensions.EmitJobCancelled(ctx, id)
	q.logger.Info("job cancelled", slog.Int64("job_id", id))
	return true, nil
}

// Retry moves a failed job back to pending with a fresh retry budget and
// submits it for processing.
func (q *Queue) Retry(ctx context.Context, id int64) (bool, error) {
	ok, err := q.store.RetryNow(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	q.logger.Info("job retried manually", slog.Int64("job_id", id))
	if err := q.Process(id); err != nil {
		q.logger.Warn("retried job left pending", slog.Int64("job_id", id), slog.String("error", err.Error()))
	}
	return true, nil
}

// Shutdown stops accepting work, disarms retry timers and waits for the
// in-flight job. IDs still waiting in the queue are dropped and their jobs
// stay pending. When ctx expires first the in-flight executor call is
// cancelled and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closing {
		q.closing = true
		for t := range q.timers {
			t.Stop()
		}
		clear(q.timers)
		close(q.quit)
	}
	started := q.started
	q.mu.Unlock()

	if !started {
		q.cancel()
		return nil
	}

	q.logger.Info("queue stopping")
	select {
	case <-q.done:
		q.cancel()
		q.logger.Info("queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue shutdown timed out, cancelling in-flight job")
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

func (q *Queue) loop() {
	defer close(q.done)
	for {
		if id, ok := q.pop(); ok {
			q.process(q.ctx, id)
			continue
		}
		select {
		case <-q.quit:
			q.drain()
			return
		case <-q.wake:
		}
	}
}

// pop takes the oldest waiting ID. It yields nothing once shutdown has
// begun so the loop falls through to drain.
func (q *Queue) pop() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing || len(q.waiting) == 0 {
		return 0, false
	}
	id := q.waiting[0]
	q.waiting = q.waiting[1:]
	if len(q.waiting) == 0 {
		q.waiting = nil
	}
	delete(q.queued, id)
	return id, true
}

// drain forgets every waiting ID. Their rows stay pending for recovery or
// the next scheduler tick.
func (q *Queue) drain() {
	q.mu.Lock()
	left := q.waiting
	q.waiting = nil
	clear(q.queued)
	q.mu.Unlock()

	for _, id := range left {
		q.logger.Debug("job left pending at shutdown", slog.Int64("job_id", id))
	}
}

func (q *Queue) isClosing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closing
}

// after re-submits id once delay has elapsed. Nothing is armed once
// shutdown has begun; the job stays pending with its ScheduledFor set.
func (q *Queue) after(delay time.Duration, id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		_ = q.Process(id)
	})
	q.timers[t] = struct{}{}
}
