package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/herald"
	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/cron"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
	mw "github.com/xraph/herald/middleware"
	"github.com/xraph/herald/notify"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/scheduler"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/worker"
)

// Engine owns one queue per job kind, the due-job scheduler, the cron
// scheduler and the retention sweep. Create one with New.
type Engine struct {
	config     herald.Config
	store      store.Store
	logger     *slog.Logger
	now        func() time.Time
	extensions *ext.Registry
	exts       []ext.Extension
	bo         backoff.Strategy
	mws        []mw.Middleware

	executors map[job.Kind]job.Executor
	notifier  worker.Notifier
	summaryTo string

	queues     map[job.Kind]*worker.Queue
	scheduler  *scheduler.Scheduler
	cron       *cron.Scheduler
	dlqService *dlq.Service

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Prometheus registerer (optional; nil disables the collectors).
	registerer prometheus.Registerer

	mu        sync.Mutex
	started   bool
	stopped   bool
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg herald.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the structured logger for the engine and its subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithClock overrides the engine clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware adds middleware to the executor chain of every queue.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. If not set, an exponential
// strategy based on Config.BackoffBase is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithDeliveryExecutor sets the executor for delivery jobs. Without one,
// delivery jobs are rejected with herald.ErrNoExecutor.
func WithDeliveryExecutor(e job.Executor) Option {
	return func(eng *Engine) { eng.executors[job.KindDelivery] = e }
}

// WithTriggerExecutor sets the executor for trigger jobs. Without one,
// trigger jobs are rejected with herald.ErrNoExecutor.
func WithTriggerExecutor(e job.Executor) Option {
	return func(eng *Engine) { eng.executors[job.KindTrigger] = e }
}

// WithNotifier replaces the completion side-channel. By default summaries
// are enqueued as delivery jobs through notify.SideChannel.
func WithNotifier(n worker.Notifier) Option {
	return func(eng *Engine) { eng.notifier = n }
}

// WithSummaryChannel sets the channel used by the default side-channel.
func WithSummaryChannel(channelID string) Option {
	return func(eng *Engine) { eng.summaryTo = channelID }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithRegisterer registers the Prometheus lifecycle extension and the
// store stats collector with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(eng *Engine) { eng.registerer = reg }
}

// New builds an Engine over s. Queues are created for every kind that has
// an executor. Call Start to begin processing.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, herald.ErrNoStore
	}

	eng := &Engine{
		config:    herald.DefaultConfig(),
		store:     s,
		logger:    slog.Default(),
		now:       time.Now,
		executors: make(map[job.Kind]job.Executor),
		queues:    make(map[job.Kind]*worker.Queue),
	}
	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions = ext.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewExponential(eng.config.BackoffBase, 0)
	}
	if eng.notifier == nil {
		eng.notifier = notify.NewSideChannel(eng, eng.summaryTo)
	}

	if eng.registerer != nil {
		eng.extensions.Register(observability.NewMetricsExtension(eng.registerer))
		if err := eng.registerer.Register(observability.NewStatsCollector(s, eng.logger)); err != nil {
			return nil, fmt.Errorf("herald: register stats collector: %w", err)
		}
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/herald"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/herald"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Queue chain: recover → tracing → metrics → logging → user → timeout.
	chain := make([]mw.Middleware, 0, 3+len(eng.mws))
	chain = append(chain, tracingMw, metricsMw, mw.Logging(eng.logger))
	chain = append(chain, eng.mws...)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(eng.logger),
		scheduler.WithClock(eng.now),
	}
	for _, kind := range []job.Kind{job.KindDelivery, job.KindTrigger} {
		exec, ok := eng.executors[kind]
		if !ok {
			continue
		}
		q := worker.New(kind, s, exec,
			worker.WithLogger(eng.logger),
			worker.WithBackoff(eng.bo),
			worker.WithExtensions(eng.extensions),
			worker.WithNotifier(eng.notifier),
			worker.WithMiddleware(chain...),
			worker.WithExecTimeout(eng.config.ExecTimeout),
			worker.WithClock(eng.now),
		)
		eng.queues[kind] = q
		schedOpts = append(schedOpts, scheduler.WithQueue(kind, q))
	}

	eng.scheduler = scheduler.New(s, schedOpts...)
	eng.cron = cron.NewScheduler(eng.Enqueue, eng.extensions, eng.logger, cron.WithClock(eng.now))
	eng.dlqService = dlq.NewService(s, eng, eng.logger)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Producer boundary
// ──────────────────────────────────────────────────

// Enqueue validates payload, persists a new job and submits it when due.
// It returns the job ID without waiting for execution. Validation and
// time-expression errors are returned before anything is persisted.
func (eng *Engine) Enqueue(ctx context.Context, payload job.Payload, opts ...job.Option) (int64, error) {
	all := make([]job.Option, 0, len(opts)+1)
	all = append(all, job.WithMaxRetries(eng.config.MaxRetries))
	all = append(all, opts...)

	j, err := job.Build(eng.now(), payload, all...)
	if err != nil {
		return 0, err
	}
	q, ok := eng.queues[j.Kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", herald.ErrNoExecutor, j.Kind)
	}
	return q.Enqueue(ctx, j)
}

// EnqueueDelivery enqueues a notification job.
func (eng *Engine) EnqueueDelivery(ctx context.Context, p job.DeliveryPayload, opts ...job.Option) (int64, error) {
	return eng.Enqueue(ctx, job.Payload{Delivery: &p}, opts...)
}

// EnqueueTrigger enqueues a remote automation job.
func (eng *Engine) EnqueueTrigger(ctx context.Context, p job.TriggerPayload, opts ...job.Option) (int64, error) {
	return eng.Enqueue(ctx, job.Payload{Trigger: &p}, opts...)
}

// Cancel moves a pending or processing job to cancelled. It returns
// herald.ErrJobNotFound for unknown IDs and a *herald.StateConflictError
// when the job is already terminal.
func (eng *Engine) Cancel(ctx context.Context, id int64) error {
	j, err := eng.store.Get(ctx, id)
	if err != nil {
		return err
	}

	var ok bool
	if q, found := eng.queues[j.Kind]; found {
		ok, err = q.Cancel(ctx, id)
	} else {
		ok, err = eng.store.Cancel(ctx, id)
		if ok {
			eng.extensions.EmitJobCancelled(ctx, id)
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		return eng.conflict(ctx, id, "cancel")
	}
	return nil
}

// Retry moves a failed job back to pending with a fresh retry budget and
// submits it. It returns herald.ErrJobNotFound for unknown IDs and a
// *herald.StateConflictError when the job is not failed.
func (eng *Engine) Retry(ctx context.Context, id int64) error {
	j, err := eng.store.Get(ctx, id)
	if err != nil {
		return err
	}
	q, found := eng.queues[j.Kind]
	if !found {
		return fmt.Errorf("%w: %s", herald.ErrNoExecutor, j.Kind)
	}
	ok, err := q.Retry(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return eng.conflict(ctx, id, "retry")
	}
	return nil
}

func (eng *Engine) conflict(ctx context.Context, id int64, op string) error {
	j, err := eng.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return &herald.StateConflictError{ID: id, Op: op, Status: string(j.Status)}
}

// Get returns a job by ID.
func (eng *Engine) Get(ctx context.Context, id int64) (*job.Job, error) {
	return eng.store.Get(ctx, id)
}

// Stats returns aggregate job counts.
func (eng *Engine) Stats(ctx context.Context) (*job.Stats, error) {
	return eng.store.Stats(ctx, eng.now())
}

// ListDue returns pending jobs whose time has come, earliest first.
func (eng *Engine) ListDue(ctx context.Context) ([]*job.Job, error) {
	return eng.store.QueryDue(ctx, eng.now())
}

// ListFailed returns failed jobs, oldest first. A limit of zero means no
// limit.
func (eng *Engine) ListFailed(ctx context.Context, limit int) ([]*job.Job, error) {
	return eng.store.QueryByStatus(ctx, job.StatusFailed, limit)
}

// Ping checks the store.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// Recover resets jobs left in processing by an unclean shutdown to pending
// and returns how many were reset. LastError is preserved.
func (eng *Engine) Recover(ctx context.Context) (int, error) {
	stuck, err := eng.store.QueryByStatus(ctx, job.StatusProcessing, 0)
	if err != nil {
		return 0, fmt.Errorf("herald: query processing jobs: %w", err)
	}
	for _, j := range stuck {
		if err := eng.store.SetStatus(ctx, j.ID, job.StatusPending, j.LastError); err != nil {
			return 0, fmt.Errorf("herald: recover job %d: %w", j.ID, err)
		}
		j.Status = job.StatusPending
		eng.extensions.EmitJobRecovered(ctx, j)
		eng.logger.Info("recovered stuck job",
			slog.Int64("job_id", j.ID),
			slog.String("kind", string(j.Kind)),
		)
	}
	return len(stuck), nil
}

// Sweep deletes done jobs older than Config.RetentionAge.
func (eng *Engine) Sweep(ctx context.Context) (int64, error) {
	n, err := eng.store.PurgeDone(ctx, eng.now().Add(-eng.config.RetentionAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		eng.logger.Info("purged done jobs", slog.Int64("count", n))
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start recovers stuck jobs, starts the queues, runs one scheduler tick and
// then arms the scheduler, the cron scheduler and the retention sweep.
// An Engine cannot be restarted after Stop.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.stopped {
		return herald.ErrQueueClosed
	}
	if eng.started {
		return nil
	}

	n, err := eng.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		eng.logger.Warn("reset jobs left processing", slog.Int("count", n))
	}

	for _, q := range eng.queues {
		q.Start()
	}
	if _, err := eng.scheduler.Tick(ctx); err != nil {
		eng.logger.Error("initial scheduler tick failed", slog.String("error", err.Error()))
	}
	eng.scheduler.Start(eng.config.PollInterval)

	if err := eng.cron.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}

	if eng.config.RetentionInterval > 0 {
		eng.sweepStop = make(chan struct{})
		eng.sweepDone = make(chan struct{})
		go eng.sweepLoop(eng.config.RetentionInterval, eng.sweepStop, eng.sweepDone)
	}

	eng.started = true
	eng.logger.Info("engine started",
		slog.Int("queues", len(eng.queues)),
		slog.Duration("poll_interval", eng.config.PollInterval),
	)
	return nil
}

// Stop disarms the schedulers and drains every queue. Queues get at most
// Config.ShutdownTimeout, bounded further by ctx. Jobs still waiting stay
// pending and are picked up after the next Start.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	eng.scheduler.Stop()
	if err := eng.cron.Stop(ctx); err != nil {
		eng.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
	}
	if eng.sweepStop != nil {
		close(eng.sweepStop)
		<-eng.sweepDone
		eng.sweepStop = nil
	}

	if eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for kind, q := range eng.queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Shutdown(ctx); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s queue: %w", kind, err))
				emu.Unlock()
			}
		}()
	}
	wg.Wait()

	eng.extensions.EmitShutdown(ctx)
	eng.started = false
	eng.stopped = true
	eng.logger.Info("engine stopped")
	return errors.Join(errs...)
}

func (eng *Engine) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := eng.Sweep(context.Background()); err != nil {
				eng.logger.Error("retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns a copy of the engine configuration.
func (eng *Engine) Config() herald.Config { return eng.config }

// Logger returns the engine logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Queue returns the queue for kind, or nil when no executor was configured.
func (eng *Engine) Queue(kind job.Kind) *worker.Queue { return eng.queues[kind] }

// Scheduler returns the due-job scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Cron returns the cron scheduler.
func (eng *Engine) Cron() *cron.Scheduler { return eng.cron }

// DLQService returns the failed-job service.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }
