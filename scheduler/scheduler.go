// Package scheduler bridges due jobs in the store to their queues. It holds
// no job state of its own: a tick queries pending jobs whose ScheduledFor has
// passed and submits each to the queue registered for its kind. Ticks are
// idempotent, so skipping one or running one twice never loses or duplicates
// work.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

// Processor accepts job IDs for processing. *worker.Queue satisfies it.
type Processor interface {
	Process(id int64) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides the clock used to decide which jobs are due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithQueue routes jobs of kind to p.
func WithQueue(kind job.Kind, p Processor) Option {
	return func(s *Scheduler) { s.queues[kind] = p }
}

// Scheduler polls the store for due jobs on a fixed interval.
type Scheduler struct {
	store  job.Store
	queues map[job.Kind]Processor
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler over store.
func New(store job.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		queues: make(map[job.Kind]Processor),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick submits every due job to its queue, earliest first, and returns how
// many were submitted.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.store.QueryDue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, j := range due {
		q, ok := s.queues[j.Kind]
		if !ok {
			s.logger.Warn("no queue for due job",
				slog.Int64("job_id", j.ID),
				slog.String("kind", string(j.Kind)),
				slog.String("error", herald.ErrNoExecutor.Error()),
			)
			continue
		}
		if err := q.Process(j.ID); err != nil {
			if errors.Is(err, herald.ErrQueueClosed) {
				return n, nil
			}
			s.logger.Error("submit due job failed",
				slog.Int64("job_id", j.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	return n, nil
}

// Start arms the polling loop. A non-positive interval uses the default
// poll interval. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(interval time.Duration) {
	if interval <= 0 {
		interval = herald.DefaultConfig().PollInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(interval, s.stopCh)
	s.logger.Info("scheduler started", slog.Duration("interval", interval))
}

// Stop disarms the polling loop and waits for an in-progress tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := s.Tick(context.Background())
			if err != nil {
				s.logger.Error("scheduler tick failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Debug("scheduler tick", slog.Int("submitted", n))
			}
		}
	}
}
