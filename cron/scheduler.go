package cron

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// The engine provides the implementation.
type EnqueueFunc func(ctx context.Context, payload job.Payload, opts ...job.Option) (int64, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID int64)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock overrides the scheduler clock.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type registered struct {
	entry    *Entry
	schedule cronlib.Schedule
}

// Scheduler runs cron entries on a tick loop.
type Scheduler struct {
	enqueue EnqueueFunc
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*registered

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(enqueue EnqueueFunc, emitter Emitter, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		enqueue:      enqueue,
		emitter:      emitter,
		logger:       logger,
		now:          time.Now,
		tickInterval: time.Second,
		entries:      make(map[string]*registered),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates def, computes its first NextRunAt and stores it,
// replacing any entry with the same name.
func (s *Scheduler) Register(def Definition) (*Entry, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, &herald.ValidationError{Field: "name", Reason: "required"}
	}
	sched, err := ParseSchedule(def.Schedule)
	if err != nil {
		return nil, &herald.ValidationError{Field: "schedule", Reason: err.Error()}
	}
	payload := def.Payload.Clone()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if def.MaxRetries != nil && *def.MaxRetries < 0 {
		return nil, &herald.ValidationError{Field: "max_retries", Reason: "must be >= 0"}
	}

	now := s.now().UTC()
	next := sched.Next(now)
	entry := &Entry{
		Name:       name,
		Schedule:   def.Schedule,
		Payload:    payload,
		MaxRetries: def.MaxRetries,
		Enabled:    !def.Disabled,
		NextRunAt:  &next,
		CreatedAt:  now,
	}

	s.mu.Lock()
	s.entries[name] = &registered{entry: entry, schedule: sched}
	s.mu.Unlock()

	s.logger.Info("cron registered",
		slog.String("name", name),
		slog.String("schedule", def.Schedule),
		slog.String("kind", string(payload.Kind())),
		slog.Time("next_run_at", next),
	)
	return entry.clone(), nil
}

// Remove deletes an entry. It reports whether the entry existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	return true
}

// SetEnabled enables or disables an entry. Re-enabling recomputes
// NextRunAt from now so missed fires are not replayed.
func (s *Scheduler) SetEnabled(name string, enabled bool) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	if enabled && !r.entry.Enabled {
		next := r.schedule.Next(s.now().UTC())
		r.entry.NextRunAt = &next
	}
	r.entry.Enabled = enabled
	return r.entry.clone(), true
}

// Get returns a copy of the named entry.
func (s *Scheduler) Get(name string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return r.entry.clone(), true
}

// List returns copies of all entries ordered by name.
func (s *Scheduler) List() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, r := range s.entries {
		out = append(out, r.entry.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop(s.stopCh)
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.runMu.Unlock()

	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick fires every enabled entry whose NextRunAt has passed and returns how
// many jobs were enqueued.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now().UTC()

	s.mu.Lock()
	var due []*Entry
	for _, r := range s.entries {
		e := r.entry
		if !e.Enabled || e.NextRunAt == nil || e.NextRunAt.After(now) {
			continue
		}
		due = append(due, e.clone())
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, k int) bool { return due[i].NextRunAt.Before(*due[k].NextRunAt) })

	n := 0
	for _, e := range due {
		if s.fireEntry(ctx, e, now) {
			n++
		}
	}
	return n
}

func (s *Scheduler) fireEntry(ctx context.Context, e *Entry, now time.Time) bool {
	jobID, err := s.enqueue(ctx, e.Payload, e.options()...)
	if err != nil {
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.mu.Lock()
	if r, ok := s.entries[e.Name]; ok {
		next := r.schedule.Next(now)
		r.entry.LastRunAt = &now
		r.entry.NextRunAt = &next
		r.entry.LastJobID = jobID
	}
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, e.Name, jobID)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", e.Name),
		slog.Int64("job_id", jobID),
	)
	return true
}
