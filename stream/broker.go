package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
)

var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobEnqueued  = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobCompleted = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.JobCancelled = (*Broker)(nil)
	_ ext.JobRecovered = (*Broker)(nil)
	_ ext.CronFired    = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// Defaults for new subscribers.
const (
	DefaultBufferSize       = 256
	DefaultCredits    int64 = 1000
)

// Broker turns lifecycle hooks into Events and hands each one to every
// subscriber of any topic it was published on, once per subscriber.
type Broker struct {
	logger  *slog.Logger
	now     func() time.Time
	buffer  int
	credits int64

	mu     sync.RWMutex
	subs   map[string]*Subscriber
	topics map[string]map[*Subscriber]struct{}

	published int64 // guarded by mu
	dropped   int64 // guarded by mu
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets how many undelivered events a subscriber may hold.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.buffer = size }
}

// WithDefaultCredits sets the credits a new subscriber starts with.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.credits = credits }
}

// WithClock stamps events with now instead of time.Now.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker returns a broker with no subscribers. A nil logger means
// slog.Default.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		logger:  logger,
		now:     time.Now,
		buffer:  DefaultBufferSize,
		credits: DefaultCredits,
		subs:    make(map[string]*Subscriber),
		topics:  make(map[string]map[*Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// Subscribe attaches a new subscriber to topics. Reusing a live ID
// replaces the old subscriber, which is closed.
func (b *Broker) Subscribe(id string, topics ...string) *Subscriber {
	sub := newSubscriber(id, b.buffer, b.credits)

	b.mu.Lock()
	old := b.detach(id)
	b.subs[id] = sub
	for _, t := range topics {
		set, ok := b.topics[t]
		if !ok {
			set = make(map[*Subscriber]struct{})
			b.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	b.mu.Unlock()

	if old != nil {
		old.close()
	}
	return sub
}

// RemoveSubscriber detaches and closes the subscriber. Unknown IDs are
// ignored.
func (b *Broker) RemoveSubscriber(id string) {
	b.mu.Lock()
	sub := b.detach(id)
	b.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// detach unlinks id from every topic and drops topics left empty. The
// caller holds mu for writing.
func (b *Broker) detach(id string) *Subscriber {
	sub, ok := b.subs[id]
	if !ok {
		return nil
	}
	delete(b.subs, id)
	for t, set := range b.topics {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.topics, t)
		}
	}
	return sub
}

// BrokerStats is a snapshot of broker counters. Published and dropped
// count per-subscriber deliveries, not events.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns current subscription counts and delivery totals.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BrokerStats{
		TopicCount:      len(b.topics),
		SubscriberCount: len(b.subs),
		TotalPublished:  b.published,
		TotalDropped:    b.dropped,
	}
}

// ──────────────────────────────────────────────────
// Publishing
// ──────────────────────────────────────────────────

func (b *Broker) publish(typ EventType, topics []string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("stream: encode event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}
	evt := &Event{Type: typ, Timestamp: b.now().UTC(), Topic: topics[0], Data: raw}

	b.mu.RLock()
	targets := make(map[*Subscriber]struct{})
	for _, t := range topics {
		for sub := range b.topics[t] {
			targets[sub] = struct{}{}
		}
	}
	b.mu.RUnlock()

	var sent, lost int64
	for sub := range targets {
		if sub.offer(evt) {
			sent++
		} else {
			lost++
		}
	}

	b.mu.Lock()
	b.published += sent
	b.dropped += lost
	b.mu.Unlock()
}

func (b *Broker) publishJob(typ EventType, d JobEventData) {
	b.publish(typ, jobTopics(d.JobID, d.Kind), d)
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobEnqueued, describe(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, describe(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	d := describe(j)
	d.ElapsedMs = elapsed.Milliseconds()
	d.Receipt = j.Receipt
	b.publishJob(EventJobCompleted, d)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	d := describe(j)
	d.Attempt = attempt
	d.NextRunAt = nextRunAt.UTC().Format(time.RFC3339)
	d.Error = j.LastError
	b.publishJob(EventJobRetrying, d)
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	d := describe(j)
	if jobErr != nil {
		d.Error = jobErr.Error()
	}
	b.publishJob(EventJobFailed, d)
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (b *Broker) OnJobCancelled(_ context.Context, id int64) error {
	b.publishJob(EventJobCancelled, JobEventData{JobID: id, Status: string(job.StatusCancelled)})
	return nil
}

// OnJobRecovered implements ext.JobRecovered.
func (b *Broker) OnJobRecovered(_ context.Context, j *job.Job) error {
	d := describe(j)
	d.Error = j.LastError
	b.publishJob(EventJobRecovered, d)
	return nil
}

// OnCronFired implements ext.CronFired.
func (b *Broker) OnCronFired(_ context.Context, entryName string, id int64) error {
	b.publish(EventCronFired, []string{TopicCron, TopicFirehose}, CronEventData{EntryName: entryName, JobID: id})
	return nil
}

// OnShutdown closes every subscriber so stream handlers return.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.topics = make(map[string]map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
