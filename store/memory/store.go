// Package memory provides an in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	jobs   map[int64]*job.Job
	nextID int64
	closed bool
	now    func() time.Time
}

// Option configures a memory Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp ExecutedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs: make(map[int64]*job.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return herald.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later calls fail with ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// Create persists a new job in pending state and assigns its ID.
func (m *Store) Create(_ context.Context, j *job.Job) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, herald.ErrStoreClosed
	}

	m.nextID++
	now := m.now().UTC()
	cp := j.Clone()
	cp.ID = m.nextID
	cp.Status = job.StatusPending
	cp.ExecutedAt = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.ScheduledFor.IsZero() {
		cp.ScheduledFor = cp.CreatedAt
	}
	cp.UpdatedAt = now
	m.jobs[cp.ID] = cp

	j.ID = cp.ID
	return cp.ID, nil
}

// Get retrieves a job by ID.
func (m *Store) Get(_ context.Context, id int64) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, herald.ErrStoreClosed
	}

	j, ok := m.jobs[id]
	if !ok {
		return nil, herald.ErrJobNotFound
	}
	return j.Clone(), nil
}

// SetStatus unconditionally moves a job to status.
func (m *Store) SetStatus(_ context.Context, id int64, status job.Status, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.apply(j, status, errText)
	return nil
}

// SetStatusIf moves a job from one status to another only if it is
// currently in from.
func (m *Store) SetStatusIf(_ context.Context, id int64, from, to job.Status, errText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return false, err
	}
	if j.Status != from {
		return false, nil
	}
	m.apply(j, to, errText)
	return true, nil
}

// ScheduleRetry returns a processing job to pending, due at at.
func (m *Store) ScheduleRetry(_ context.Context, id int64, at time.Time, errText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return false, err
	}
	if j.Status != job.StatusProcessing {
		return false, nil
	}
	m.apply(j, job.StatusPending, errText)
	j.ScheduledFor = at.UTC()
	return true, nil
}

// SetReceipt records the executor receipt.
func (m *Store) SetReceipt(_ context.Context, id int64, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	j.Receipt = receipt
	j.UpdatedAt = m.now().UTC()
	return nil
}

// IncrementRetry bumps RetryCount and returns the new value.
func (m *Store) IncrementRetry(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	j.RetryCount++
	j.UpdatedAt = m.now().UTC()
	return j.RetryCount, nil
}

// IncrementRetryIf bumps RetryCount only while the job is in status.
func (m *Store) IncrementRetryIf(_ context.Context, id int64, status job.Status) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.lookup(id)
	if err != nil {
		return 0, false, err
	}
	if j.Status != status {
		return 0, false, nil
	}
	j.RetryCount++
	j.UpdatedAt = m.now().UTC()
	return j.RetryCount, true, nil
}

// QueryDue returns pending jobs scheduled at or before cutoff, earliest
// first.
func (m *Store) QueryDue(_ context.Context, cutoff time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, herald.ErrStoreClosed
	}

	var due []*job.Job
	for _, j := range m.jobs {
		if j.Status == job.StatusPending && !j.ScheduledFor.After(cutoff) {
			due = append(due, j.Clone())
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].ScheduledFor.Equal(due[k].ScheduledFor) {
			return due[i].ID < due[k].ID
		}
		return due[i].ScheduledFor.Before(due[k].ScheduledFor)
	})
	return due, nil
}

// QueryByStatus returns jobs in the given status ordered by creation.
func (m *Store) QueryByStatus(_ context.Context, status job.Status, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, herald.ErrStoreClosed
	}

	var result []*job.Job
	for _, j := range m.jobs {
		if j.Status == status {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Cancel moves a pending or processing job to cancelled.
func (m *Store) Cancel(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, herald.ErrStoreClosed
	}

	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.Status != job.StatusPending && j.Status != job.StatusProcessing {
		return false, nil
	}
	m.apply(j, job.StatusCancelled, j.LastError)
	return true, nil
}

// RetryNow moves a failed job back to pending with a fresh retry budget.
func (m *Store) RetryNow(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, herald.ErrStoreClosed
	}

	j, ok := m.jobs[id]
	if !ok || j.Status != job.StatusFailed {
		return false, nil
	}
	j.Status = job.StatusPending
	j.RetryCount = 0
	j.LastError = ""
	j.UpdatedAt = m.now().UTC()
	return true, nil
}

// Stats returns aggregate counts relative to now.
func (m *Store) Stats(_ context.Context, now time.Time) (*job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, herald.ErrStoreClosed
	}

	recent := now.Add(-job.DoneWindow)
	var st job.Stats
	for _, j := range m.jobs {
		switch j.Status {
		case job.StatusPending:
			st.Pending++
			if j.ScheduledFor.After(now) {
				st.ScheduledFuture++
			}
		case job.StatusProcessing:
			st.Processing++
		case job.StatusFailed:
			st.Failed++
		case job.StatusDone:
			if j.ExecutedAt != nil && !j.ExecutedAt.Before(recent) {
				st.DoneRecent++
			}
		}
	}
	return &st, nil
}

// PurgeDone deletes done jobs executed before olderThan.
func (m *Store) PurgeDone(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, herald.ErrStoreClosed
	}

	var n int64
	for id, j := range m.jobs {
		if j.Status == job.StatusDone && j.ExecutedAt != nil && j.ExecutedAt.Before(olderThan) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// lookup must be called with mu held.
func (m *Store) lookup(id int64) (*job.Job, error) {
	if m.closed {
		return nil, herald.ErrStoreClosed
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, herald.ErrJobNotFound
	}
	return j, nil
}

// apply must be called with mu held.
func (m *Store) apply(j *job.Job, status job.Status, errText string) {
	now := m.now().UTC()
	j.Status = status
	j.UpdatedAt = now
	if status == job.StatusDone {
		j.ExecutedAt = &now
		return
	}
	j.ExecutedAt = nil
	j.LastError = errText
}
