// Package storetest is a conformance suite run by every store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
	"github.com/xraph/herald/store"
)

// Factory returns a fresh, migrated, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises the full job.Store contract against stores built by f.
func Run(t *testing.T, f Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"SetStatus", testSetStatus},
		{"SetStatusIf", testSetStatusIf},
		{"ScheduleRetry", testScheduleRetry},
		{"SetReceipt", testSetReceipt},
		{"IncrementRetry", testIncrementRetry},
		{"IncrementRetryConcurrent", testIncrementRetryConcurrent},
		{"IncrementRetryIf", testIncrementRetryIf},
		{"QueryDue", testQueryDue},
		{"QueryByStatus", testQueryByStatus},
		{"Cancel", testCancel},
		{"RetryNow", testRetryNow},
		{"Stats", testStats},
		{"PurgeDone", testPurgeDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// NewDelivery returns an unsaved delivery job scheduled at at.
func NewDelivery(msg string, at time.Time) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Kind:   job.KindDelivery,
		Status: job.StatusPending,
		Payload: job.Payload{Delivery: &job.DeliveryPayload{
			Source:   "test",
			Message:  msg,
			Severity: job.SeverityInfo,
		}},
		MaxRetries:   3,
		ScheduledFor: at.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTrigger returns an unsaved trigger job scheduled now.
func NewTrigger(automation string) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Kind:   job.KindTrigger,
		Status: job.StatusPending,
		Payload: job.Payload{Trigger: &job.TriggerPayload{
			AutomationID: automation,
			RequestedBy:  "tester",
			Variables:    map[string]any{"room": "kitchen"},
		}},
		MaxRetries:       2,
		NotifyOnComplete: true,
		ScheduledFor:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mustCreate(t *testing.T, s store.Store, j *job.Job) int64 {
	t.Helper()
	id, err := s.Create(context.Background(), j)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func mustGet(t *testing.T, s store.Store, id int64) *job.Job {
	t.Helper()
	j, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return j
}

func sameInstant(a, b time.Time) bool {
	d := a.Sub(b)
	return d > -time.Millisecond && d < time.Millisecond
}

// ──────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate should be idempotent: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testCreateAndGet(t *testing.T, s store.Store) {
	at := time.Now().UTC().Add(5 * time.Minute)
	j := NewDelivery("hi", at)
	j.Payload.Delivery.Title = "Backup"
	j.Payload.Delivery.ChannelID = "123"

	id1 := mustCreate(t, s, j)
	if id1 <= 0 {
		t.Fatalf("id = %d, want > 0", id1)
	}
	if j.ID != id1 {
		t.Errorf("Create did not set j.ID: %d vs %d", j.ID, id1)
	}
	id2 := mustCreate(t, s, NewTrigger("automation.a"))
	if id2 == id1 {
		t.Fatal("ids must be unique")
	}

	got := mustGet(t, s, id1)
	if got.Status != job.StatusPending || got.Kind != job.KindDelivery {
		t.Errorf("got status=%q kind=%q", got.Status, got.Kind)
	}
	if got.Payload.Delivery == nil || got.Payload.Delivery.Message != "hi" || got.Payload.Delivery.Title != "Backup" {
		t.Errorf("payload round trip: %+v", got.Payload.Delivery)
	}
	if !sameInstant(got.ScheduledFor, at) {
		t.Errorf("scheduled for = %v, want %v", got.ScheduledFor, at)
	}
	if got.ExecutedAt != nil || got.RetryCount != 0 || got.MaxRetries != 3 {
		t.Errorf("unexpected fresh job: %+v", got)
	}

	tr := mustGet(t, s, id2)
	if tr.Payload.Trigger == nil || tr.Payload.Trigger.AutomationID != "automation.a" {
		t.Fatalf("trigger payload round trip: %+v", tr.Payload)
	}
	if tr.Payload.Trigger.Variables["room"] != "kitchen" || !tr.NotifyOnComplete {
		t.Errorf("trigger fields lost: %+v", tr)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Get(ctx, 424242); !errors.Is(err, herald.ErrJobNotFound) {
		t.Fatalf("Get missing err = %v, want ErrJobNotFound", err)
	}
	if err := s.SetStatus(ctx, 424242, job.StatusDone, ""); !errors.Is(err, herald.ErrJobNotFound) {
		t.Fatalf("SetStatus missing err = %v, want ErrJobNotFound", err)
	}
	if _, err := s.IncrementRetry(ctx, 424242); !errors.Is(err, herald.ErrJobNotFound) {
		t.Fatalf("IncrementRetry missing err = %v, want ErrJobNotFound", err)
	}
}

func testSetStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))

	if err := s.SetStatus(ctx, id, job.StatusPending, "boom"); err != nil {
		t.Fatalf("SetStatus pending: %v", err)
	}
	if got := mustGet(t, s, id); got.LastError != "boom" || got.ExecutedAt != nil {
		t.Errorf("after pending: last error %q executed %v", got.LastError, got.ExecutedAt)
	}

	before := time.Now().Add(-time.Second)
	if err := s.SetStatus(ctx, id, job.StatusDone, ""); err != nil {
		t.Fatalf("SetStatus done: %v", err)
	}
	got := mustGet(t, s, id)
	if got.Status != job.StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
	if got.ExecutedAt == nil || got.ExecutedAt.Before(before) {
		t.Errorf("executed at = %v, want stamped", got.ExecutedAt)
	}

	if err := s.SetStatus(ctx, id, job.StatusPending, ""); err != nil {
		t.Fatalf("SetStatus pending: %v", err)
	}
	if got := mustGet(t, s, id); got.ExecutedAt != nil || got.LastError != "" {
		t.Errorf("executed at must clear when leaving done: %+v", got)
	}
}

func testSetStatusIf(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))

	ok, err := s.SetStatusIf(ctx, id, job.StatusPending, job.StatusProcessing, "")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetStatusIf(ctx, id, job.StatusPending, job.StatusProcessing, "")
	if err != nil || ok {
		t.Fatalf("second claim should lose: ok=%v err=%v", ok, err)
	}
	if _, err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ok, err = s.SetStatusIf(ctx, id, job.StatusProcessing, job.StatusDone, "")
	if err != nil || ok {
		t.Fatalf("done after cancel should be skipped: ok=%v err=%v", ok, err)
	}
	if got := mustGet(t, s, id); got.Status != job.StatusCancelled || got.ExecutedAt != nil {
		t.Errorf("cancelled job was overwritten: %+v", got)
	}
	if _, err := s.SetStatusIf(ctx, 424242, job.StatusPending, job.StatusProcessing, ""); !errors.Is(err, herald.ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}

func testScheduleRetry(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := mustCreate(t, s, NewDelivery("hi", now.Add(-time.Minute)))

	ok, err := s.ScheduleRetry(ctx, id, now.Add(time.Hour), "boom")
	if err != nil || ok {
		t.Fatalf("retry from pending should be skipped: ok=%v err=%v", ok, err)
	}

	if _, err := s.SetStatusIf(ctx, id, job.StatusPending, job.StatusProcessing, ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	next := now.Add(2 * time.Minute)
	ok, err = s.ScheduleRetry(ctx, id, next, "boom")
	if err != nil || !ok {
		t.Fatalf("ScheduleRetry: ok=%v err=%v", ok, err)
	}

	got := mustGet(t, s, id)
	if got.Status != job.StatusPending || got.LastError != "boom" {
		t.Errorf("after retry = %q/%q, want pending/boom", got.Status, got.LastError)
	}
	if !sameInstant(got.ScheduledFor, next) {
		t.Errorf("scheduled for = %v, want %v", got.ScheduledFor, next)
	}

	due, err := s.QueryDue(ctx, now)
	if err != nil {
		t.Fatalf("QueryDue: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("job waiting out backoff must not be due, got %d", len(due))
	}
	due, err = s.QueryDue(ctx, next)
	if err != nil {
		t.Fatalf("QueryDue: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("job must be due after backoff, got %d", len(due))
	}

	if _, err := s.ScheduleRetry(ctx, 424242, next, ""); !errors.Is(err, herald.ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}

func testSetReceipt(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))
	if err := s.SetReceipt(ctx, id, "msg-123"); err != nil {
		t.Fatalf("SetReceipt: %v", err)
	}
	if got := mustGet(t, s, id); got.Receipt != "msg-123" {
		t.Errorf("receipt = %q, want msg-123", got.Receipt)
	}
}

func testIncrementRetry(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))
	for want := 1; want <= 3; want++ {
		n, err := s.IncrementRetry(ctx, id)
		if err != nil {
			t.Fatalf("IncrementRetry: %v", err)
		}
		if n != want {
			t.Fatalf("retry count = %d, want %d", n, want)
		}
	}
	if got := mustGet(t, s, id); got.RetryCount != 3 {
		t.Errorf("stored retry count = %d, want 3", got.RetryCount)
	}
}

func testIncrementRetryConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementRetry(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementRetry: %v", err)
	}
	if got := mustGet(t, s, id); got.RetryCount != n {
		t.Errorf("retry count = %d, want %d", got.RetryCount, n)
	}
}

func testIncrementRetryIf(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("hi", time.Now()))

	n, ok, err := s.IncrementRetryIf(ctx, id, job.StatusProcessing)
	if err != nil || ok || n != 0 {
		t.Fatalf("IncrementRetryIf on pending = (%d, %v, %v), want (0, false, nil)", n, ok, err)
	}
	if got := mustGet(t, s, id); got.RetryCount != 0 {
		t.Fatalf("guarded miss changed retry count to %d", got.RetryCount)
	}

	if err := s.SetStatus(ctx, id, job.StatusProcessing, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	for want := 1; want <= 2; want++ {
		n, ok, err = s.IncrementRetryIf(ctx, id, job.StatusProcessing)
		if err != nil || !ok || n != want {
			t.Fatalf("IncrementRetryIf = (%d, %v, %v), want (%d, true, nil)", n, ok, err, want)
		}
	}

	if _, err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, ok, _ := s.IncrementRetryIf(ctx, id, job.StatusProcessing); ok {
		t.Error("IncrementRetryIf bumped a cancelled job")
	}
	if got := mustGet(t, s, id); got.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", got.RetryCount)
	}

	if _, _, err := s.IncrementRetryIf(ctx, 424242, job.StatusProcessing); !errors.Is(err, herald.ErrJobNotFound) {
		t.Errorf("missing err = %v, want ErrJobNotFound", err)
	}
}

func testQueryDue(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	late := mustCreate(t, s, NewDelivery("late", now.Add(-time.Minute)))
	early := mustCreate(t, s, NewDelivery("early", now.Add(-time.Hour)))
	mustCreate(t, s, NewDelivery("future", now.Add(time.Hour)))
	doneID := mustCreate(t, s, NewDelivery("done", now.Add(-2*time.Hour)))
	if err := s.SetStatus(ctx, doneID, job.StatusDone, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	due, err := s.QueryDue(ctx, now)
	if err != nil {
		t.Fatalf("QueryDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d jobs, want 2", len(due))
	}
	if due[0].ID != early || due[1].ID != late {
		t.Errorf("order = [%d %d], want [%d %d]", due[0].ID, due[1].ID, early, late)
	}

	due, err = s.QueryDue(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("QueryDue: %v", err)
	}
	if len(due) != 3 {
		t.Errorf("due later = %d jobs, want 3", len(due))
	}
}

func testQueryByStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []int64
	for range 3 {
		ids = append(ids, mustCreate(t, s, NewDelivery("x", time.Now())))
	}
	for _, id := range ids {
		if err := s.SetStatus(ctx, id, job.StatusFailed, "nope"); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
	}
	mustCreate(t, s, NewDelivery("pending", time.Now()))

	all, err := s.QueryByStatus(ctx, job.StatusFailed, 0)
	if err != nil {
		t.Fatalf("QueryByStatus: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("failed = %d, want 3", len(all))
	}
	if all[0].ID != ids[0] || all[0].LastError != "nope" {
		t.Errorf("first = %+v", all[0])
	}

	two, err := s.QueryByStatus(ctx, job.StatusFailed, 2)
	if err != nil {
		t.Fatalf("QueryByStatus: %v", err)
	}
	if len(two) != 2 {
		t.Errorf("limited = %d, want 2", len(two))
	}
}

func testCancel(t *testing.T, s store.Store) {
	ctx := context.Background()

	tests := []struct {
		from job.Status
		want bool
	}{
		{job.StatusPending, true},
		{job.StatusProcessing, true},
		{job.StatusDone, false},
		{job.StatusFailed, false},
		{job.StatusCancelled, false},
	}
	for _, tt := range tests {
		id := mustCreate(t, s, NewDelivery("x", time.Now()))
		if err := s.SetStatus(ctx, id, tt.from, ""); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		ok, err := s.Cancel(ctx, id)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if ok != tt.want {
			t.Errorf("Cancel from %s = %v, want %v", tt.from, ok, tt.want)
		}
		got := mustGet(t, s, id)
		if tt.want && got.Status != job.StatusCancelled {
			t.Errorf("status after cancel from %s = %s", tt.from, got.Status)
		}
		if !tt.want && got.Status != tt.from {
			t.Errorf("refused cancel changed status %s -> %s", tt.from, got.Status)
		}
	}

	ok, err := s.Cancel(ctx, 424242)
	if err != nil || ok {
		t.Errorf("Cancel missing = %v, %v; want false, nil", ok, err)
	}
}

func testRetryNow(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, NewDelivery("x", time.Now()))

	ok, err := s.RetryNow(ctx, id)
	if err != nil || ok {
		t.Fatalf("RetryNow on pending = %v, %v; want false", ok, err)
	}

	for range 3 {
		if _, err := s.IncrementRetry(ctx, id); err != nil {
			t.Fatalf("IncrementRetry: %v", err)
		}
	}
	if err := s.SetStatus(ctx, id, job.StatusFailed, "kaput"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	ok, err = s.RetryNow(ctx, id)
	if err != nil || !ok {
		t.Fatalf("RetryNow on failed = %v, %v; want true", ok, err)
	}
	got := mustGet(t, s, id)
	if got.Status != job.StatusPending || got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("after retry: %+v", got)
	}

	ok, err = s.RetryNow(ctx, 424242)
	if err != nil || ok {
		t.Errorf("RetryNow missing = %v, %v; want false, nil", ok, err)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	mustCreate(t, s, NewDelivery("due", now.Add(-time.Minute)))
	mustCreate(t, s, NewDelivery("future", now.Add(5*time.Minute)))
	proc := mustCreate(t, s, NewDelivery("proc", now))
	failed := mustCreate(t, s, NewDelivery("failed", now))
	done := mustCreate(t, s, NewDelivery("done", now))
	cancelled := mustCreate(t, s, NewDelivery("cancelled", now))

	for id, st := range map[int64]job.Status{
		proc:      job.StatusProcessing,
		failed:    job.StatusFailed,
		done:      job.StatusDone,
		cancelled: job.StatusCancelled,
	} {
		if err := s.SetStatus(ctx, id, st, ""); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
	}

	st, err := s.Stats(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := job.Stats{Pending: 2, Processing: 1, ScheduledFuture: 1, Failed: 1, DoneRecent: 1}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	st, err = s.Stats(ctx, time.Now().UTC().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.DoneRecent != 0 || st.ScheduledFuture != 0 {
		t.Errorf("two days later: %+v", *st)
	}
}

func testPurgeDone(t *testing.T, s store.Store) {
	ctx := context.Background()
	done := mustCreate(t, s, NewDelivery("done", time.Now()))
	failed := mustCreate(t, s, NewDelivery("failed", time.Now()))
	pending := mustCreate(t, s, NewDelivery("pending", time.Now()))
	if err := s.SetStatus(ctx, done, job.StatusDone, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.SetStatus(ctx, failed, job.StatusFailed, "x"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	n, err := s.PurgeDone(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("PurgeDone(old cutoff) = %d, %v; want 0", n, err)
	}

	n, err = s.PurgeDone(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeDone = %d, %v; want 1", n, err)
	}
	if _, err := s.Get(ctx, done); !errors.Is(err, herald.ErrJobNotFound) {
		t.Errorf("done job should be gone, err = %v", err)
	}
	mustGet(t, s, failed)
	mustGet(t, s, pending)
}
