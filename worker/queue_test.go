package worker_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/backoff"
	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/worker"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func setupQueue(t *testing.T, kind job.Kind, exec job.Executor, opts ...worker.Option) (*worker.Queue, *memory.Store) {
	t.Helper()
	s := memory.New()
	base := []worker.Option{
		worker.WithLogger(slog.Default()),
		worker.WithBackoff(backoff.NewConstant(5 * time.Millisecond)),
	}
	q := worker.New(kind, s, exec, append(base, opts...)...)
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q, s
}

func delivery(t *testing.T, opts ...job.Option) *job.Job {
	t.Helper()
	j, err := job.Build(time.Now(), job.Payload{
		Delivery: &job.DeliveryPayload{Source: "test", Message: "hi"},
	}, opts...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return j
}

func trigger(t *testing.T, opts ...job.Option) *job.Job {
	t.Helper()
	j, err := job.Build(time.Now(), job.Payload{
		Trigger: &job.TriggerPayload{AutomationID: "automation.lights_off", RequestedBy: "alice"},
	}, opts...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return j
}

func waitForStatus(t *testing.T, s job.Store, id int64, want job.Status) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		j, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}
		if j.Status == want {
			return j
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %d status = %q, want %q", id, j.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingExecutor struct {
	calls atomic.Int32
	fn    func(ctx context.Context, j *job.Job, call int) (string, error)
}

func (c *countingExecutor) Execute(ctx context.Context, j *job.Job) (string, error) {
	n := int(c.calls.Add(1))
	if c.fn == nil {
		return "", nil
	}
	return c.fn(ctx, j, n)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	outcomes []bool
	err      error
}

func (r *recordingNotifier) Emit(_ context.Context, _ *job.Job, summary string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, summary)
	r.outcomes = append(r.outcomes, success)
	return r.err
}

func (r *recordingNotifier) snapshot() ([]string, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...), append([]bool(nil), r.outcomes...)
}

type hookRecorder struct {
	mu     sync.Mutex
	events []string
}

func (h *hookRecorder) Name() string { return "recorder" }

func (h *hookRecorder) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *hookRecorder) OnJobEnqueued(context.Context, *job.Job) error { h.add("enqueued"); return nil }
func (h *hookRecorder) OnJobStarted(context.Context, *job.Job) error  { h.add("started"); return nil }
func (h *hookRecorder) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	h.add("completed")
	return nil
}
func (h *hookRecorder) OnJobRetrying(_ context.Context, _ *job.Job, attempt int, _ time.Time) error {
	h.add(fmt.Sprintf("retrying:%d", attempt))
	return nil
}
func (h *hookRecorder) OnJobFailed(context.Context, *job.Job, error) error {
	h.add("failed")
	return nil
}
func (h *hookRecorder) OnJobCancelled(context.Context, int64) error { h.add("cancelled"); return nil }

func (h *hookRecorder) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

func TestQueue_EnqueueImmediateRunsToDone(t *testing.T) {
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		return "msg-1", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)

	id, err := q.Enqueue(context.Background(), delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	got := waitForStatus(t, s, id, job.StatusDone)
	if got.ExecutedAt == nil {
		t.Error("executed at should be set on done")
	}
	if got.Receipt != "msg-1" {
		t.Errorf("receipt = %q, want msg-1", got.Receipt)
	}
	if n := exec.calls.Load(); n != 1 {
		t.Errorf("executor calls = %d, want 1", n)
	}
}

func TestQueue_EnqueueFutureStaysPending(t *testing.T) {
	exec := &countingExecutor{}
	q, s := setupQueue(t, job.KindDelivery, exec)

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithSchedule("5m")))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if n := exec.calls.Load(); n != 0 {
		t.Errorf("executor calls = %d, want 0", n)
	}

	st, err := s.Stats(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.ScheduledFuture != 1 {
		t.Errorf("scheduled future = %d, want 1", st.ScheduledFuture)
	}
}

func TestQueue_EnqueueWrongKind(t *testing.T) {
	q, _ := setupQueue(t, job.KindDelivery, &countingExecutor{})

	_, err := q.Enqueue(context.Background(), trigger(t))
	if !errors.Is(err, herald.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

// ──────────────────────────────────────────────────
// Process
// ──────────────────────────────────────────────────

func TestQueue_ProcessIsNoOpUnlessPending(t *testing.T) {
	for _, status := range []job.Status{
		job.StatusProcessing, job.StatusDone, job.StatusFailed, job.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			exec := &countingExecutor{}
			q, s := setupQueue(t, job.KindDelivery, exec)
			ctx := context.Background()

			id, err := s.Create(ctx, delivery(t))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := s.SetStatus(ctx, id, status, "kept"); err != nil {
				t.Fatalf("SetStatus: %v", err)
			}
			before, _ := s.Get(ctx, id)

			if err := q.Process(id); err != nil {
				t.Fatalf("Process: %v", err)
			}

			// The queue is sequential: once the sentinel is done the
			// earlier ID has been handled.
			sentinel, err := q.Enqueue(ctx, delivery(t))
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			waitForStatus(t, s, sentinel, job.StatusDone)

			if n := exec.calls.Load(); n != 1 {
				t.Errorf("executor calls = %d, want 1 (sentinel only)", n)
			}
			after, _ := s.Get(ctx, id)
			if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Errorf("job changed: before %+v after %+v", before, after)
			}
		})
	}
}

func TestQueue_ProcessMissingJob(t *testing.T) {
	exec := &countingExecutor{}
	q, s := setupQueue(t, job.KindDelivery, exec)

	if err := q.Process(999); err != nil {
		t.Fatalf("Process: %v", err)
	}
	sentinel, err := q.Enqueue(context.Background(), delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, sentinel, job.StatusDone)
	if n := exec.calls.Load(); n != 1 {
		t.Errorf("executor calls = %d, want 1", n)
	}
}

func TestQueue_Sequential(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return "", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)

	var ids []int64
	for range 10 {
		id, err := q.Enqueue(context.Background(), delivery(t))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, s, id, job.StatusDone)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent executions = %d, want 1", p)
	}
}

func TestQueue_BacklogNeverDrops(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)
	ctx := context.Background()

	// Far more than any fixed buffer would hold, all submitted while the
	// executor is stuck on the first job.
	const n = 1000
	ids := make([]int64, 0, n)
	for range n {
		id, err := q.Enqueue(ctx, delivery(t))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	<-started
	close(release)

	// No scheduler runs here: every job has to come through the queue.
	for _, id := range ids {
		waitForStatus(t, s, id, job.StatusDone)
	}
	if got := exec.calls.Load(); got != n {
		t.Errorf("executor calls = %d, want %d", got, n)
	}
}

// ──────────────────────────────────────────────────
// Retry and backoff
// ──────────────────────────────────────────────────

func TestQueue_RetriesUntilFailed(t *testing.T) {
	var seen []int
	var mu sync.Mutex
	exec := &countingExecutor{fn: func(_ context.Context, j *job.Job, call int) (string, error) {
		mu.Lock()
		seen = append(seen, j.RetryCount)
		mu.Unlock()
		return "", fmt.Errorf("attempt %d", call)
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithMaxRetries(3)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got := waitForStatus(t, s, id, job.StatusFailed)
	if got.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", got.RetryCount)
	}
	if got.LastError != "attempt 3" {
		t.Errorf("last error = %q, want %q", got.LastError, "attempt 3")
	}
	if got.ExecutedAt != nil {
		t.Error("failed job must not have executed at")
	}

	time.Sleep(50 * time.Millisecond)
	if n := exec.calls.Load(); n != 3 {
		t.Errorf("executor calls = %d, want 3", n)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, rc := range seen {
		if rc != i {
			t.Errorf("attempt %d saw retry count %d, want %d", i+1, rc, i)
		}
	}
}

func TestQueue_BackoffDelays(t *testing.T) {
	var mu sync.Mutex
	var attempts []int
	strategy := backoff.StrategyFunc(func(attempt int) time.Duration {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		return time.Millisecond
	})
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		return "", errors.New("down")
	}}
	q, s := setupQueue(t, job.KindDelivery, exec, worker.WithBackoff(strategy))

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithMaxRetries(4)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, id, job.StatusFailed)

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 3}
	if fmt.Sprint(attempts) != fmt.Sprint(want) {
		t.Errorf("backoff attempts = %v, want %v", attempts, want)
	}

	def := backoff.DefaultStrategy()
	for k, d := range map[int]time.Duration{1: 60 * time.Second, 2: 120 * time.Second, 3: 240 * time.Second} {
		if got := def.Delay(k); got != d {
			t.Errorf("default delay(%d) = %v, want %v", k, got, d)
		}
	}
}

func TestQueue_RetryWaitsOutBackoff(t *testing.T) {
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		return "", errors.New("down")
	}}
	q, s := setupQueue(t, job.KindDelivery, exec, worker.WithBackoff(backoff.NewConstant(time.Hour)))

	start := time.Now()
	id, err := q.Enqueue(context.Background(), delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var got *job.Job
	for {
		got, err = s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.RetryCount == 1 && got.Status == job.StatusPending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never returned to pending: %+v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got.LastError != "down" {
		t.Errorf("last error = %q, want down", got.LastError)
	}
	if got.ScheduledFor.Before(start.Add(time.Hour)) {
		t.Errorf("scheduled for = %v, want >= %v", got.ScheduledFor, start.Add(time.Hour))
	}
	due, err := s.QueryDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("QueryDue: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("job waiting out backoff reported due")
	}
}

func TestQueue_ZeroMaxRetriesFailsImmediately(t *testing.T) {
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		return "", errors.New("nope")
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithMaxRetries(0)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := waitForStatus(t, s, id, job.StatusFailed)
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
}

func TestQueue_TimeoutIsFailure(t *testing.T) {
	exec := &countingExecutor{fn: func(ctx context.Context, _ *job.Job, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	q, s := setupQueue(t, job.KindDelivery, exec, worker.WithExecTimeout(10*time.Millisecond))

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithMaxRetries(1)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := waitForStatus(t, s, id, job.StatusFailed)
	if !strings.Contains(got.LastError, "timed out") {
		t.Errorf("last error = %q, want timeout", got.LastError)
	}
}

func TestQueue_PanicIsFailure(t *testing.T) {
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		panic("boom")
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)

	id, err := q.Enqueue(context.Background(), delivery(t, job.WithMaxRetries(1)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := waitForStatus(t, s, id, job.StatusFailed)
	if !strings.Contains(got.LastError, "panic") {
		t.Errorf("last error = %q, want panic", got.LastError)
	}
}

// ──────────────────────────────────────────────────
// Cancel and manual retry
// ──────────────────────────────────────────────────

func TestQueue_CancelWhileProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		close(started)
		<-release
		return "late", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	ok, err := q.Cancel(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Cancel: ok=%v err=%v", ok, err)
	}
	close(release)

	sentinel, err := q.Enqueue(ctx, delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, sentinel, job.StatusDone)

	got, _ := s.Get(ctx, id)
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.ExecutedAt != nil {
		t.Error("cancelled job must not have executed at")
	}
}

func TestQueue_CancelledRowUntouchedByLateOutcome(t *testing.T) {
	tests := []struct {
		name    string
		receipt string
		err     error
	}{
		{name: "success with receipt", receipt: "msg-123"},
		{name: "failure", err: errors.New("discord 500")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			release := make(chan struct{})
			exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
				close(started)
				<-release
				return tt.receipt, tt.err
			}}
			q, s := setupQueue(t, job.KindDelivery, exec)
			ctx := context.Background()

			id, err := q.Enqueue(ctx, delivery(t, job.WithMaxRetries(3)))
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			<-started
			if ok, err := q.Cancel(ctx, id); err != nil || !ok {
				t.Fatalf("Cancel: ok=%v err=%v", ok, err)
			}
			before, _ := s.Get(ctx, id)
			close(release)

			sentinel, err := q.Enqueue(ctx, delivery(t))
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			waitForStatus(t, s, sentinel, job.StatusDone)

			after, _ := s.Get(ctx, id)
			if after.Status != job.StatusCancelled {
				t.Errorf("status = %q, want cancelled", after.Status)
			}
			if after.Receipt != "" || after.RetryCount != 0 || after.LastError != before.LastError {
				t.Errorf("cancelled row written after cancel: receipt=%q retry=%d last_error=%q",
					after.Receipt, after.RetryCount, after.LastError)
			}
			if !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Errorf("updated_at moved from %v to %v", before.UpdatedAt, after.UpdatedAt)
			}
		})
	}
}

func TestQueue_CancelGuards(t *testing.T) {
	q, s := setupQueue(t, job.KindDelivery, &countingExecutor{})
	ctx := context.Background()

	for _, status := range []job.Status{job.StatusDone, job.StatusFailed, job.StatusCancelled} {
		id, err := s.Create(ctx, delivery(t))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.SetStatus(ctx, id, status, ""); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		ok, err := q.Cancel(ctx, id)
		if err != nil || ok {
			t.Errorf("cancel %s: ok=%v err=%v, want false", status, ok, err)
		}
	}
	if ok, err := q.Cancel(ctx, 999); err != nil || ok {
		t.Errorf("cancel missing: ok=%v err=%v, want false", ok, err)
	}
}

func TestQueue_RetryFailedJob(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		if fail.Load() {
			return "", errors.New("down")
		}
		return "", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, delivery(t, job.WithMaxRetries(1)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, id, job.StatusFailed)

	fail.Store(false)
	ok, err := q.Retry(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Retry: ok=%v err=%v", ok, err)
	}
	got := waitForStatus(t, s, id, job.StatusDone)
	if got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("after retry: retry count %d, last error %q", got.RetryCount, got.LastError)
	}

	ok, err = q.Retry(ctx, id)
	if err != nil || ok {
		t.Errorf("retry of done job: ok=%v err=%v, want false", ok, err)
	}
}

// ──────────────────────────────────────────────────
// Completion side-channel
// ──────────────────────────────────────────────────

func TestQueue_NotifyOnComplete(t *testing.T) {
	notifier := &recordingNotifier{}
	var fail atomic.Bool
	exec := &countingExecutor{fn: func(context.Context, *job.Job, int) (string, error) {
		if fail.Load() {
			return "", errors.New("hass unreachable")
		}
		return "", nil
	}}
	q, s := setupQueue(t, job.KindTrigger, exec, worker.WithNotifier(notifier))
	ctx := context.Background()

	okID, err := q.Enqueue(ctx, trigger(t, job.WithNotifyOnComplete(true)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, okID, job.StatusDone)

	quiet, err := q.Enqueue(ctx, trigger(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, quiet, job.StatusDone)

	fail.Store(true)
	badID, err := q.Enqueue(ctx, trigger(t, job.WithNotifyOnComplete(true), job.WithMaxRetries(1)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, badID, job.StatusFailed)

	messages, outcomes := notifier.snapshot()
	if len(messages) != 2 {
		t.Fatalf("notifications = %v, want 2", messages)
	}
	if !outcomes[0] || outcomes[1] {
		t.Errorf("outcomes = %v, want [true false]", outcomes)
	}
	if !strings.Contains(messages[0], "automation.lights_off") || !strings.Contains(messages[0], "alice") {
		t.Errorf("success summary = %q", messages[0])
	}
	if !strings.Contains(messages[1], "hass unreachable") {
		t.Errorf("failure summary = %q", messages[1])
	}
}

func TestQueue_NotifierErrorIgnored(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("discord down")}
	q, s := setupQueue(t, job.KindTrigger, &countingExecutor{}, worker.WithNotifier(notifier))

	id, err := q.Enqueue(context.Background(), trigger(t, job.WithNotifyOnComplete(true)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, id, job.StatusDone)
}

// ──────────────────────────────────────────────────
// Extensions
// ──────────────────────────────────────────────────

func TestQueue_EmitsLifecycleEvents(t *testing.T) {
	rec := &hookRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(rec)

	exec := &countingExecutor{fn: func(_ context.Context, _ *job.Job, call int) (string, error) {
		if call == 1 {
			return "", errors.New("first attempt fails")
		}
		return "", nil
	}}
	q, s := setupQueue(t, job.KindDelivery, exec, worker.WithExtensions(reg))

	id, err := q.Enqueue(context.Background(), delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, s, id, job.StatusDone)

	want := []string{"enqueued", "started", "retrying:1", "started", "completed"}
	if got := rec.snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// ──────────────────────────────────────────────────
// Shutdown
// ──────────────────────────────────────────────────

func TestQueue_ShutdownDrains(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := &countingExecutor{fn: func(_ context.Context, _ *job.Job, call int) (string, error) {
		if call == 1 {
			close(started)
			<-release
		}
		return "", nil
	}}
	s := memory.New()
	q := worker.New(job.KindDelivery, s, exec)
	q.Start()
	ctx := context.Background()

	first, err := q.Enqueue(ctx, delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started
	second, err := q.Enqueue(ctx, delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errCh <- q.Shutdown(sctx)
	}()

	// Wait until shutdown has begun before letting the in-flight job finish.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := q.Enqueue(ctx, delivery(t)); errors.Is(err, herald.ErrQueueClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never started shutting down")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got, _ := s.Get(ctx, first); got.Status != job.StatusDone {
		t.Errorf("in-flight job status = %q, want done", got.Status)
	}
	if got, _ := s.Get(ctx, second); got.Status != job.StatusPending {
		t.Errorf("queued job status = %q, want pending", got.Status)
	}
	if n := exec.calls.Load(); n != 1 {
		t.Errorf("executor calls = %d, want 1", n)
	}
	if err := q.Process(second); !errors.Is(err, herald.ErrQueueClosed) {
		t.Errorf("Process after shutdown = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_ShutdownDeadlineCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	exec := &countingExecutor{fn: func(ctx context.Context, _ *job.Job, _ int) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s := memory.New()
	q := worker.New(job.KindDelivery, s, exec, worker.WithExecTimeout(0))
	q.Start()

	id, err := q.Enqueue(context.Background(), delivery(t))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want DeadlineExceeded", err)
	}

	got, _ := s.Get(context.Background(), id)
	if got.Status != job.StatusPending || got.RetryCount != 1 {
		t.Errorf("interrupted job = %q retry %d, want pending retry 1", got.Status, got.RetryCount)
	}
}

func TestQueue_ShutdownWithoutStart(t *testing.T) {
	q := worker.New(job.KindDelivery, memory.New(), &countingExecutor{})
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		err     error
		want    string
	}{
		{"success", 0, nil, "automation automation.x completed"},
		{"failure", 3, &herald.ExecutionError{JobID: 5, Attempt: 3, Err: errors.New("401")}, "automation automation.x failed after 3 attempts: 401"},
		{"single attempt", 1, errors.New("401"), "automation automation.x failed after 1 attempt: 401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &job.Job{
				ID:         5,
				Kind:       job.KindTrigger,
				RetryCount: tt.retries,
				Payload:    job.Payload{Trigger: &job.TriggerPayload{AutomationID: "automation.x"}},
			}
			if got := worker.Summary(j, tt.err); got != tt.want {
				t.Errorf("Summary = %q, want %q", got, tt.want)
			}
		})
	}
}
