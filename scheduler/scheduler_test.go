package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
	"github.com/xraph/herald/scheduler"
	"github.com/xraph/herald/store/memory"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (r *recordingQueue) Process(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingQueue) submitted() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func create(t *testing.T, s *memory.Store, kind job.Kind, at time.Time) int64 {
	t.Helper()
	j := &job.Job{Kind: kind, MaxRetries: 3, ScheduledFor: at}
	switch kind {
	case job.KindDelivery:
		j.Payload.Delivery = &job.DeliveryPayload{Source: "test", Message: "hi"}
	case job.KindTrigger:
		j.Payload.Trigger = &job.TriggerPayload{AutomationID: "automation.test"}
	}
	id, err := s.Create(context.Background(), j)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestTick_RoutesDueJobsByKind(t *testing.T) {
	s := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	late := create(t, s, job.KindDelivery, now.Add(-time.Minute))
	early := create(t, s, job.KindDelivery, now.Add(-time.Hour))
	trig := create(t, s, job.KindTrigger, now.Add(-time.Second))
	create(t, s, job.KindDelivery, now.Add(5*time.Minute))

	deliveries := &recordingQueue{}
	triggers := &recordingQueue{}
	sch := scheduler.New(s,
		scheduler.WithClock(func() time.Time { return now }),
		scheduler.WithQueue(job.KindDelivery, deliveries),
		scheduler.WithQueue(job.KindTrigger, triggers),
	)

	n, err := sch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 3 {
		t.Errorf("submitted = %d, want 3", n)
	}
	if got := deliveries.submitted(); len(got) != 2 || got[0] != early || got[1] != late {
		t.Errorf("delivery order = %v, want [%d %d]", got, early, late)
	}
	if got := triggers.submitted(); len(got) != 1 || got[0] != trig {
		t.Errorf("trigger ids = %v, want [%d]", got, trig)
	}
}

func TestTick_FutureJobBecomesDue(t *testing.T) {
	s := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := create(t, s, job.KindDelivery, now.Add(5*time.Minute))

	q := &recordingQueue{}
	clock := now
	sch := scheduler.New(s,
		scheduler.WithClock(func() time.Time { return clock }),
		scheduler.WithQueue(job.KindDelivery, q),
	)

	if n, _ := sch.Tick(context.Background()); n != 0 {
		t.Fatalf("submitted before due = %d, want 0", n)
	}
	clock = now.Add(5 * time.Minute)
	if n, _ := sch.Tick(context.Background()); n != 1 {
		t.Fatalf("submitted at due time = %d, want 1", n)
	}
	if got := q.submitted(); len(got) != 1 || got[0] != id {
		t.Errorf("ids = %v, want [%d]", got, id)
	}
}

func TestTick_SkipsKindWithoutQueue(t *testing.T) {
	s := memory.New()
	create(t, s, job.KindTrigger, time.Now().Add(-time.Minute))

	sch := scheduler.New(s, scheduler.WithQueue(job.KindDelivery, &recordingQueue{}))
	n, err := sch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 0 {
		t.Errorf("submitted = %d, want 0", n)
	}
}

func TestTick_StopsAtClosedQueue(t *testing.T) {
	s := memory.New()
	create(t, s, job.KindDelivery, time.Now().Add(-time.Minute))
	create(t, s, job.KindDelivery, time.Now().Add(-time.Minute))

	sch := scheduler.New(s, scheduler.WithQueue(job.KindDelivery, &recordingQueue{err: herald.ErrQueueClosed}))
	n, err := sch.Tick(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Tick = %d, %v; want 0, nil", n, err)
	}
}

func TestTick_StoreError(t *testing.T) {
	s := memory.New()
	_ = s.Close()

	sch := scheduler.New(s)
	if _, err := sch.Tick(context.Background()); !errors.Is(err, herald.ErrStoreClosed) {
		t.Errorf("err = %v, want ErrStoreClosed", err)
	}
}

func TestStartStop(t *testing.T) {
	s := memory.New()
	id := create(t, s, job.KindDelivery, time.Now().Add(-time.Minute))

	q := &recordingQueue{}
	sch := scheduler.New(s, scheduler.WithQueue(job.KindDelivery, q))
	sch.Start(5 * time.Millisecond)
	sch.Start(5 * time.Millisecond)

	deadline := time.After(5 * time.Second)
	for len(q.submitted()) == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never ticked")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	sch.Stop()
	sch.Stop()

	if got := q.submitted(); got[0] != id {
		t.Errorf("first submitted = %d, want %d", got[0], id)
	}

	before := len(q.submitted())
	time.Sleep(30 * time.Millisecond)
	if after := len(q.submitted()); after != before {
		t.Errorf("ticks after Stop: %d -> %d", before, after)
	}
}
