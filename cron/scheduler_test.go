package cron_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/cron"
	"github.com/xraph/herald/job"
)

// stubEmitter records EmitCronFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []cronFiredCall
}

type cronFiredCall struct {
	EntryName string
	JobID     int64
}

func (e *stubEmitter) EmitCronFired(_ context.Context, entryName string, jobID int64) {
	e.mu.Lock()
	e.calls = append(e.calls, cronFiredCall{EntryName: entryName, JobID: jobID})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []cronFiredCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]cronFiredCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// enqueueSpy tracks enqueue calls with thread safety.
type enqueueSpy struct {
	mu     sync.Mutex
	nextID int64
	calls  []enqueueCall
	err    error
}

type enqueueCall struct {
	Payload job.Payload
	Opts    job.Options
}

func (e *enqueueSpy) Fn() cron.EnqueueFunc {
	return func(_ context.Context, payload job.Payload, opts ...job.Option) (int64, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.err != nil {
			return 0, e.err
		}
		o := job.DefaultOptions()
		for _, opt := range opts {
			opt(&o)
		}
		e.nextID++
		e.calls = append(e.calls, enqueueCall{Payload: payload, Opts: o})
		return e.nextID, nil
	}
}

func (e *enqueueSpy) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *enqueueSpy) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func morningReport() job.Payload {
	return job.Payload{Delivery: &job.DeliveryPayload{Source: "cron", Message: "good morning"}}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newScheduler(t *testing.T) (*cron.Scheduler, *enqueueSpy, *stubEmitter, *fakeClock) {
	t.Helper()
	spy := &enqueueSpy{}
	em := &stubEmitter{}
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC)}
	s := cron.NewScheduler(spy.Fn(), em, nil, cron.WithClock(clock.Now))
	return s, spy, em, clock
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 9 * * *", false},
		{"*/5 * * * *", false},
		{"@every 30s", false},
		{"@daily", false},
		{"not a cron", true},
		{"0 9 * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := cron.ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestRegister_ComputesNextRun(t *testing.T) {
	s, _, _, _ := newScheduler(t)

	e, err := s.Register(cron.Definition{Name: "morning", Schedule: "0 9 * * *", Payload: morningReport()})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if e.NextRunAt == nil || !e.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", e.NextRunAt, want)
	}
	if !e.Enabled {
		t.Error("entry should be enabled")
	}
	if e.Payload.Delivery.Severity != job.SeverityInfo {
		t.Errorf("severity = %q, want normalised info", e.Payload.Delivery.Severity)
	}
}

func TestRegister_Validation(t *testing.T) {
	s, _, _, _ := newScheduler(t)
	neg := -1

	tests := []struct {
		name string
		def  cron.Definition
	}{
		{"missing name", cron.Definition{Schedule: "@daily", Payload: morningReport()}},
		{"bad schedule", cron.Definition{Name: "x", Schedule: "whenever", Payload: morningReport()}},
		{"empty payload", cron.Definition{Name: "x", Schedule: "@daily"}},
		{"negative retries", cron.Definition{Name: "x", Schedule: "@daily", Payload: morningReport(), MaxRetries: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Register(tt.def); !errors.Is(err, herald.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTick_FiresDueEntries(t *testing.T) {
	s, spy, em, clock := newScheduler(t)
	retries := 1

	if _, err := s.Register(cron.Definition{Name: "morning", Schedule: "0 9 * * *", Payload: morningReport(), MaxRetries: &retries}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Register(cron.Definition{Name: "hourly", Schedule: "@hourly", Payload: morningReport()}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("fired before due: %d", n)
	}

	clock.Advance(time.Minute)
	if n := s.Tick(context.Background()); n != 2 {
		t.Fatalf("fired = %d, want 2", n)
	}
	if spy.Count() != 2 {
		t.Errorf("enqueues = %d, want 2", spy.Count())
	}

	calls := em.getCalls()
	if len(calls) != 2 {
		t.Fatalf("emitted = %d, want 2", len(calls))
	}

	e, _ := s.Get("morning")
	if e.LastRunAt == nil || e.LastJobID == 0 {
		t.Errorf("entry not advanced: %+v", e)
	}
	wantNext := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if !e.NextRunAt.Equal(wantNext) {
		t.Errorf("next run = %v, want %v", e.NextRunAt, wantNext)
	}

	spy.mu.Lock()
	var sawRetries bool
	for _, c := range spy.calls {
		if c.Opts.MaxRetries == 1 {
			sawRetries = true
		}
	}
	spy.mu.Unlock()
	if !sawRetries {
		t.Error("max retries override not passed to enqueue")
	}

	if n := s.Tick(context.Background()); n != 0 {
		t.Errorf("fired again in same minute: %d", n)
	}
}

func TestTick_EnqueueErrorKeepsEntryDue(t *testing.T) {
	s, spy, em, clock := newScheduler(t)
	if _, err := s.Register(cron.Definition{Name: "morning", Schedule: "0 9 * * *", Payload: morningReport()}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock.Advance(time.Minute)

	spy.setErr(errors.New("store down"))
	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("fired = %d, want 0", n)
	}
	if len(em.getCalls()) != 0 {
		t.Error("emitted despite enqueue failure")
	}

	spy.setErr(nil)
	if n := s.Tick(context.Background()); n != 1 {
		t.Errorf("retry tick fired = %d, want 1", n)
	}
}

func TestSetEnabled(t *testing.T) {
	s, spy, _, clock := newScheduler(t)
	if _, err := s.Register(cron.Definition{Name: "morning", Schedule: "0 9 * * *", Payload: morningReport(), Disabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(time.Minute)
	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("disabled entry fired")
	}

	e, ok := s.SetEnabled("morning", true)
	if !ok {
		t.Fatal("SetEnabled: entry missing")
	}
	wantNext := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if !e.NextRunAt.Equal(wantNext) {
		t.Errorf("re-enabled next run = %v, want %v", e.NextRunAt, wantNext)
	}
	if n := s.Tick(context.Background()); n != 0 || spy.Count() != 0 {
		t.Errorf("missed fire replayed after enable")
	}

	if _, ok := s.SetEnabled("missing", true); ok {
		t.Error("SetEnabled on missing entry reported ok")
	}
}

func TestRemoveAndList(t *testing.T) {
	s, _, _, _ := newScheduler(t)
	for _, name := range []string{"b", "a", "c"} {
		if _, err := s.Register(cron.Definition{Name: name, Schedule: "@daily", Payload: morningReport()}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if !s.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if s.Remove("b") {
		t.Error("second Remove(b) = true")
	}

	list := s.List()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "c" {
		t.Errorf("list = %v", list)
	}
}

func TestStartStop(t *testing.T) {
	spy := &enqueueSpy{}
	s := cron.NewScheduler(spy.Fn(), nil, nil, cron.WithTickInterval(5*time.Millisecond))
	if _, err := s.Register(cron.Definition{Name: "fast", Schedule: "@every 1s", Payload: morningReport()}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("cron never fired")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
