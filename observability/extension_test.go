package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/herald/job"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/store/memory"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return observability.NewMetricsExtension(reg), reg
}

func newTestJob() *job.Job {
	return &job.Job{ID: 1, Kind: job.KindTrigger}
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobEvents(t *testing.T) {
	e, _ := newTestExtension(t)
	ctx := context.Background()
	j := newTestJob()

	steps := []struct {
		event string
		fire  func() error
	}{
		{observability.EventEnqueued, func() error { return e.OnJobEnqueued(ctx, j) }},
		{observability.EventRetried, func() error { return e.OnJobRetrying(ctx, j, 1, time.Now()) }},
		{observability.EventCompleted, func() error { return e.OnJobCompleted(ctx, j, 100*time.Millisecond) }},
		{observability.EventFailed, func() error { return e.OnJobFailed(ctx, j, errors.New("boom")) }},
		{observability.EventRecovered, func() error { return e.OnJobRecovered(ctx, j) }},
	}
	for _, s := range steps {
		t.Run(s.event, func(t *testing.T) {
			if err := s.fire(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := testutil.ToFloat64(e.Jobs.WithLabelValues("trigger", s.event)); got != 1 {
				t.Errorf("%s: want 1, got %v", s.event, got)
			}
		})
	}

	if got := testutil.CollectAndCount(e.Duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetricsExtension_CancelledAndCron(t *testing.T) {
	e, _ := newTestExtension(t)
	ctx := context.Background()

	_ = e.OnJobCancelled(ctx, 7)
	_ = e.OnCronFired(ctx, "morning", 8)
	_ = e.OnCronFired(ctx, "morning", 9)

	if got := testutil.ToFloat64(e.Jobs.WithLabelValues("unknown", observability.EventCancelled)); got != 1 {
		t.Errorf("cancelled: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(e.CronFired); got != 2 {
		t.Errorf("cron fired: want 2, got %v", got)
	}
}

func TestStatsCollector(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for _, at := range []time.Time{time.Now().Add(-time.Minute), time.Now().Add(time.Hour)} {
		if _, err := s.Create(ctx, &job.Job{
			Kind:         job.KindDelivery,
			ScheduledFor: at,
			Payload:      job.Payload{Delivery: &job.DeliveryPayload{Source: "test", Message: "hi"}},
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	c := observability.NewStatsCollector(s, nil)
	want := `
# HELP herald_jobs Current number of jobs by state, read from the store.
# TYPE herald_jobs gauge
herald_jobs{state="done_recent"} 0
herald_jobs{state="failed"} 0
herald_jobs{state="pending"} 2
herald_jobs{state="processing"} 0
herald_jobs{state="scheduled_future"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "herald_jobs"); err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	e, reg := newTestExtension(t)
	_ = e.OnJobEnqueued(context.Background(), newTestJob())

	rec := httptest.NewRecorder()
	observability.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `herald_jobs_total{event="enqueued",kind="trigger"} 1`) {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}
