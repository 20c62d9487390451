package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/herald/ext"
	"github.com/xraph/herald/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
	_ ext.JobRecovered = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

// Event label values for herald_jobs_total.
const (
	EventEnqueued  = "enqueued"
	EventCompleted = "completed"
	EventRetried   = "retried"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
	EventRecovered = "recovered"
)

// MetricsExtension records lifecycle metrics with Prometheus collectors.
// Register it as a Herald extension to track enqueue rates, completions,
// retries, failures and cron fires.
type MetricsExtension struct {
	Jobs      *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	CronFired prometheus.Counter
}

// NewMetricsExtension creates a MetricsExtension whose collectors are
// registered with reg. A nil reg uses the default registerer.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsExtension{
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_jobs_total",
			Help: "The total number of job lifecycle events.",
		}, []string{"kind", "event"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_job_duration_seconds",
			Help:    "Duration of successful job attempts.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		CronFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "herald_cron_fired_total",
			Help: "The total number of cron fires that enqueued a job.",
		}),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	m.Jobs.WithLabelValues(string(j.Kind), EventEnqueued).Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.Jobs.WithLabelValues(string(j.Kind), EventCompleted).Inc()
	m.Duration.WithLabelValues(string(j.Kind)).Observe(elapsed.Seconds())
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, j *job.Job, _ int, _ time.Time) error {
	m.Jobs.WithLabelValues(string(j.Kind), EventRetried).Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, j *job.Job, _ error) error {
	m.Jobs.WithLabelValues(string(j.Kind), EventFailed).Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled. The hook carries no kind.
func (m *MetricsExtension) OnJobCancelled(_ context.Context, _ int64) error {
	m.Jobs.WithLabelValues("unknown", EventCancelled).Inc()
	return nil
}

// OnJobRecovered implements ext.JobRecovered.
func (m *MetricsExtension) OnJobRecovered(_ context.Context, j *job.Job) error {
	m.Jobs.WithLabelValues(string(j.Kind), EventRecovered).Inc()
	return nil
}

// ── Other lifecycle hooks ───────────────────────────

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(_ context.Context, _ string, _ int64) error {
	m.CronFired.Inc()
	return nil
}
