package observability

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/herald/job"
)

var jobsDesc = prometheus.NewDesc(
	"herald_jobs",
	"Current number of jobs by state, read from the store.",
	[]string{"state"}, nil,
)

// StatsCollector is a prometheus.Collector that reads job.Store.Stats on
// every scrape.
type StatsCollector struct {
	store   job.Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewStatsCollector creates a collector over store.
func NewStatsCollector(store job.Store, logger *slog.Logger) *StatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCollector{store: store, timeout: 5 * time.Second, logger: logger}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- jobsDesc
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	st, err := c.store.Stats(ctx, time.Now())
	if err != nil {
		c.logger.Warn("collect job stats failed", slog.String("error", err.Error()))
		ch <- prometheus.NewInvalidMetric(jobsDesc, err)
		return
	}
	for state, v := range map[string]int64{
		"pending":          st.Pending,
		"processing":       st.Processing,
		"scheduled_future": st.ScheduledFuture,
		"failed":           st.Failed,
		"done_recent":      st.DoneRecent,
	} {
		ch <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(v), state)
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
