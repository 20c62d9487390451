// Package observability exports Herald metrics to Prometheus.
//
// [MetricsExtension] implements lifecycle hooks and counts job events per
// kind (herald_jobs_total) along with successful attempt durations
// (herald_job_duration_seconds) and cron fires (herald_cron_fired_total).
// [StatsCollector] reports the store's aggregate counts as gauges on every
// scrape (herald_jobs).
//
// For per-attempt OpenTelemetry tracing and metrics, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
