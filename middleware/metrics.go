package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/herald/job"
)

// Attempt outcomes reported by Tracing and Metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Metrics records attempt metrics on the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter records two instruments per attempt, both labelled with
// kind and outcome:
//
//   - herald.attempt.duration, a histogram in seconds
//   - herald.attempts, a counter
//
// A deadline hit inside the attempt is reported as "timeout" rather than
// "failure" so slow backends can be told apart from rejecting ones.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors come with noop instruments, which are safe to use.
	duration, _ := meter.Float64Histogram("herald.attempt.duration",
		metric.WithDescription("Time spent in one executor attempt"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter("herald.attempts",
		metric.WithDescription("Executor attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)

		set := metric.WithAttributes(
			attribute.String("kind", string(j.Kind)),
			attribute.String("outcome", outcome(ctx, err)),
		)
		duration.Record(ctx, time.Since(start).Seconds(), set)
		attempts.Add(ctx, 1, set)
		return err
	}
}

// outcome classifies the result of an attempt. The deadline may be set by
// an inner Timeout middleware, so the error is checked as well as ctx.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	}
	return OutcomeFailure
}
