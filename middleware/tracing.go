package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/herald/job"
)

// instrumentationName scopes both the tracer and the meter.
const instrumentationName = "github.com/xraph/herald"

// Tracing wraps every attempt in a span from the global TracerProvider.
// Without a configured provider the span is a noop.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer wraps every attempt in a span named
// "herald.<kind>.attempt". The span carries the job ID, the attempt number,
// whether this is the last attempt before the job is parked, and the
// routing fields of the payload.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "herald."+string(j.Kind)+".attempt",
			trace.WithAttributes(attemptAttributes(j)...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("herald.attempt.outcome", outcome(ctx, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

func attemptAttributes(j *job.Job) []attribute.KeyValue {
	attempt := j.RetryCount + 1
	attrs := []attribute.KeyValue{
		attribute.Int64("herald.job.id", j.ID),
		attribute.String("herald.job.kind", string(j.Kind)),
		attribute.Int("herald.attempt", attempt),
		attribute.Bool("herald.attempt.final", attempt >= j.MaxRetries),
	}
	switch {
	case j.Payload.Delivery != nil:
		attrs = append(attrs,
			attribute.String("herald.delivery.source", j.Payload.Delivery.Source),
			attribute.String("herald.delivery.severity", string(j.Payload.Delivery.Severity)),
		)
	case j.Payload.Trigger != nil:
		attrs = append(attrs,
			attribute.String("herald.trigger.automation_id", j.Payload.Trigger.AutomationID),
		)
	}
	return attrs
}
