package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/herald/job"
)

// Logging writes one record per attempt: Info when it succeeds, Warn when
// it fails. The attempt number is 1-based.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []slog.Attr{
			slog.Int64("job_id", j.ID),
			slog.String("kind", string(j.Kind)),
			slog.Int("attempt", j.RetryCount+1),
			slog.Int("max_retries", j.MaxRetries),
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx, slog.LevelWarn, "attempt failed", attrs...)
			return err
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "attempt succeeded", attrs...)
		return nil
	}
}
