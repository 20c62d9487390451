package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/herald/job"
)

// Timeout returns middleware that bounds a single attempt. When d is zero or
// negative the attempt runs without a deadline. An expired deadline is
// reported as an ordinary error so the queue retries it.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(ctx)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("job %d timed out after %s: %w", j.ID, d, err)
		}
		return err
	}
}
