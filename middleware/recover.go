package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/herald/job"
)

// Recover turns a panicking executor into a failed attempt. The stack is
// logged; the returned error only names the panic value, since it ends up
// in the job's LastError.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("executor panicked",
				slog.Int64("job_id", j.ID),
				slog.String("kind", string(j.Kind)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%s executor panicked: %v", j.Kind, r)
		}()
		return next(ctx)
	}
}
