package middleware

import (
	"context"

	"github.com/xraph/herald/job"
)

// Handler runs the executor for one attempt.
type Handler func(ctx context.Context) error

// Middleware wraps one attempt of j. It must call next unless it decides
// the attempt fails without reaching the executor.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws into one Middleware. The first element is the
// outermost wrapper: Chain(a, b)(ctx, j, h) runs a → b → h.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, final Handler) error {
		var at func(i int) Handler
		at = func(i int) Handler {
			if i == len(mws) {
				return final
			}
			return func(ctx context.Context) error {
				return mws[i](ctx, j, at(i+1))
			}
		}
		return at(0)(ctx)
	}
}
