package job

import "context"

// Executor performs the side effect of a job. Delivery executors return an
// opaque receipt that is persisted on the job; trigger executors return "".
type Executor interface {
	Execute(ctx context.Context, j *Job) (receipt string, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, j *Job) (string, error)

// Execute calls f(ctx, j).
func (f ExecutorFunc) Execute(ctx context.Context, j *Job) (string, error) {
	return f(ctx, j)
}
