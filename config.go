package herald

import "time"

// Config holds configuration for the engine and its queues.
type Config struct {
	// PollInterval is how often the scheduler looks for due jobs.
	PollInterval time.Duration

	// BackoffBase is the delay before the first retry. Each later retry
	// doubles it.
	BackoffBase time.Duration

	// MaxRetries is the retry budget given to jobs that do not set one.
	MaxRetries int

	// ExecTimeout bounds a single executor call. A timeout counts as an
	// ordinary failure.
	ExecTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for queues to drain.
	ShutdownTimeout time.Duration

	// RetentionAge is how long done jobs are kept before the sweep
	// deletes them.
	RetentionAge time.Duration

	// RetentionInterval is how often the retention sweep runs. Zero
	// disables it.
	RetentionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      30 * time.Second,
		BackoffBase:       60 * time.Second,
		MaxRetries:        3,
		ExecTimeout:       30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RetentionAge:      7 * 24 * time.Hour,
		RetentionInterval: time.Hour,
	}
}
