package audithook

import (
	"log/slog"

	"github.com/xraph/herald/job"
)

// Option configures an Extension.
type Option func(*Extension)

// WithActions records only the listed actions. Unknown names never match.
func WithActions(actions ...string) Option {
	return func(e *Extension) { e.actions = setOf(actions) }
}

// WithKinds records only events about jobs of the given kinds. Events that
// carry no kind (cancellation by ID) always pass.
func WithKinds(kinds ...job.Kind) Option {
	return func(e *Extension) { e.kinds = setOf(kinds) }
}

// WithLogger sets the logger that reports recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

func setOf[T comparable](items []T) map[T]struct{} {
	s := make(map[T]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
