package dlq

import (
	"context"
	"log/slog"

	"github.com/xraph/herald/job"
)

// Retrier moves a failed job back to pending and submits it.
// engine.Engine satisfies it.
type Retrier interface {
	Retry(ctx context.Context, id int64) error
}

// Service provides operator-facing operations over failed jobs.
type Service struct {
	store   job.Store
	retrier Retrier
	logger  *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store job.Store, retrier Retrier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, retrier: retrier, logger: logger}
}

// List returns failed jobs, oldest first. A limit of zero means no limit.
func (s *Service) List(ctx context.Context, limit int) ([]*Entry, error) {
	jobs, err := s.store.QueryByStatus(ctx, job.StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, EntryFromJob(j))
	}
	return entries, nil
}

// Count returns the number of failed jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	jobs, err := s.store.QueryByStatus(ctx, job.StatusFailed, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(jobs)), nil
}
