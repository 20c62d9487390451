package dlq

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/herald"
)

// Replay retries a single failed job with a fresh retry budget.
func (s *Service) Replay(ctx context.Context, id int64) error {
	if err := s.retrier.Retry(ctx, id); err != nil {
		return err
	}
	s.logger.Info("failed job replayed", slog.Int64("job_id", id))
	return nil
}

// ReplayAll retries up to limit failed jobs (zero means all) and returns how
// many were replayed. Jobs that leave the failed state concurrently are
// skipped. The first store error aborts the replay.
func (s *Service) ReplayAll(ctx context.Context, limit int) (int, error) {
	entries, err := s.List(ctx, limit)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if err := s.retrier.Retry(ctx, e.JobID); err != nil {
			if isSkippable(err) {
				s.logger.Debug("skipping job during replay",
					slog.Int64("job_id", e.JobID),
					slog.String("error", err.Error()),
				)
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		s.logger.Info("failed jobs replayed", slog.Int("count", n))
	}
	return n, nil
}

func isSkippable(err error) bool {
	return errors.Is(err, herald.ErrConflict) || errors.Is(err, herald.ErrJobNotFound)
}
