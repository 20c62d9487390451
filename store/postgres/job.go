package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

const jobColumns = `
	id, kind, status, payload, max_retries, retry_count, last_error, receipt,
	notify_on_complete, scheduled_for, executed_at, created_at, updated_at`

// Create persists a new job in pending state and assigns its ID.
func (s *Store) Create(ctx context.Context, j *job.Job) (int64, error) {
	now := time.Now().UTC()
	created := j.CreatedAt
	if created.IsZero() {
		created = now
	}
	scheduled := j.ScheduledFor
	if scheduled.IsZero() {
		scheduled = created
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO herald_jobs (
			kind, status, payload, max_retries, retry_count, last_error, receipt,
			notify_on_complete, scheduled_for, created_at, updated_at
		) VALUES ($1, 'pending', $2, $3, 0, '', '', $4, $5, $6, $6)
		RETURNING id`,
		string(j.Kind), j.Payload, j.MaxRetries, j.NotifyOnComplete, scheduled, created,
	).Scan(&id)
	if err != nil {
		return 0, wrap("create job", err)
	}
	j.ID = id
	return id, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, id int64) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM herald_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, herald.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return j, nil
}

// SetStatus unconditionally moves a job to status.
func (s *Store) SetStatus(ctx context.Context, id int64, status job.Status, errText string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE herald_jobs SET
			status      = $2::text,
			executed_at = CASE WHEN $2::text = 'done' THEN NOW() ELSE NULL END,
			last_error  = CASE WHEN $2::text = 'done' THEN last_error ELSE $3 END,
			updated_at  = NOW()
		WHERE id = $1`,
		id, string(status), errText,
	)
	if err != nil {
		return wrap("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return herald.ErrJobNotFound
	}
	return nil
}

// SetStatusIf moves a job from one status to another only if it is
// currently in from. The existence check and the update share a snapshot.
func (s *Store) SetStatusIf(ctx context.Context, id int64, from, to job.Status, errText string) (bool, error) {
	var exists, updated bool
	err := s.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM herald_jobs WHERE id = $1
		), changed AS (
			UPDATE herald_jobs SET
				status      = $3::text,
				executed_at = CASE WHEN $3::text = 'done' THEN NOW() ELSE NULL END,
				last_error  = CASE WHEN $3::text = 'done' THEN last_error ELSE $4 END,
				updated_at  = NOW()
			WHERE id = $1 AND status = $2::text
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM changed)`,
		id, string(from), string(to), errText,
	).Scan(&exists, &updated)
	if err != nil {
		return false, wrap("set status if", err)
	}
	if !exists {
		return false, herald.ErrJobNotFound
	}
	return updated, nil
}

// ScheduleRetry returns a processing job to pending, due at at.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, at time.Time, errText string) (bool, error) {
	var exists, updated bool
	err := s.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM herald_jobs WHERE id = $1
		), changed AS (
			UPDATE herald_jobs SET
				status        = 'pending',
				scheduled_for = $2,
				last_error    = $3,
				executed_at   = NULL,
				updated_at    = NOW()
			WHERE id = $1 AND status = 'processing'
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM changed)`,
		id, at.UTC(), errText,
	).Scan(&exists, &updated)
	if err != nil {
		return false, wrap("schedule retry", err)
	}
	if !exists {
		return false, herald.ErrJobNotFound
	}
	return updated, nil
}

// SetReceipt records the executor receipt.
func (s *Store) SetReceipt(ctx context.Context, id int64, receipt string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE herald_jobs SET receipt = $2, updated_at = NOW() WHERE id = $1`,
		id, receipt,
	)
	if err != nil {
		return wrap("set receipt", err)
	}
	if tag.RowsAffected() == 0 {
		return herald.ErrJobNotFound
	}
	return nil
}

// IncrementRetry bumps RetryCount and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		UPDATE herald_jobs SET retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING retry_count`,
		id,
	).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, herald.ErrJobNotFound
		}
		return 0, wrap("increment retry", err)
	}
	return n, nil
}

// IncrementRetryIf bumps RetryCount only while the job is in status.
func (s *Store) IncrementRetryIf(ctx context.Context, id int64, status job.Status) (int, bool, error) {
	var (
		exists bool
		n      *int
	)
	err := s.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM herald_jobs WHERE id = $1
		), changed AS (
			UPDATE herald_jobs SET retry_count = retry_count + 1, updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING retry_count
		)
		SELECT EXISTS (SELECT 1 FROM target), (SELECT retry_count FROM changed)`,
		id, string(status),
	).Scan(&exists, &n)
	if err != nil {
		return 0, false, wrap("increment retry if", err)
	}
	if !exists {
		return 0, false, herald.ErrJobNotFound
	}
	if n == nil {
		return 0, false, nil
	}
	return *n, true, nil
}

// QueryDue returns pending jobs scheduled at or before cutoff, earliest
// first.
func (s *Store) QueryDue(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM herald_jobs
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC, id ASC`,
		cutoff,
	)
	if err != nil {
		return nil, wrap("query due", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// QueryByStatus returns jobs in the given status ordered by ID.
func (s *Store) QueryByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM herald_jobs WHERE status = $1 ORDER BY id ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("query by status", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Cancel moves a pending or processing job to cancelled.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE herald_jobs SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id,
	)
	if err != nil {
		return false, wrap("cancel job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RetryNow moves a failed job back to pending with a fresh retry budget.
func (s *Store) RetryNow(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE herald_jobs SET status = 'pending', retry_count = 0, last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return false, wrap("retry job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Stats returns aggregate counts relative to now.
func (s *Store) Stats(ctx context.Context, now time.Time) (*job.Stats, error) {
	var st job.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_for > $1),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'done' AND executed_at >= $2)
		FROM herald_jobs`,
		now, now.Add(-job.DoneWindow),
	).Scan(&st.Pending, &st.Processing, &st.ScheduledFuture, &st.Failed, &st.DoneRecent)
	if err != nil {
		return nil, wrap("stats", err)
	}
	return &st, nil
}

// PurgeDone deletes done jobs executed before olderThan.
func (s *Store) PurgeDone(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM herald_jobs WHERE status = 'done' AND executed_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, wrap("purge done", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j      job.Job
		kind   string
		status string
	)
	err := row.Scan(
		&j.ID, &kind, &status, &j.Payload, &j.MaxRetries, &j.RetryCount,
		&j.LastError, &j.Receipt, &j.NotifyOnComplete,
		&j.ScheduledFor, &j.ExecutedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = job.Kind(kind)
	j.Status = job.Status(status)
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrap("scan job row", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate job rows", err)
	}
	return jobs, nil
}
