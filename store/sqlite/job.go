package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

const jobColumns = `
	id, kind, status, payload, max_retries, retry_count, last_error, receipt,
	notify_on_complete, scheduled_for, executed_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create persists a new job in pending state and assigns its ID.
func (s *Store) Create(ctx context.Context, j *job.Job) (int64, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return 0, wrap("encode payload", err)
	}

	now := s.now()
	created := j.CreatedAt
	if created.IsZero() {
		created = now
	}
	scheduled := j.ScheduledFor
	if scheduled.IsZero() {
		scheduled = created
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO herald_jobs (
			kind, status, payload, max_retries, retry_count, last_error, receipt,
			notify_on_complete, scheduled_for, created_at, updated_at
		) VALUES (?, 'pending', ?, ?, 0, '', '', ?, ?, ?, ?)`,
		string(j.Kind), string(payload), j.MaxRetries, j.NotifyOnComplete,
		formatTime(scheduled), formatTime(created), formatTime(now),
	)
	if err != nil {
		return 0, wrap("create job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create job id", err)
	}
	j.ID = id
	return id, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, id int64) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM herald_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, herald.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return j, nil
}

// statusUpdate is shared by SetStatus and SetStatusIf. Done stamps
// executed_at and keeps last_error; every other status clears executed_at
// and overwrites last_error.
const statusUpdate = `
	UPDATE herald_jobs SET
		status      = ?1,
		executed_at = CASE WHEN ?1 = 'done' THEN ?3 ELSE NULL END,
		last_error  = CASE WHEN ?1 = 'done' THEN last_error ELSE ?2 END,
		updated_at  = ?3
	WHERE id = ?4`

// SetStatus unconditionally moves a job to status.
func (s *Store) SetStatus(ctx context.Context, id int64, status job.Status, errText string) error {
	res, err := s.db.ExecContext(ctx, statusUpdate,
		string(status), errText, formatTime(s.now()), id,
	)
	if err != nil {
		return wrap("set status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return herald.ErrJobNotFound
	}
	return nil
}

// SetStatusIf moves a job from one status to another only if it is
// currently in from.
func (s *Store) SetStatusIf(ctx context.Context, id int64, from, to job.Status, errText string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrap("begin set status if", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM herald_jobs WHERE id = ?`, id).Scan(&current)
	if isNoRows(err) {
		return false, herald.ErrJobNotFound
	}
	if err != nil {
		return false, wrap("set status if", err)
	}
	if job.Status(current) != from {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, statusUpdate,
		string(to), errText, formatTime(s.now()), id,
	); err != nil {
		return false, wrap("set status if", err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrap("commit set status if", err)
	}
	return true, nil
}

// ScheduleRetry returns a processing job to pending, due at at.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, at time.Time, errText string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrap("begin schedule retry", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM herald_jobs WHERE id = ?`, id).Scan(&current)
	if isNoRows(err) {
		return false, herald.ErrJobNotFound
	}
	if err != nil {
		return false, wrap("schedule retry", err)
	}
	if job.Status(current) != job.StatusProcessing {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE herald_jobs SET
			status        = 'pending',
			scheduled_for = ?,
			last_error    = ?,
			executed_at   = NULL,
			updated_at    = ?
		WHERE id = ?`,
		formatTime(at), errText, formatTime(s.now()), id,
	); err != nil {
		return false, wrap("schedule retry", err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrap("commit schedule retry", err)
	}
	return true, nil
}

// SetReceipt records the executor receipt.
func (s *Store) SetReceipt(ctx context.Context, id int64, receipt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE herald_jobs SET receipt = ?, updated_at = ? WHERE id = ?`,
		receipt, formatTime(s.now()), id,
	)
	if err != nil {
		return wrap("set receipt", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return herald.ErrJobNotFound
	}
	return nil
}

// IncrementRetry bumps RetryCount and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE herald_jobs SET retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?
		RETURNING retry_count`,
		formatTime(s.now()), id,
	).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, herald.ErrJobNotFound
		}
		return 0, wrap("increment retry", err)
	}
	return n, nil
}

// IncrementRetryIf bumps RetryCount only while the job is in status. The
// status check and the increment are one UPDATE; a miss is then told
// apart from an absent row.
func (s *Store) IncrementRetryIf(ctx context.Context, id int64, status job.Status) (int, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		UPDATE herald_jobs SET retry_count = retry_count + 1, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING retry_count`,
		formatTime(s.now()), id, string(status),
	).Scan(&n)
	if err == nil {
		return n, true, nil
	}
	if !isNoRows(err) {
		return 0, false, wrap("increment retry if", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM herald_jobs WHERE id = ?`, id).Scan(&one)
	if isNoRows(err) {
		return 0, false, herald.ErrJobNotFound
	}
	if err != nil {
		return 0, false, wrap("increment retry if", err)
	}
	return 0, false, nil
}

// QueryDue returns pending jobs scheduled at or before cutoff, earliest
// first.
func (s *Store) QueryDue(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM herald_jobs
		WHERE status = 'pending' AND scheduled_for <= ?
		ORDER BY scheduled_for ASC, id ASC`,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, wrap("query due", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// QueryByStatus returns jobs in the given status ordered by ID.
func (s *Store) QueryByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM herald_jobs WHERE status = ? ORDER BY id ASC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, wrap("query by status", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Cancel moves a pending or processing job to cancelled.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_jobs SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		formatTime(s.now()), id,
	)
	if err != nil {
		return false, wrap("cancel job", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RetryNow moves a failed job back to pending with a fresh retry budget.
func (s *Store) RetryNow(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE herald_jobs SET status = 'pending', retry_count = 0, last_error = '', updated_at = ?
		WHERE id = ? AND status = 'failed'`,
		formatTime(s.now()), id,
	)
	if err != nil {
		return false, wrap("retry job", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Stats returns aggregate counts relative to now.
func (s *Store) Stats(ctx context.Context, now time.Time) (*job.Stats, error) {
	var st job.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(status = 'pending'), 0),
			COALESCE(SUM(status = 'processing'), 0),
			COALESCE(SUM(status = 'pending' AND scheduled_for > ?1), 0),
			COALESCE(SUM(status = 'failed'), 0),
			COALESCE(SUM(status = 'done' AND executed_at >= ?2), 0)
		FROM herald_jobs`,
		formatTime(now), formatTime(now.Add(-job.DoneWindow)),
	).Scan(&st.Pending, &st.Processing, &st.ScheduledFuture, &st.Failed, &st.DoneRecent)
	if err != nil {
		return nil, wrap("stats", err)
	}
	return &st, nil
}

// PurgeDone deletes done jobs executed before olderThan.
func (s *Store) PurgeDone(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM herald_jobs WHERE status = 'done' AND executed_at < ?`,
		formatTime(olderThan),
	)
	if err != nil {
		return 0, wrap("purge done", err)
	}
	return res.RowsAffected()
}

// scanJob scans a single job row.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j                           job.Job
		kind, status, payload       string
		scheduled, created, updated string
		executed                    sql.NullString
	)
	err := row.Scan(
		&j.ID, &kind, &status, &payload, &j.MaxRetries, &j.RetryCount,
		&j.LastError, &j.Receipt, &j.NotifyOnComplete,
		&scheduled, &executed, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = job.Kind(kind)
	j.Status = job.Status(status)

	if err := json.Unmarshal([]byte(payload), &j.Payload); err != nil {
		return nil, wrap("decode payload", err)
	}
	if j.ScheduledFor, err = parseTime(scheduled); err != nil {
		return nil, wrap("parse scheduled_for", err)
	}
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, wrap("parse created_at", err)
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, wrap("parse updated_at", err)
	}
	if executed.Valid {
		t, err := parseTime(executed.String)
		if err != nil {
			return nil, wrap("parse executed_at", err)
		}
		j.ExecutedAt = &t
	}
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
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
