package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/job"
)

// errSkip aborts a transition without writing.
var errSkip = errors.New("skip")

// Create stores the job record and indexes it as pending.
func (s *Store) Create(ctx context.Context, j *job.Job) (int64, error) {
	id, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, wrap("allocate id", err)
	}

	now := s.now().UTC()
	rec := toRecord(j)
	rec.ID = id
	rec.Status = string(job.StatusPending)
	rec.RetryCount = 0
	rec.LastError = ""
	rec.Receipt = ""
	rec.ExecutedAt = nil
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.ScheduledFor.IsZero() {
		rec.ScheduledFor = rec.CreatedAt
	}
	rec.UpdatedAt = now

	data, err := encodeRecord(rec)
	if err != nil {
		return 0, wrap("encode job", err)
	}

	member := strconv.FormatInt(id, 10)
	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, jobKey(id), data, 0)
		p.ZAdd(ctx, statusKey(job.StatusPending), goredis.Z{Score: float64(id), Member: member})
		p.ZAdd(ctx, dueKey, goredis.Z{Score: score(rec.ScheduledFor), Member: member})
		return nil
	})
	if err != nil {
		return 0, wrap("create job", err)
	}
	j.ID = id
	return id, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, id int64) (*job.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, herald.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, wrap("decode job", err)
	}
	return rec.toJob(), nil
}

// SetStatus unconditionally moves a job to status.
func (s *Store) SetStatus(ctx context.Context, id int64, status job.Status, errText string) error {
	return s.transition(ctx, id, func(r *jobRecord) error {
		s.applyStatus(r, status, errText)
		return nil
	})
}

// SetStatusIf moves a job from one status to another only if it is
// currently in from.
func (s *Store) SetStatusIf(ctx context.Context, id int64, from, to job.Status, errText string) (bool, error) {
	err := s.transition(ctx, id, func(r *jobRecord) error {
		if job.Status(r.Status) != from {
			return errSkip
		}
		s.applyStatus(r, to, errText)
		return nil
	})
	return settle(err)
}

// ScheduleRetry returns a processing job to pending, due at at.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, at time.Time, errText string) (bool, error) {
	err := s.transition(ctx, id, func(r *jobRecord) error {
		if job.Status(r.Status) != job.StatusProcessing {
			return errSkip
		}
		s.applyStatus(r, job.StatusPending, errText)
		r.ScheduledFor = at.UTC()
		return nil
	})
	return settle(err)
}

// SetReceipt records the executor receipt.
func (s *Store) SetReceipt(ctx context.Context, id int64, receipt string) error {
	return s.transition(ctx, id, func(r *jobRecord) error {
		r.Receipt = receipt
		r.UpdatedAt = s.now().UTC()
		return nil
	})
}

// IncrementRetry bumps RetryCount and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.transition(ctx, id, func(r *jobRecord) error {
		r.RetryCount++
		r.UpdatedAt = s.now().UTC()
		n = r.RetryCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IncrementRetryIf bumps RetryCount only while the job is in status.
func (s *Store) IncrementRetryIf(ctx context.Context, id int64, status job.Status) (int, bool, error) {
	var n int
	err := s.transition(ctx, id, func(r *jobRecord) error {
		if job.Status(r.Status) != status {
			return errSkip
		}
		r.RetryCount++
		r.UpdatedAt = s.now().UTC()
		n = r.RetryCount
		return nil
	})
	ok, err := settle(err)
	if err != nil || !ok {
		return 0, false, err
	}
	return n, true, nil
}

// QueryDue returns pending jobs scheduled at or before cutoff, earliest
// first.
func (s *Store) QueryDue(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(cutoff), 'f', 0, 64),
	}).Result()
	if err != nil {
		return nil, wrap("query due", err)
	}
	jobs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	due := jobs[:0]
	for _, j := range jobs {
		if j.Status == job.StatusPending && !j.ScheduledFor.After(cutoff) {
			due = append(due, j)
		}
	}
	return due, nil
}

// QueryByStatus returns jobs in the given status ordered by ID.
func (s *Store) QueryByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRange(ctx, statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, wrap("query by status", err)
	}
	return s.load(ctx, ids)
}

// Cancel moves a pending or processing job to cancelled.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	err := s.transition(ctx, id, func(r *jobRecord) error {
		st := job.Status(r.Status)
		if st != job.StatusPending && st != job.StatusProcessing {
			return errSkip
		}
		r.Status = string(job.StatusCancelled)
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if errors.Is(err, herald.ErrJobNotFound) {
		return false, nil
	}
	return settle(err)
}

// RetryNow moves a failed job back to pending with a fresh retry budget.
func (s *Store) RetryNow(ctx context.Context, id int64) (bool, error) {
	err := s.transition(ctx, id, func(r *jobRecord) error {
		if job.Status(r.Status) != job.StatusFailed {
			return errSkip
		}
		r.Status = string(job.StatusPending)
		r.RetryCount = 0
		r.LastError = ""
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if errors.Is(err, herald.ErrJobNotFound) {
		return false, nil
	}
	return settle(err)
}

// Stats returns aggregate counts relative to now.
func (s *Store) Stats(ctx context.Context, now time.Time) (*job.Stats, error) {
	var (
		pending, processing, failed *goredis.IntCmd
		future, recent              *goredis.IntCmd
	)
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		pending = p.ZCard(ctx, statusKey(job.StatusPending))
		processing = p.ZCard(ctx, statusKey(job.StatusProcessing))
		failed = p.ZCard(ctx, statusKey(job.StatusFailed))
		future = p.ZCount(ctx, dueKey, "("+strconv.FormatFloat(score(now), 'f', 0, 64), "+inf")
		recent = p.ZCount(ctx, doneKey, strconv.FormatFloat(score(now.Add(-job.DoneWindow)), 'f', 0, 64), "+inf")
		return nil
	})
	if err != nil {
		return nil, wrap("stats", err)
	}
	return &job.Stats{
		Pending:         pending.Val(),
		Processing:      processing.Val(),
		ScheduledFuture: future.Val(),
		Failed:          failed.Val(),
		DoneRecent:      recent.Val(),
	}, nil
}

// PurgeDone deletes done jobs executed before olderThan.
func (s *Store) PurgeDone(ctx context.Context, olderThan time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, doneKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(olderThan), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, wrap("purge done", err)
	}

	var n int64
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		deleted, err := s.deleteIfDone(ctx, id, olderThan)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// applyStatus mirrors the SQL backends: done stamps ExecutedAt and keeps
// LastError, anything else clears ExecutedAt and overwrites LastError.
func (s *Store) applyStatus(r *jobRecord, status job.Status, errText string) {
	now := s.now().UTC()
	r.Status = string(status)
	r.UpdatedAt = now
	if status == job.StatusDone {
		r.ExecutedAt = &now
		return
	}
	r.ExecutedAt = nil
	r.LastError = errText
}

// transition loads the record under WATCH, applies fn and commits the record
// together with its index entries. fn returning errSkip aborts without
// writing.
func (s *Store) transition(ctx context.Context, id int64, fn func(*jobRecord) error) error {
	key := jobKey(id)
	member := strconv.FormatInt(id, 10)

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return herald.ErrJobNotFound
		}
		if err != nil {
			return wrap("load job", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return wrap("decode job", err)
		}
		before := job.Status(rec.Status)

		if err := fn(rec); err != nil {
			return err
		}

		out, err := encodeRecord(rec)
		if err != nil {
			return wrap("encode job", err)
		}
		after := job.Status(rec.Status)

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, out, 0)
			if before != after {
				p.ZRem(ctx, statusKey(before), member)
				p.ZAdd(ctx, statusKey(after), goredis.Z{Score: float64(id), Member: member})
			}
			if after == job.StatusPending {
				p.ZAdd(ctx, dueKey, goredis.Z{Score: score(rec.ScheduledFor), Member: member})
			} else {
				p.ZRem(ctx, dueKey, member)
			}
			if after == job.StatusDone && rec.ExecutedAt != nil {
				p.ZAdd(ctx, doneKey, goredis.Z{Score: score(*rec.ExecutedAt), Member: member})
			} else {
				p.ZRem(ctx, doneKey, member)
			}
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return wrap("transition", goredis.TxFailedErr)
}

func (s *Store) deleteIfDone(ctx context.Context, id int64, olderThan time.Time) (bool, error) {
	key := jobKey(id)
	member := strconv.FormatInt(id, 10)
	var deleted bool

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.ZRem(ctx, doneKey, member)
				return nil
			})
			return err
		}
		if err != nil {
			return wrap("load job", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return wrap("decode job", err)
		}
		if job.Status(rec.Status) != job.StatusDone || rec.ExecutedAt == nil || !rec.ExecutedAt.Before(olderThan) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, key)
			p.ZRem(ctx, statusKey(job.StatusDone), member)
			p.ZRem(ctx, doneKey, member)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	for range maxTxRetries {
		deleted = false
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, wrap("purge job", err)
		}
		return deleted, nil
	}
	return false, wrap("purge job", goredis.TxFailedErr)
}

// load fetches records for the given IDs in order, skipping any that
// vanished between the index read and the fetch.
func (s *Store) load(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, jobKey(id))
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("load jobs", err)
	}
	jobs := make([]*job.Job, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, wrap("decode job", err)
		}
		jobs = append(jobs, rec.toJob())
	}
	return jobs, nil
}

// settle maps errSkip to a plain false.
func settle(err error) (bool, error) {
	if errors.Is(err, errSkip) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
