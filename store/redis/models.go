package redis

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/herald/job"
)

// jobRecord is the msgpack shape of a job stored under jobKey.
type jobRecord struct {
	ID               int64       `msgpack:"id"`
	Kind             string      `msgpack:"kind"`
	Status           string      `msgpack:"status"`
	Payload          job.Payload `msgpack:"payload"`
	MaxRetries       int         `msgpack:"max_retries"`
	RetryCount       int         `msgpack:"retry_count"`
	LastError        string      `msgpack:"last_error,omitempty"`
	Receipt          string      `msgpack:"receipt,omitempty"`
	NotifyOnComplete bool        `msgpack:"notify_on_complete,omitempty"`
	ScheduledFor     time.Time   `msgpack:"scheduled_for"`
	ExecutedAt       *time.Time  `msgpack:"executed_at,omitempty"`
	CreatedAt        time.Time   `msgpack:"created_at"`
	UpdatedAt        time.Time   `msgpack:"updated_at"`
}

func toRecord(j *job.Job) *jobRecord {
	return &jobRecord{
		ID:               j.ID,
		Kind:             string(j.Kind),
		Status:           string(j.Status),
		Payload:          j.Payload.Clone(),
		MaxRetries:       j.MaxRetries,
		RetryCount:       j.RetryCount,
		LastError:        j.LastError,
		Receipt:          j.Receipt,
		NotifyOnComplete: j.NotifyOnComplete,
		ScheduledFor:     j.ScheduledFor.UTC(),
		ExecutedAt:       j.ExecutedAt,
		CreatedAt:        j.CreatedAt.UTC(),
		UpdatedAt:        j.UpdatedAt.UTC(),
	}
}

func (r *jobRecord) toJob() *job.Job {
	var executed *time.Time
	if r.ExecutedAt != nil {
		t := r.ExecutedAt.UTC()
		executed = &t
	}
	return &job.Job{
		ID:               r.ID,
		Kind:             job.Kind(r.Kind),
		Status:           job.Status(r.Status),
		Payload:          r.Payload,
		MaxRetries:       r.MaxRetries,
		RetryCount:       r.RetryCount,
		LastError:        r.LastError,
		Receipt:          r.Receipt,
		NotifyOnComplete: r.NotifyOnComplete,
		ScheduledFor:     r.ScheduledFor.UTC(),
		ExecutedAt:       executed,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func encodeRecord(r *jobRecord) ([]byte, error) {
	return msgpack.Marshal(r)
}

func decodeRecord(data []byte) (*jobRecord, error) {
	var r jobRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// score converts a timestamp to a sorted-set score in microseconds, which
// float64 represents exactly for the foreseeable future.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
