package redis

import (
	"strconv"

	"github.com/xraph/herald/job"
)

// All keys are prefixed with "herald:" to avoid collisions.
const keyPrefix = "herald:"

// jobKey returns the key for a job record: herald:job:{id}
func jobKey(id int64) string { return keyPrefix + "job:" + strconv.FormatInt(id, 10) }

// statusKey returns the Sorted Set of job IDs in a status.
func statusKey(s job.Status) string { return keyPrefix + "status:" + string(s) }

// seqKey is the counter that hands out job IDs.
const seqKey = keyPrefix + "job_seq"

// dueKey is the Sorted Set of pending job IDs scored by ScheduledFor.
const dueKey = keyPrefix + "due"

// doneKey is the Sorted Set of done job IDs scored by ExecutedAt.
const doneKey = keyPrefix + "done"
