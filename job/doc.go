// Package job defines the job entity, its state machine, the payload union
// shared by delivery and trigger jobs, and the store contract.
//
// # Job Entity
//
// A [Job] is one unit of scheduled work. It progresses through:
//
//	pending → processing → done
//	pending → processing → pending (retry after backoff) → processing → ...
//	pending → processing → failed
//	pending/processing → cancelled
//	failed → pending (manual retry)
//
// Fields of note:
//   - ScheduledFor: earliest time the job may run (creation time when immediate)
//   - MaxRetries / RetryCount: retry budget, fixed at creation
//   - ExecutedAt: set if and only if the job is done
//   - LastError: the most recent executor error
//
// # Payloads
//
// [Payload] is a tagged union: exactly one of Delivery or Trigger is set,
// and it decides the job's [Kind] and therefore which queue runs it.
//
// # Creating a Job
//
// Use [Build] with functional options. Validation and time-expression
// resolution happen here, before anything is persisted:
//
//	j, err := job.Build(time.Now(), job.Payload{Delivery: &job.DeliveryPayload{
//	    Source:  "backup",
//	    Message: "nightly backup finished",
//	}}, job.WithSchedule("5m"))
package job
