// Package herald provides a persistent job queue and scheduling engine for
// outbound chat notifications and remote automation triggers.
//
// Jobs are persisted before anything runs, processed one at a time per
// queue, retried with exponential backoff, and parked as failed once their
// retry budget is spent. Jobs may run immediately or at a future time.
//
// # Quick Start
//
//	s := memory.New()
//	eng, err := engine.New(s,
//	    engine.WithDeliveryExecutor(notify.NewExecutor(discordSender)),
//	    engine.WithTriggerExecutor(trigger.NewExecutor(hass)),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	id, err := eng.EnqueueDelivery(ctx, job.DeliveryPayload{Source: "ci", Message: "build green"})
//
// # Architecture
//
// The job package defines the job entity, its state machine and the store
// contract. Stores (memory, postgres, sqlite, redis) implement it with
// atomic single-row transitions. The worker package holds the generic queue
// engine; the scheduler package feeds it due jobs; the engine package wires
// everything together and runs crash recovery at start. Extensions observe
// the job lifecycle: observability exports Prometheus metrics, audit_hook
// writes audit records and stream feeds live event subscribers.
package herald
