// Package engine wires the Herald subsystems together and exposes the
// boundary consumed by producers: enqueue, cancel, retry and the read-side
// queries.
//
// The engine sits above every subsystem package. It builds one
// worker.Queue per job kind that has an executor, the due-job scheduler,
// the cron scheduler, the failed-job service and the retention sweep.
//
// # Building an Engine
//
//	eng, err := engine.New(pgStore,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithDeliveryExecutor(notify.NewExecutor(discord)),
//	    engine.WithTriggerExecutor(trigger.NewExecutor(hass)),
//	    engine.WithRegisterer(prometheus.DefaultRegisterer),
//	)
//
// # Enqueuing Jobs
//
//	id, err := eng.EnqueueDelivery(ctx, job.DeliveryPayload{
//	    Source:  "backup",
//	    Message: "nightly backup finished",
//	})
//
//	// Scheduled, with a completion summary.
//	id, err = eng.EnqueueTrigger(ctx, job.TriggerPayload{AutomationID: "automation.lights_off"},
//	    job.WithSchedule("2h"),
//	    job.WithNotifyOnComplete(true),
//	)
//
// # Lifecycle
//
// Start resets jobs left processing by a crash, starts the queues, runs an
// immediate scheduler tick and arms the periodic loops. Stop drains the
// queues within Config.ShutdownTimeout.
//
// # Options
//
//   - [WithConfig]: replace herald.DefaultConfig()
//   - [WithDeliveryExecutor], [WithTriggerExecutor]: executors per kind
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithBackoff]: set the retry backoff strategy
//   - [WithNotifier], [WithSummaryChannel]: completion side-channel
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
//   - [WithRegisterer]: Prometheus collectors
package engine
