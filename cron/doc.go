// Package cron enqueues jobs on recurring schedules.
//
// Entries live in memory and are registered at startup or through the admin
// API. Schedules use standard 5-field cron expressions or descriptors such as
// "@every 1h" and "@daily", parsed with robfig/cron.
//
// # Entry
//
// An [Entry] represents a recurring job:
//   - Schedule: cron expression (e.g., "0 9 * * 1-5")
//   - Payload: the delivery or trigger payload enqueued on every fire
//   - MaxRetries: optional retry budget for the enqueued jobs
//   - Enabled: whether the entry fires
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, enqueues a fresh job
// for each through the engine, and advances LastRunAt and NextRunAt. An
// entry whose enqueue fails keeps its NextRunAt and is tried again on the
// next tick. The ext.CronFired hook fires after each enqueue.
package cron
