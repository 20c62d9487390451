// Package dlq exposes jobs that exhausted their retry budget. Failed jobs
// stay in the job store with status failed; this package lists them as
// [Entry] values and replays them through the engine.
//
//	svc := dlq.NewService(store, eng)
//
//	entries, _ := svc.List(ctx, 50)
//	_ = svc.Replay(ctx, entries[0].JobID)
//	n, _ := svc.ReplayAll(ctx, 0)
//
// Replay reuses the job row: it moves the job back to pending with a fresh
// retry budget and submits it for immediate processing.
//
// # Admin API
//
//   - GET  /v1/jobs/failed       list entries
//   - POST /v1/dlq/replay        replay every failed job
//   - POST /v1/jobs/{id}/retry   replay one job
package dlq
