// Package audithook is a Herald extension that turns job lifecycle events
// into audit records.
//
// Every job and cron hook emits a structured [AuditEvent] through the
// [Recorder] interface. Severity follows the outcome: info for normal
// operations, warning for retries and cancellations, critical for jobs
// parked as failed. [SlogRecorder] writes events as structured log lines;
// any other backend can be bridged with [RecorderFunc].
//
// # Selective filtering
//
//	audithook.New(audithook.NewSlogRecorder(logger),
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobCancelled,
//	    ),
//	)
package audithook
