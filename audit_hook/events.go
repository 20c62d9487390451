package audithook

// Actions, one per lifecycle hook.
const (
	ActionJobEnqueued  = "job.enqueued"
	ActionJobStarted   = "job.started"
	ActionJobCompleted = "job.completed"
	ActionJobRetrying  = "job.retrying"
	ActionJobFailed    = "job.failed"
	ActionJobCancelled = "job.cancelled"
	ActionJobRecovered = "job.recovered"
	ActionCronFired    = "cron.fired"
)

const (
	CategoryJob  = "herald.job"
	CategoryCron = "herald.cron"

	ResourceJob  = "job"
	ResourceCron = "cron_entry"
)

// catalog maps each action to its category, in hook order.
var catalog = []struct{ action, category string }{
	{ActionJobEnqueued, CategoryJob},
	{ActionJobStarted, CategoryJob},
	{ActionJobCompleted, CategoryJob},
	{ActionJobRetrying, CategoryJob},
	{ActionJobFailed, CategoryJob},
	{ActionJobCancelled, CategoryJob},
	{ActionJobRecovered, CategoryJob},
	{ActionCronFired, CategoryCron},
}

// AllActions lists every action the extension emits.
func AllActions() []string {
	out := make([]string, len(catalog))
	for i, c := range catalog {
		out[i] = c.action
	}
	return out
}
