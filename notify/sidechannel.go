package notify

import (
	"context"

	"github.com/xraph/herald/job"
)

// SummarySource is the delivery source used for completion summaries.
const SummarySource = "herald"

// DeliveryEnqueuer submits a delivery job. engine.Engine satisfies it.
type DeliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, p job.DeliveryPayload, opts ...job.Option) (int64, error)
}

// SideChannel reports trigger outcomes by enqueueing a delivery job.
type SideChannel struct {
	enqueuer  DeliveryEnqueuer
	channelID string
}

// NewSideChannel creates a SideChannel. An empty channelID leaves the
// choice to the delivery sender's default.
func NewSideChannel(enqueuer DeliveryEnqueuer, channelID string) *SideChannel {
	return &SideChannel{enqueuer: enqueuer, channelID: channelID}
}

// Emit implements worker.Notifier.
func (s *SideChannel) Emit(ctx context.Context, j *job.Job, summary string, success bool) error {
	sev := job.SeveritySuccess
	if !success {
		sev = job.SeverityError
	}
	title := "Automation"
	if j.Payload.Trigger != nil {
		title = "Automation " + j.Payload.Trigger.AutomationID
	}
	_, err := s.enqueuer.EnqueueDelivery(ctx, job.DeliveryPayload{
		Source:    SummarySource,
		Message:   summary,
		Severity:  sev,
		Title:     title,
		ChannelID: s.channelID,
	})
	return err
}
