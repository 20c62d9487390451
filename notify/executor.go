package notify

import (
	"context"
	"fmt"

	"github.com/xraph/herald/job"
)

// Sender delivers one message and returns an opaque receipt.
type Sender interface {
	Send(ctx context.Context, msg *job.DeliveryPayload) (receipt string, err error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg *job.DeliveryPayload) (string, error)

// Send calls f(ctx, msg).
func (f SenderFunc) Send(ctx context.Context, msg *job.DeliveryPayload) (string, error) {
	return f(ctx, msg)
}

var _ job.Executor = (*Executor)(nil)

// Executor runs delivery jobs through a Sender.
type Executor struct {
	sender Sender
}

// NewExecutor creates a delivery executor.
func NewExecutor(sender Sender) *Executor {
	return &Executor{sender: sender}
}

// Execute implements job.Executor.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (string, error) {
	if j.Kind != job.KindDelivery || j.Payload.Delivery == nil {
		return "", fmt.Errorf("notify: job %d is not a delivery job", j.ID)
	}
	msg := *j.Payload.Delivery
	if msg.Severity == "" {
		msg.Severity = job.SeverityInfo
	}
	return e.sender.Send(ctx, &msg)
}
