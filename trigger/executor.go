package trigger

import (
	"context"
	"fmt"

	"github.com/xraph/herald/job"
)

// Triggerer fires a remote automation. *HomeAssistant satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, automationID string, variables map[string]any) error
}

var _ job.Executor = (*Executor)(nil)

// Executor runs trigger jobs. Triggers produce no receipt.
type Executor struct {
	triggerer Triggerer
}

// NewExecutor creates a trigger executor.
func NewExecutor(t Triggerer) *Executor {
	return &Executor{triggerer: t}
}

// Execute implements job.Executor.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (string, error) {
	p := j.Payload.Trigger
	if j.Kind != job.KindTrigger || p == nil {
		return "", fmt.Errorf("trigger: job %d is not a trigger job", j.ID)
	}
	return "", e.triggerer.Trigger(ctx, p.AutomationID, p.Variables)
}
