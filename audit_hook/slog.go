package audithook

import (
	"context"
	"log/slog"
)

// SlogRecorder writes audit events as structured log records under the
// "audit" group. Critical events log at error level, warnings at warn.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder that writes to logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	meta := make([]any, 0, len(evt.Metadata))
	for k, v := range evt.Metadata {
		meta = append(meta, slog.Any(k, v))
	}
	r.logger.LogAttrs(ctx, level, "audit",
		slog.Group("audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("category", evt.Category),
			slog.String("outcome", evt.Outcome),
			slog.Group("metadata", meta...),
		),
	)
	return nil
}
