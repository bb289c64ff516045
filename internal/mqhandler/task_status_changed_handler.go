package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"taskhub/internal/model"
	"taskhub/internal/workflow"
	"taskhub/pkg/trace"
	"taskhub/pkg/util"
)

// TaskStatusChangedPayload is emitted by the task surface when a user
// changes a task's status.
type TaskStatusChangedPayload struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	TraceID  string `json:"trace_id,omitempty"`
}

// TaskStatusChangedHandler applies external status changes on
// milestone-sourced tasks back onto their milestones (the reverse
// bridge mapping). Changes to tasks of other sources are not ours to
// handle.
type TaskStatusChangedHandler struct {
	engine *workflow.Engine
	logger *zap.Logger
}

func NewTaskStatusChangedHandler(engine *workflow.Engine, logger *zap.Logger) *TaskStatusChangedHandler {
	return &TaskStatusChangedHandler{
		engine: engine,
		logger: logger,
	}
}

func (h *TaskStatusChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p TaskStatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal task.status.changed payload",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return nil
	}

	if p.Source != model.SourceMilestone {
		return nil
	}

	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	h.logger.Info("Handling task.status.changed event",
		zap.String("source_id", p.SourceID),
		zap.String("status", p.Status),
	)

	if err := h.engine.ApplyTaskStatusChange(ctx, p.SourceID, p.Status); err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to apply task status change",
			zap.String("source_id", p.SourceID),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Error(err),
		)
		if !isRetryable {
			return nil
		}
		return err
	}

	return nil
}
