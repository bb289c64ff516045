package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"taskhub/internal/workflow"
	"taskhub/pkg/trace"
	"taskhub/pkg/util"
)

const maxRetries = 5

// DLQPublisher parks undeliverable events for manual inspection.
type DLQPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// MilestoneCompletedHandler consumes milestone.completed events and
// runs the completion fast path, so a chain advances immediately
// instead of waiting for the next periodic evaluation.
type MilestoneCompletedHandler struct {
	engine       *workflow.Engine
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	dlq          DLQPublisher
	logger       *zap.Logger
}

func NewMilestoneCompletedHandler(
	engine *workflow.Engine,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	dlq DLQPublisher,
	logger *zap.Logger,
) *MilestoneCompletedHandler {
	return &MilestoneCompletedHandler{
		engine:       engine,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

func (h *MilestoneCompletedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p workflow.MilestoneCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal milestone.completed payload",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		// Permanent: the payload will not get better on redelivery.
		return nil
	}

	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	key := fmt.Sprintf("%d", p.MilestoneID)
	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "milestone.completed", key) {
		return nil
	}

	h.logger.Info("Handling milestone.completed event",
		zap.Int("milestone_id", p.MilestoneID),
		zap.Int("delivery_id", p.DeliveryID),
	)

	if err := h.engine.OnMilestoneCompleted(ctx, p.MilestoneID); err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Completion fast path failed",
			zap.Int("milestone_id", p.MilestoneID),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Error(err),
		)
		if !isRetryable {
			h.sendToDLQ(raw, err)
			return nil
		}

		if h.retryCounter != nil {
			count, cerr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey("milestone.completed", key))
			if cerr == nil && count > maxRetries {
				h.logger.Error("Max retries exceeded, sending milestone.completed event to DLQ",
					zap.Int("milestone_id", p.MilestoneID),
					zap.Int64("retry_count", count),
				)
				h.sendToDLQ(raw, err)
				return nil
			}
		}
		return err
	}

	return nil
}

func (h *MilestoneCompletedHandler) sendToDLQ(raw json.RawMessage, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ("milestone.completed", raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ",
			zap.String("routing_key", "milestone.completed"),
			zap.Error(err),
		)
	}
}
