package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"taskhub/internal/bridge"
	"taskhub/internal/model"
	"taskhub/pkg/logger"
)

// CreateChain builds the full milestone chain for a delivery from the
// active templates, applying the per-delivery-type offset overrides to
// the delivery start date. The chain is inserted whole or not at all.
func (e *Engine) CreateChain(ctx context.Context, delivery model.Delivery) error {
	log := logger.WithTrace(ctx, e.logger)

	templates, err := e.store.ListActiveTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active templates: %w", err)
	}
	if len(templates) == 0 {
		return fmt.Errorf("no active milestone templates configured")
	}

	milestones := make([]model.DeliveryMilestone, 0, len(templates))
	for _, t := range templates {
		offset := t.DefaultDayOffset
		if override, ok, oerr := e.store.OffsetFor(ctx, delivery.TypeID, t.ID); oerr != nil {
			return fmt.Errorf("failed to resolve offset for template %d: %w", t.ID, oerr)
		} else if ok {
			offset = override
		}

		target := delivery.StartDate.AddDate(0, 0, offset)
		milestones = append(milestones, model.DeliveryMilestone{
			DeliveryID:     delivery.ID,
			TemplateID:     t.ID,
			TemplateName:   t.Name,
			SortOrder:      t.SortOrder,
			TargetDate:     &target,
			Status:         model.MilestonePending,
			ChecklistState: make([]bool, len(t.Checklist)),
			LeadDays:       t.LeadDays,
		})
	}

	if err := e.store.InsertChain(ctx, milestones); err != nil {
		return fmt.Errorf("failed to insert milestone chain: %w", err)
	}

	log.Info("Milestone chain created",
		zap.Int("delivery_id", delivery.ID),
		zap.Int("milestone_count", len(milestones)),
	)
	return nil
}

// DeleteChain removes a delivery's whole milestone chain and the task
// projections it created. This is the only operation that resets the
// idempotency latches, by destroying the rows that hold them.
func (e *Engine) DeleteChain(ctx context.Context, deliveryID int) error {
	log := logger.WithTrace(ctx, e.logger)

	milestones, err := e.store.ListByDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("failed to list milestones of delivery %d: %w", deliveryID, err)
	}

	sourceIDs := make([]string, 0, len(milestones))
	for _, m := range milestones {
		sourceIDs = append(sourceIDs, bridge.SourceID(m.DeliveryID, m.TemplateID))
	}

	if len(sourceIDs) > 0 {
		if err := e.tasks.DeleteTasks(ctx, model.SourceMilestone, sourceIDs); err != nil {
			return fmt.Errorf("failed to delete projected tasks: %w", err)
		}
	}

	if err := e.store.DeleteChain(ctx, deliveryID); err != nil {
		return fmt.Errorf("failed to delete milestone chain: %w", err)
	}

	log.Info("Milestone chain deleted",
		zap.Int("delivery_id", deliveryID),
		zap.Int("milestone_count", len(milestones)),
	)
	return nil
}
