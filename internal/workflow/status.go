package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskhub/internal/bridge"
	"taskhub/internal/model"
	"taskhub/pkg/logger"
	"taskhub/pkg/trace"
)

// CompleteMilestone marks a milestone complete, stamping actualDate
// (or now when nil), refreshes its task projection, and fires the
// completion fast path. Latches are untouched: status transitions
// never reset them.
func (e *Engine) CompleteMilestone(ctx context.Context, id int, actualDate *time.Time) error {
	m, err := e.store.GetMilestone(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load milestone %d: %w", id, err)
	}
	if m.Status == model.MilestoneComplete {
		return nil
	}

	when := e.now()
	if actualDate != nil {
		when = *actualDate
	}
	if err := e.store.UpdateStatus(ctx, id, model.MilestoneComplete, &when); err != nil {
		return fmt.Errorf("failed to complete milestone %d: %w", id, err)
	}

	m.Status = model.MilestoneComplete
	m.ActualDate = &when
	e.refreshProjection(ctx, m)

	e.announceCompletion(ctx, m)
	return nil
}

// ReopenMilestone moves a milestone back to pending or in_progress,
// clearing the actual date per the status invariant.
func (e *Engine) ReopenMilestone(ctx context.Context, id int, status string) error {
	if status != model.MilestonePending && status != model.MilestoneInProgress {
		return fmt.Errorf("invalid reopen status %q", status)
	}

	m, err := e.store.GetMilestone(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load milestone %d: %w", id, err)
	}
	if m.Status == status {
		return nil
	}

	if err := e.store.UpdateStatus(ctx, id, status, nil); err != nil {
		return fmt.Errorf("failed to reopen milestone %d: %w", id, err)
	}

	m.Status = status
	m.ActualDate = nil
	e.refreshProjection(ctx, m)
	return nil
}

// SetChecklistItem toggles one checklist entry and refreshes the
// projection so the task description tracks progress.
func (e *Engine) SetChecklistItem(ctx context.Context, id, index int, done bool) error {
	m, err := e.store.GetMilestone(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load milestone %d: %w", id, err)
	}
	if index < 0 || index >= len(m.ChecklistState) {
		return fmt.Errorf("checklist index %d out of range for milestone %d", index, id)
	}
	if m.ChecklistState[index] == done {
		return nil
	}

	m.ChecklistState[index] = done
	if err := e.store.UpdateChecklist(ctx, id, m.ChecklistState); err != nil {
		return fmt.Errorf("failed to update checklist of milestone %d: %w", id, err)
	}

	e.refreshProjection(ctx, m)
	return nil
}

// ApplyTaskStatusChange is the reverse bridge mapping: an external
// status change on a milestone-sourced task is translated back onto
// the milestone. A transition into complete fires the fast path.
func (e *Engine) ApplyTaskStatusChange(ctx context.Context, sourceID, taskStatus string) error {
	deliveryID, templateID, err := bridge.ParseSourceID(sourceID)
	if err != nil {
		return err
	}

	m, err := e.store.FindByDeliveryTemplate(ctx, deliveryID, templateID)
	if err != nil {
		return fmt.Errorf("failed to find milestone for %s: %w", sourceID, err)
	}

	update, ok := bridge.ApplyTaskStatus(taskStatus, m, e.now())
	if !ok {
		return nil
	}

	if err := e.store.UpdateStatus(ctx, m.ID, update.Status, update.ActualDate); err != nil {
		return fmt.Errorf("failed to apply task status to milestone %d: %w", m.ID, err)
	}

	logger.WithTrace(ctx, e.logger).Info("Applied external task status to milestone",
		zap.Int("milestone_id", m.ID),
		zap.String("status", update.Status),
	)

	if update.Status == model.MilestoneComplete {
		m.Status = update.Status
		m.ActualDate = update.ActualDate
		e.announceCompletion(ctx, m)
	}
	return nil
}

// refreshProjection re-projects a milestone whose task already exists.
// Best effort: a stale projection heals on the next evaluation pass.
func (e *Engine) refreshProjection(ctx context.Context, m model.DeliveryMilestone) {
	if !m.TaskCreated {
		return
	}
	delivery, err := e.store.GetDelivery(ctx, m.DeliveryID)
	if err != nil {
		e.logger.Warn("Failed to load delivery for projection refresh",
			zap.Int("delivery_id", m.DeliveryID),
			zap.Error(err),
		)
		return
	}
	if err := e.tasks.UpsertTask(ctx, bridge.Project(m, delivery, e.now())); err != nil {
		e.logger.Warn("Failed to refresh milestone task projection",
			zap.Int("milestone_id", m.ID),
			zap.Error(err),
		)
	}
}

// announceCompletion publishes milestone.completed, falling back to an
// inline fast-path invocation when no publisher is wired.
func (e *Engine) announceCompletion(ctx context.Context, m model.DeliveryMilestone) {
	if e.publisher != nil {
		payload := MilestoneCompletedPayload{
			MilestoneID: m.ID,
			DeliveryID:  m.DeliveryID,
			TraceID:     trace.FromContext(ctx),
		}
		err := e.publisher.Publish("milestone.completed", payload)
		if err == nil {
			return
		}
		e.logger.Warn("Failed to publish milestone.completed, running fast path inline",
			zap.Int("milestone_id", m.ID),
			zap.Error(err),
		)
	}
	if err := e.OnMilestoneCompleted(ctx, m.ID); err != nil {
		e.logger.Error("Inline completion fast path failed",
			zap.Int("milestone_id", m.ID),
			zap.Error(err),
		)
	}
}
