// Package workflow drives the milestone state machine: it projects
// ready milestones into tasks, triggers the downstream ticket side
// effect at most once per milestone, and advances the chain early when
// a milestone completes ahead of schedule.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskhub/internal/bridge"
	"taskhub/internal/model"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"
)

// MilestoneStore is the row-store slice the engine needs. Reads that
// return milestones populate LeadDays from the template join.
type MilestoneStore interface {
	// ListReady returns milestones inside their lead window whose
	// latches are not both set, excluding completed ones.
	ListReady(ctx context.Context) ([]model.DeliveryMilestone, error)
	ListByDelivery(ctx context.Context, deliveryID int) ([]model.DeliveryMilestone, error)
	GetMilestone(ctx context.Context, id int) (model.DeliveryMilestone, error)
	FindByDeliveryTemplate(ctx context.Context, deliveryID, templateID int) (model.DeliveryMilestone, error)
	// NextMilestone returns the milestone after sortOrder in the same
	// delivery chain, or nil when the chain is exhausted.
	NextMilestone(ctx context.Context, deliveryID, sortOrder int) (*model.DeliveryMilestone, error)
	GetDelivery(ctx context.Context, id int) (model.Delivery, error)
	GetTemplate(ctx context.Context, id int) (model.MilestoneTemplate, error)
	ListActiveTemplates(ctx context.Context) ([]model.MilestoneTemplate, error)
	// OffsetFor returns the per-delivery-type day-offset override for a
	// template, when one exists.
	OffsetFor(ctx context.Context, deliveryTypeID, templateID int) (int, bool, error)
	InsertChain(ctx context.Context, milestones []model.DeliveryMilestone) error
	DeleteChain(ctx context.Context, deliveryID int) error
	MarkTaskCreated(ctx context.Context, id int) error
	MarkTicketsCreated(ctx context.Context, id int, keys []string) error
	UpdateStatus(ctx context.Context, id int, status string, actualDate *time.Time) error
	UpdateChecklist(ctx context.Context, id int, state []bool) error
}

// TaskStore is the task side of the row store.
type TaskStore interface {
	UpsertTask(ctx context.Context, task model.CanonicalTask) error
	DeleteTasks(ctx context.Context, src string, sourceIDs []string) error
}

// WorkOrder describes the tickets to create for one milestone.
type WorkOrder struct {
	DeliveryID     int        `json:"delivery_id"`
	MilestoneID    int        `json:"milestone_id"`
	TemplateName   string     `json:"template_name"`
	GroupIDs       []int      `json:"group_ids"`
	Classification string     `json:"classification"`
	TargetDate     *time.Time `json:"target_date,omitempty"`
}

// TicketResult is what the orchestrator reports back.
type TicketResult struct {
	ParentKey    string   `json:"parent_key"`
	ChildKeys    []string `json:"child_keys"`
	CreatedCount int      `json:"created_count"`
}

// Orchestrator creates the external tracking tickets for a milestone's
// linked groups. Errors are logged per milestone, never retried by the
// engine itself; the unset latch makes the next pass retry naturally.
type Orchestrator interface {
	Execute(ctx context.Context, order WorkOrder) (TicketResult, error)
}

// DedupGuard is a best-effort cross-process guard on the ticket side
// effect when the batch pass and the completion fast path race. The
// durable latch remains the authority; nil disables the guard. A
// failed ticket step must Release its key, otherwise the unset latch
// cannot be retried until the guard TTL expires.
type DedupGuard interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

// EventPublisher emits milestone lifecycle events. Optional.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// MilestoneCompletedPayload is the milestone.completed event body.
type MilestoneCompletedPayload struct {
	MilestoneID int    `json:"milestone_id"`
	DeliveryID  int    `json:"delivery_id"`
	TraceID     string `json:"trace_id,omitempty"`
}

// Stats summarizes one batch evaluation.
type Stats struct {
	TasksCreated   int `json:"tasks_created"`
	TicketsCreated int `json:"tickets_created"`
}

type Engine struct {
	store     MilestoneStore
	tasks     TaskStore
	orch      Orchestrator
	guard     DedupGuard
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(store MilestoneStore, tasks TaskStore, orch Orchestrator, guard DedupGuard, publisher EventPublisher, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		tasks:     tasks,
		orch:      orch,
		guard:     guard,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// EvaluateAll processes every milestone that is ready for workflow
// action. Failures are contained per milestone: the failed milestone
// keeps its latch unset and is retried on the next pass. Only the
// candidate-list fetch itself is fatal to the call.
func (e *Engine) EvaluateAll(ctx context.Context) (Stats, error) {
	log := logger.WithTrace(ctx, e.logger)

	ready, err := e.store.ListReady(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list ready milestones: %w", err)
	}

	stats := Stats{}
	for _, m := range ready {
		taskCreated, ticketsCreated, perr := e.processMilestone(ctx, m)
		if taskCreated {
			stats.TasksCreated++
		}
		if ticketsCreated {
			stats.TicketsCreated++
		}
		if perr != nil {
			log.Error("Milestone workflow step failed",
				zap.Int("milestone_id", m.ID),
				zap.Int("delivery_id", m.DeliveryID),
				zap.String("template", m.TemplateName),
				zap.Error(perr),
			)
			continue
		}
	}

	log.Info("Workflow evaluation completed",
		zap.Int("candidates", len(ready)),
		zap.Int("tasks_created", stats.TasksCreated),
		zap.Int("tickets_created", stats.TicketsCreated),
	)
	return stats, nil
}

// OnMilestoneCompleted advances the chain immediately after a
// completion: when the next milestone is already inside its lead
// window it is processed now instead of waiting for the periodic pass.
func (e *Engine) OnMilestoneCompleted(ctx context.Context, milestoneID int) error {
	log := logger.WithTrace(ctx, e.logger)

	m, err := e.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return fmt.Errorf("failed to load milestone %d: %w", milestoneID, err)
	}

	next, err := e.store.NextMilestone(ctx, m.DeliveryID, m.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to find successor of milestone %d: %w", milestoneID, err)
	}
	if next == nil {
		log.Debug("Completed milestone is the last in its chain",
			zap.Int("milestone_id", milestoneID),
		)
		return nil
	}
	if next.TargetDate == nil {
		// No target date means no trigger window; the periodic pass
		// handles it once a date is set.
		return nil
	}

	triggerDate := next.TargetDate.AddDate(0, 0, -next.LeadDays)
	if e.now().Before(triggerDate) {
		log.Debug("Successor milestone not yet inside its lead window",
			zap.Int("milestone_id", next.ID),
			zap.Time("trigger_date", triggerDate),
		)
		return nil
	}

	taskCreated, ticketsCreated, perr := e.processMilestone(ctx, *next)
	if perr != nil {
		// Contained like the batch path: the unset latch retries it on
		// the next periodic pass.
		log.Error("Fast-path milestone workflow step failed",
			zap.Int("milestone_id", next.ID),
			zap.String("template", next.TemplateName),
			zap.Error(perr),
		)
		return nil
	}

	log.Info("Fast path advanced milestone chain",
		zap.Int("completed_id", milestoneID),
		zap.Int("next_id", next.ID),
		zap.Bool("task_created", taskCreated),
		zap.Bool("tickets_created", ticketsCreated),
	)
	return nil
}

// processMilestone runs the two workflow steps for one milestone.
// Step 1 (task projection) is unconditional: the bridge is idempotent
// so repeating it is always safe. Step 2 (tickets) is latch-guarded.
func (e *Engine) processMilestone(ctx context.Context, m model.DeliveryMilestone) (taskCreated, ticketsCreated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("milestone %d workflow panicked: %v", m.ID, r)
		}
	}()

	delivery, err := e.store.GetDelivery(ctx, m.DeliveryID)
	if err != nil {
		metrics.WorkflowErrors.WithLabelValues("project").Inc()
		return false, false, fmt.Errorf("failed to load delivery %d: %w", m.DeliveryID, err)
	}

	task := bridge.Project(m, delivery, e.now())
	if err := e.tasks.UpsertTask(ctx, task); err != nil {
		metrics.WorkflowErrors.WithLabelValues("project").Inc()
		return false, false, fmt.Errorf("failed to upsert milestone task: %w", err)
	}
	if !m.TaskCreated {
		if err := e.store.MarkTaskCreated(ctx, m.ID); err != nil {
			metrics.WorkflowErrors.WithLabelValues("project").Inc()
			return false, false, fmt.Errorf("failed to latch task creation: %w", err)
		}
		taskCreated = true
		metrics.WorkflowTasksCreated.Inc()
	}

	ticketsCreated, err = e.createTickets(ctx, m, delivery)
	return taskCreated, ticketsCreated, err
}

func (e *Engine) createTickets(ctx context.Context, m model.DeliveryMilestone, delivery model.Delivery) (bool, error) {
	if m.TicketsCreated {
		return false, nil
	}

	template, err := e.store.GetTemplate(ctx, m.TemplateID)
	if err != nil {
		metrics.WorkflowErrors.WithLabelValues("tickets").Inc()
		return false, fmt.Errorf("failed to load template %d: %w", m.TemplateID, err)
	}
	if len(template.LinkedTicketGroupIDs) == 0 {
		return false, nil
	}
	if delivery.Classification == "" {
		// The linked groups need the delivery classification; without
		// it there is nothing to order.
		return false, nil
	}

	guardKey := bridge.SourceID(m.DeliveryID, m.TemplateID)
	if e.guard != nil && !e.guard.AcquireOnce(ctx, "tickets", guardKey) {
		return false, nil
	}

	start := time.Now()
	result, err := e.orch.Execute(ctx, WorkOrder{
		DeliveryID:     m.DeliveryID,
		MilestoneID:    m.ID,
		TemplateName:   m.TemplateName,
		GroupIDs:       template.LinkedTicketGroupIDs,
		Classification: delivery.Classification,
		TargetDate:     m.TargetDate,
	})
	if err != nil {
		e.releaseGuard(ctx, guardKey)
		metrics.RecordOrchestratorCall("error", time.Since(start))
		metrics.WorkflowErrors.WithLabelValues("tickets").Inc()
		return false, fmt.Errorf("orchestrator failed for milestone %d: %w", m.ID, err)
	}
	metrics.RecordOrchestratorCall("success", time.Since(start))

	keys := make([]string, 0, 1+len(result.ChildKeys))
	if result.ParentKey != "" {
		keys = append(keys, result.ParentKey)
	}
	keys = append(keys, result.ChildKeys...)

	if err := e.store.MarkTicketsCreated(ctx, m.ID, keys); err != nil {
		e.releaseGuard(ctx, guardKey)
		metrics.WorkflowErrors.WithLabelValues("tickets").Inc()
		return false, fmt.Errorf("failed to latch ticket creation: %w", err)
	}
	metrics.WorkflowTicketsCreated.Inc()
	return true, nil
}

// releaseGuard hands the ticket guard key back after a failed attempt
// so the next evaluation pass is not blocked until the TTL expires.
func (e *Engine) releaseGuard(ctx context.Context, key string) {
	if e.guard == nil {
		return
	}
	e.guard.Release(ctx, "tickets", key)
}
