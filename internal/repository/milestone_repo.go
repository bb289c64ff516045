package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskhub/internal/model"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		logger: logger,
	}
}

const selectMilestoneColumns = `
        SELECT m.id, m.delivery_id, m.template_id, m.template_name, m.sort_order,
               m.target_date, m.actual_date, m.status, m.checklist_state,
               m.workflow_task_created, m.workflow_tickets_created, m.workflow_ticket_keys,
               t.lead_days, m.created_at, m.updated_at
        FROM delivery_milestones m
        JOIN milestone_templates t ON t.id = m.template_id
    `

func scanMilestone(row pgx.Row) (model.DeliveryMilestone, error) {
	var m model.DeliveryMilestone
	err := row.Scan(
		&m.ID,
		&m.DeliveryID,
		&m.TemplateID,
		&m.TemplateName,
		&m.SortOrder,
		&m.TargetDate,
		&m.ActualDate,
		&m.Status,
		&m.ChecklistState,
		&m.TaskCreated,
		&m.TicketsCreated,
		&m.TicketKeys,
		&m.LeadDays,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// ListReady returns the milestones eligible for workflow action: not
// complete, inside the template lead window relative to their target
// date, and with at least one idempotency latch still unset.
func (r *MilestoneRepository) ListReady(ctx context.Context) ([]model.DeliveryMilestone, error) {
	query := selectMilestoneColumns + `
        WHERE m.status <> 'complete'
          AND m.target_date IS NOT NULL
          AND m.target_date - (t.lead_days * INTERVAL '1 day') <= now()
          AND NOT (m.workflow_task_created AND m.workflow_tickets_created)
        ORDER BY m.delivery_id, m.sort_order
    `

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list ready milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectMilestones(rows)
}

func (r *MilestoneRepository) ListByDelivery(ctx context.Context, deliveryID int) ([]model.DeliveryMilestone, error) {
	rows, err := r.db.Query(ctx, selectMilestoneColumns+`
        WHERE m.delivery_id = $1
        ORDER BY m.sort_order ASC
    `, deliveryID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Int("delivery_id", deliveryID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectMilestones(rows)
}

func collectMilestones(rows pgx.Rows) ([]model.DeliveryMilestone, error) {
	var milestones []model.DeliveryMilestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepository) GetMilestone(ctx context.Context, id int) (model.DeliveryMilestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, selectMilestoneColumns+` WHERE m.id = $1`, id))
}

func (r *MilestoneRepository) FindByDeliveryTemplate(ctx context.Context, deliveryID, templateID int) (model.DeliveryMilestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, selectMilestoneColumns+`
        WHERE m.delivery_id = $1 AND m.template_id = $2
    `, deliveryID, templateID))
}

// NextMilestone returns the chain successor, or nil at the chain end.
func (r *MilestoneRepository) NextMilestone(ctx context.Context, deliveryID, sortOrder int) (*model.DeliveryMilestone, error) {
	m, err := scanMilestone(r.db.QueryRow(ctx, selectMilestoneColumns+`
        WHERE m.delivery_id = $1 AND m.sort_order > $2
        ORDER BY m.sort_order ASC
        LIMIT 1
    `, deliveryID, sortOrder))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertChain inserts a full milestone chain in one transaction, so a
// delivery never ends up with a partial chain.
func (r *MilestoneRepository) InsertChain(ctx context.Context, milestones []model.DeliveryMilestone) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin chain transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO delivery_milestones
            (delivery_id, template_id, template_name, sort_order, target_date, status, checklist_state)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for _, m := range milestones {
		if _, err := tx.Exec(ctx, query,
			m.DeliveryID,
			m.TemplateID,
			m.TemplateName,
			m.SortOrder,
			m.TargetDate,
			m.Status,
			m.ChecklistState,
		); err != nil {
			r.logger.Error("Failed to insert milestone",
				zap.Int("delivery_id", m.DeliveryID),
				zap.String("template", m.TemplateName),
				zap.Error(err),
			)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *MilestoneRepository) DeleteChain(ctx context.Context, deliveryID int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM delivery_milestones WHERE delivery_id = $1`, deliveryID)
	if err != nil {
		r.logger.Error("Failed to delete milestone chain",
			zap.Int("delivery_id", deliveryID),
			zap.Error(err),
		)
	}
	return err
}

// MarkTaskCreated sets the task latch. The latch is monotonic: there
// is deliberately no way to clear it here.
func (r *MilestoneRepository) MarkTaskCreated(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `
        UPDATE delivery_milestones
        SET workflow_task_created = TRUE, updated_at = now()
        WHERE id = $1
    `, id)
	return err
}

// MarkTicketsCreated sets the ticket latch and records the created
// ticket keys.
func (r *MilestoneRepository) MarkTicketsCreated(ctx context.Context, id int, keys []string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE delivery_milestones
        SET workflow_tickets_created = TRUE, workflow_ticket_keys = $2, updated_at = now()
        WHERE id = $1
    `, id, keys)
	return err
}

// UpdateStatus sets status and actual date together, keeping the
// actual-date invariant a single-row update.
func (r *MilestoneRepository) UpdateStatus(ctx context.Context, id int, status string, actualDate *time.Time) error {
	_, err := r.db.Exec(ctx, `
        UPDATE delivery_milestones
        SET status = $2, actual_date = $3, updated_at = now()
        WHERE id = $1
    `, id, status, actualDate)
	if err != nil {
		r.logger.Error("Failed to update milestone status",
			zap.Int("id", id),
			zap.String("status", status),
			zap.Error(err),
		)
	}
	return err
}

func (r *MilestoneRepository) UpdateChecklist(ctx context.Context, id int, state []bool) error {
	_, err := r.db.Exec(ctx, `
        UPDATE delivery_milestones
        SET checklist_state = $2, updated_at = now()
        WHERE id = $1
    `, id, state)
	return err
}
