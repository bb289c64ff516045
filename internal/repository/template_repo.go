package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskhub/internal/model"
)

type TemplateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTemplateRepository(db *pgxpool.Pool, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const selectTemplateColumns = `
        SELECT id, name, default_day_offset, sort_order, checklist,
               lead_days, linked_ticket_group_ids, active
        FROM milestone_templates
    `

func (r *TemplateRepository) GetTemplate(ctx context.Context, id int) (model.MilestoneTemplate, error) {
	var t model.MilestoneTemplate
	err := r.db.QueryRow(ctx, selectTemplateColumns+` WHERE id = $1`, id).Scan(
		&t.ID,
		&t.Name,
		&t.DefaultDayOffset,
		&t.SortOrder,
		&t.Checklist,
		&t.LeadDays,
		&t.LinkedTicketGroupIDs,
		&t.Active,
	)
	if err != nil {
		return model.MilestoneTemplate{}, err
	}
	return t, nil
}

// ListActiveTemplates returns the active templates in chain order.
func (r *TemplateRepository) ListActiveTemplates(ctx context.Context) ([]model.MilestoneTemplate, error) {
	rows, err := r.db.Query(ctx, selectTemplateColumns+`
        WHERE active = TRUE
        ORDER BY sort_order ASC
    `)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var templates []model.MilestoneTemplate
	for rows.Next() {
		var t model.MilestoneTemplate
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.DefaultDayOffset,
			&t.SortOrder,
			&t.Checklist,
			&t.LeadDays,
			&t.LinkedTicketGroupIDs,
			&t.Active,
		); err != nil {
			r.logger.Error("Failed to scan template", zap.Error(err))
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// OffsetFor looks up the per-delivery-type day-offset override.
func (r *TemplateRepository) OffsetFor(ctx context.Context, deliveryTypeID, templateID int) (int, bool, error) {
	var offset int
	err := r.db.QueryRow(ctx, `
        SELECT day_offset FROM milestone_offsets
        WHERE delivery_type_id = $1 AND template_id = $2
    `, deliveryTypeID, templateID).Scan(&offset)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return offset, true, nil
}
