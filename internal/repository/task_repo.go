package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskhub/internal/model"
)

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

const upsertTaskQuery = `
        INSERT INTO tasks (source, source_id, title, description, status, priority,
                           due_date, sla_breach_at, category, source_url, raw_data,
                           is_pinned, snoozed_until, transient)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (source, source_id) DO UPDATE SET
            title         = EXCLUDED.title,
            description   = EXCLUDED.description,
            status        = EXCLUDED.status,
            priority      = EXCLUDED.priority,
            due_date      = EXCLUDED.due_date,
            sla_breach_at = EXCLUDED.sla_breach_at,
            category      = EXCLUDED.category,
            source_url    = EXCLUDED.source_url,
            raw_data      = EXCLUDED.raw_data,
            transient     = EXCLUDED.transient,
            updated_at    = now()
    `

// ApplySyncPass upserts the fresh tasks and, when purge is true,
// deletes every record of the source absent from the fresh identity
// set. Runs in one transaction so the purge always sees the full
// fresh set and a crash cannot half-apply the pass.
func (r *TaskRepository) ApplySyncPass(ctx context.Context, src string, fresh []model.CanonicalTask, purge bool) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin sync transaction", zap.Error(err))
		return 0, err
	}
	defer tx.Rollback(ctx)

	freshIDs := make([]string, 0, len(fresh))
	for _, t := range fresh {
		if _, err := tx.Exec(ctx, upsertTaskQuery,
			src,
			t.SourceID,
			t.Title,
			t.Description,
			t.Status,
			t.Priority,
			t.DueDate,
			t.SLABreachAt,
			t.Category,
			t.SourceURL,
			t.RawData,
			t.IsPinned,
			t.SnoozedUntil,
			t.Transient,
		); err != nil {
			r.logger.Error("Failed to upsert task",
				zap.String("source", src),
				zap.String("source_id", t.SourceID),
				zap.Error(err),
			)
			return 0, err
		}
		freshIDs = append(freshIDs, t.SourceID)
	}

	removed := 0
	if purge {
		ct, err := tx.Exec(ctx,
			`DELETE FROM tasks WHERE source = $1 AND NOT (source_id = ANY($2))`,
			src, freshIDs,
		)
		if err != nil {
			r.logger.Error("Failed to purge stale tasks",
				zap.String("source", src),
				zap.Error(err),
			)
			return 0, err
		}
		removed = int(ct.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit sync transaction", zap.Error(err))
		return 0, err
	}

	return removed, nil
}

// UpsertTask writes a single task keyed by (source, source_id).
func (r *TaskRepository) UpsertTask(ctx context.Context, t model.CanonicalTask) error {
	_, err := r.db.Exec(ctx, upsertTaskQuery,
		t.Source,
		t.SourceID,
		t.Title,
		t.Description,
		t.Status,
		t.Priority,
		t.DueDate,
		t.SLABreachAt,
		t.Category,
		t.SourceURL,
		t.RawData,
		t.IsPinned,
		t.SnoozedUntil,
		t.Transient,
	)
	if err != nil {
		r.logger.Error("Failed to upsert task",
			zap.String("source", t.Source),
			zap.String("source_id", t.SourceID),
			zap.Error(err),
		)
	}
	return err
}

// DeleteTasks removes the named records of one source.
func (r *TaskRepository) DeleteTasks(ctx context.Context, src string, sourceIDs []string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM tasks WHERE source = $1 AND source_id = ANY($2)`,
		src, sourceIDs,
	)
	if err != nil {
		r.logger.Error("Failed to delete tasks",
			zap.String("source", src),
			zap.Int("count", len(sourceIDs)),
			zap.Error(err),
		)
	}
	return err
}

const selectTaskColumns = `
        SELECT source, source_id, title, description, status, priority,
               due_date, sla_breach_at, category, source_url, raw_data,
               is_pinned, snoozed_until, transient, created_at, updated_at
        FROM tasks
    `

// GetByKey loads one task by its identity tuple.
func (r *TaskRepository) GetByKey(ctx context.Context, src, sourceID string) (model.CanonicalTask, error) {
	var t model.CanonicalTask
	err := r.db.QueryRow(ctx, selectTaskColumns+` WHERE source = $1 AND source_id = $2`, src, sourceID).Scan(
		&t.Source,
		&t.SourceID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.DueDate,
		&t.SLABreachAt,
		&t.Category,
		&t.SourceURL,
		&t.RawData,
		&t.IsPinned,
		&t.SnoozedUntil,
		&t.Transient,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return model.CanonicalTask{}, err
	}
	return t, nil
}

// ListBySource returns every stored task of one source.
func (r *TaskRepository) ListBySource(ctx context.Context, src string) ([]model.CanonicalTask, error) {
	rows, err := r.db.Query(ctx, selectTaskColumns+` WHERE source = $1 ORDER BY source_id`, src)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.String("source", src), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var tasks []model.CanonicalTask
	for rows.Next() {
		var t model.CanonicalTask
		if err := rows.Scan(
			&t.Source,
			&t.SourceID,
			&t.Title,
			&t.Description,
			&t.Status,
			&t.Priority,
			&t.DueDate,
			&t.SLABreachAt,
			&t.Category,
			&t.SourceURL,
			&t.RawData,
			&t.IsPinned,
			&t.SnoozedUntil,
			&t.Transient,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to scan task", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}
