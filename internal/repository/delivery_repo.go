package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskhub/internal/model"
)

type DeliveryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDeliveryRepository(db *pgxpool.Pool, logger *zap.Logger) *DeliveryRepository {
	return &DeliveryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DeliveryRepository) GetDelivery(ctx context.Context, id int) (model.Delivery, error) {
	var d model.Delivery
	err := r.db.QueryRow(ctx, `
        SELECT id, type_id, label, classification, start_date, created_at
        FROM deliveries
        WHERE id = $1
    `, id).Scan(
		&d.ID,
		&d.TypeID,
		&d.Label,
		&d.Classification,
		&d.StartDate,
		&d.CreatedAt,
	)
	if err != nil {
		return model.Delivery{}, err
	}
	return d, nil
}

func (r *DeliveryRepository) Insert(ctx context.Context, d *model.Delivery) (int, error) {
	r.logger.Debug("Inserting delivery",
		zap.String("label", d.Label),
		zap.Int("type_id", d.TypeID),
	)

	var id int
	err := r.db.QueryRow(ctx, `
        INSERT INTO deliveries (type_id, label, classification, start_date)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, d.TypeID, d.Label, d.Classification, d.StartDate).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert delivery", zap.Error(err))
		return 0, err
	}
	return id, nil
}

func (r *DeliveryRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete delivery", zap.Int("id", id), zap.Error(err))
	}
	return err
}
