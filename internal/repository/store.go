package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store bundles the repositories into one value satisfying the store
// interfaces the sync and workflow engines consume.
type Store struct {
	*TaskRepository
	*MilestoneRepository
	*TemplateRepository
	*DeliveryRepository
}

func NewStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		TaskRepository:      NewTaskRepository(db, logger),
		MilestoneRepository: NewMilestoneRepository(db, logger),
		TemplateRepository:  NewTemplateRepository(db, logger),
		DeliveryRepository:  NewDeliveryRepository(db, logger),
	}
}
