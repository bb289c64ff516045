// Package scheduler drives the periodic passes. The engines expose
// synchronous entry points only; this is the external timer that
// invokes them at a bounded interval.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taskhub/internal/sync"
	"taskhub/internal/workflow"
	"taskhub/pkg/config"
	"taskhub/pkg/trace"
)

type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the periodic sync and workflow evaluation jobs and
// starts the cron loop.
func (s *Scheduler) Start(cfg config.SchedulerConfig, syncEngine *sync.Engine, workflowEngine *workflow.Engine) error {
	if _, err := s.cron.AddFunc(cfg.SyncSpec, func() {
		ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())
		results := syncEngine.SyncAll(ctx)

		failed := 0
		for _, r := range results {
			if r.Err != "" {
				failed++
			}
		}
		s.logger.Info("Scheduled sync pass finished",
			zap.Int("sources", len(results)),
			zap.Int("failed", failed),
		)
	}); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	if _, err := s.cron.AddFunc(cfg.EvaluateSpec, func() {
		ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())
		stats, err := workflowEngine.EvaluateAll(ctx)
		if err != nil {
			s.logger.Error("Scheduled workflow evaluation failed", zap.Error(err))
			return
		}
		s.logger.Info("Scheduled workflow evaluation finished",
			zap.Int("tasks_created", stats.TasksCreated),
			zap.Int("tickets_created", stats.TicketsCreated),
		)
	}); err != nil {
		return fmt.Errorf("failed to schedule workflow job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("sync_spec", cfg.SyncSpec),
		zap.String("evaluate_spec", cfg.EvaluateSpec),
	)
	return nil
}

// Stop stops the cron loop, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
