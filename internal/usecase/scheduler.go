package usecase

import (
	"context"
	"log/slog"

	"NewsScout/internal/ports"
)

// pendingBatchSize bounds how many runs one trigger tick picks up.
const pendingBatchSize = 10

// Scheduler polls the store for pending runs and feeds them to the
// pipeline. Deployments triggered externally never start it.
type Scheduler struct {
	driver   ports.Scheduler
	store    ports.RunStore
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler wires the trigger driver with the pipeline use case.
func NewScheduler(driver ports.Scheduler, store ports.RunStore, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, store: store, pipeline: pipeline, logger: logger}
}

// Start registers the pending-run sweep with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	return s.driver.Start(ctx, func(ctx context.Context) {
		runIDs, err := s.store.PendingRuns(ctx, pendingBatchSize)
		if err != nil {
			s.logger.Error("pending run sweep failed", "error", err)
			return
		}

		for _, runID := range runIDs {
			if err := s.pipeline.Execute(ctx, runID); err != nil {
				s.logger.Error("run execution failed", "run", runID, "error", err)
			}
		}
	})
}

// Stop tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
