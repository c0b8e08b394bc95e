package service

import (
	"context"
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolCommandProcessor runs commands on a bounded goroutine pool so a
// burst of deliveries cannot exhaust the database pool.
type WorkerPoolCommandProcessor struct {
	base   CommandProcessor
	pool   *ants.Pool
	logger *slog.Logger
}

func NewWorkerPoolCommandProcessor(base CommandProcessor, size int, logger *slog.Logger) (*WorkerPoolCommandProcessor, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolCommandProcessor{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// ProcessCommand submits cmd to the pool and waits for its outcome
func (s *WorkerPoolCommandProcessor) ProcessCommand(ctx context.Context, cmd *shared.Command) error {
	resultChan := make(chan error, 1)
	cmdCopy := *cmd

	err := s.pool.Submit(func() {
		resultChan <- s.base.ProcessCommand(ctx, &cmdCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit command to worker pool",
			"command_id", cmd.CommandID.String(),
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WorkerPoolCommandProcessor) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolCommandProcessor) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolCommandProcessor) Capacity() int {
	return s.pool.Cap()
}
