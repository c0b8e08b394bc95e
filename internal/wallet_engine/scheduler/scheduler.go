// Package scheduler runs the ledger's periodic jobs, each on its own ticker.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/lightningnetwork/lnd/ticker"
)

// Job is one periodic task. Run must be safe to call again after it failed.
type Job struct {
	Name   string
	Ticker ticker.Ticker
	Run    func(ctx context.Context) error
}

// Scheduler fires each job on its ticker. A job never overlaps itself: ticks
// arriving while it runs are dropped by the ticker.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches every job loop. They stop when ctx is canceled; Wait blocks
// until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	logger := s.logger.With("job", job.Name)
	job.Ticker.Resume()
	defer job.Ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Job stopping")
			return
		case <-job.Ticker.Ticks():
			start := time.Now()
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Job run failed", "error", err, "duration", time.Since(start))
				continue
			}
			logger.Debug("Job run finished", "duration", time.Since(start))
		}
	}
}

// Runners is what the ledger worker schedules
type Runners struct {
	PollDeposits    func(ctx context.Context) error
	EnsurePoolLevel func(ctx context.Context) error
	RunBatch        func(ctx context.Context) error
	Reconcile       func(ctx context.Context) error
	PurgeOutbox     func(ctx context.Context) error
}

// LedgerJobs builds the worker's job list from config intervals. A job with
// a non-positive interval is left out.
func LedgerJobs(cfg *config.Config, r Runners) []Job {
	candidates := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) error
	}{
		{"deposit_poll", cfg.Deposits.PollInterval, r.PollDeposits},
		{"address_pool", cfg.Deposits.PoolCheckInterval, r.EnsurePoolLevel},
		{"payout_batch", cfg.Payouts.BatchInterval, r.RunBatch},
		{"reconciliation", cfg.Reconciliation.Interval, r.Reconcile},
		{"outbox_purge", cfg.Outbox.PurgeInterval, r.PurgeOutbox},
	}

	var jobs []Job
	for _, c := range candidates {
		if c.interval <= 0 || c.run == nil {
			continue
		}
		jobs = append(jobs, Job{Name: c.name, Ticker: ticker.New(c.interval), Run: c.run})
	}
	return jobs
}
