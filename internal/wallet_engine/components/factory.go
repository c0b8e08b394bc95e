package components

import (
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/custody-ledger/internal/wallet_engine/service"
	"github.com/lightningnetwork/lnd/clock"
)

// Engine holds every ledger component of one worker process
type Engine struct {
	Ledger    *service.BalanceLedger
	Allocator *service.AddressAllocator
	Watcher   *service.DepositWatcher
	Transfers *service.TransferEngine
	Payouts   *service.PayoutService
	Batcher   *service.PayoutBatcher
	Checker   *service.ReconciliationChecker

	// Commands applies Kafka commands, on the worker pool when it could be
	// created.
	Commands service.CommandProcessor
}

// CreateEngine wires the ledger components and the command pipeline
func CreateEngine(
	db persistence.TxRunner,
	repos service.Repositories,
	nodeClient node.Client,
	locker lock.Locker,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
	cfg *config.Config,
	clk clock.Clock,
	m *metrics.Metrics,
) *Engine {
	e := &Engine{}
	e.Ledger = service.NewBalanceLedger(logger.With("component", "balance_ledger"), db, repos, clk)
	e.Allocator = service.NewAddressAllocator(logger.With("component", "address_allocator"), repos, nodeClient, locker, cfg.Deposits, clk, m)
	e.Watcher = service.NewDepositWatcher(logger.With("component", "deposit_watcher"), db, e.Ledger, repos, nodeClient, cfg.Deposits, clk, m)
	e.Transfers = service.NewTransferEngine(logger.With("component", "transfer_engine"), db, e.Ledger, repos.Wallets, m)
	e.Payouts = service.NewPayoutService(logger.With("component", "payout_service"), db, e.Ledger, repos, nodeClient, cfg.Payouts, clk, m)
	e.Batcher = service.NewPayoutBatcher(logger.With("component", "payout_batcher"), db, e.Ledger, repos, nodeClient, locker, cfg.Payouts, clk, m)
	e.Checker = service.NewReconciliationChecker(logger.With("component", "reconciliation"), db, repos, nodeClient, cfg.Reconciliation, clk, m)

	base := service.NewCommandService(
		logger.With("component", "commands"),
		e.Ledger,
		e.Allocator,
		e.Transfers,
		e.Payouts,
		NewCommandValidator(repos.Entries, logger),
		NewRejectionRecorder(dlq, logger),
		cfg.Commands.MaxConflictRetries,
		clk,
		m,
	)
	e.Commands = base

	pool, err := service.NewWorkerPoolCommandProcessor(base, cfg.WorkerPool.Size, logger.With("component", "worker_pool"))
	if err != nil {
		logger.Error("Failed to create worker pool, falling back to direct processing", "error", err)
		return e
	}

	logger.Info("Created worker pool command processor", "pool_size", cfg.WorkerPool.Size)
	e.Commands = pool
	return e
}

// Shutdown releases the worker pool, if any
func (e *Engine) Shutdown() {
	if pool, ok := e.Commands.(*service.WorkerPoolCommandProcessor); ok {
		pool.Shutdown()
	}
}
