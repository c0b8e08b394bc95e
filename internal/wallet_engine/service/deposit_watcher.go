package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
)

// DepositCheckpointName is the poll_checkpoints row the watcher advances
const DepositCheckpointName = "deposit-watcher"

// maxCounterAttempts bounds the re-read-and-swap loop on an address's
// confirmed counter inside one promotion.
const maxCounterAttempts = 5

// errAlreadyPromoted aborts a promotion transaction whose credited flag was
// already set by someone else.
var errAlreadyPromoted = errors.New("deposit already promoted")

// errCounterContended means the confirmed counter kept moving under every
// attempt. The deposit stays uncredited and the poll fails, so the checkpoint
// does not move past it.
var errCounterContended = errors.New("address confirmed counter contended")

// CreditEvent reports one deposit credited by a poll
type CreditEvent struct {
	DepositID int64
	WalletID  uuid.UUID
	Address   string
	TxID      string
	Amount    decimal.Decimal
	EntryID   uuid.UUID
}

// DepositWatcher turns node receive events into deposits and, once deep
// enough, into DEPOSIT ledger entries. Every step is guarded so that
// overlapping polls from several workers credit each deposit once.
type DepositWatcher struct {
	db          persistence.TxRunner
	ledger      *BalanceLedger
	addresses   address.Repository
	deposits    deposit.Repository
	checkpoints deposit.CheckpointRepository
	node        node.Client
	minConf     int
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewDepositWatcher(
	logger *slog.Logger,
	db persistence.TxRunner,
	bl *BalanceLedger,
	repos Repositories,
	nodeClient node.Client,
	cfg config.DepositsConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *DepositWatcher {
	return &DepositWatcher{
		db:          db,
		ledger:      bl,
		addresses:   repos.Addresses,
		deposits:    repos.Deposits,
		checkpoints: repos.Checkpoints,
		node:        nodeClient,
		minConf:     cfg.MinConfirmations,
		clock:       clk,
		metrics:     m,
		logger:      logger,
	}
}

// Run polls from the stored checkpoint and advances it only when the whole
// window was processed.
func (w *DepositWatcher) Run(ctx context.Context) ([]CreditEvent, error) {
	checkpoint, err := w.checkpoints.Get(ctx, DepositCheckpointName)
	if err != nil {
		return nil, err
	}

	credited, next, err := w.PollDeposits(ctx, checkpoint)
	if err != nil {
		return credited, err
	}

	if next != checkpoint {
		if err := w.checkpoints.Save(ctx, DepositCheckpointName, next); err != nil {
			return credited, err
		}
	}
	return credited, nil
}

// PollDeposits processes every receive event since checkpoint and returns the
// deposits it credited together with the next checkpoint. A node failure
// changes nothing.
func (w *DepositWatcher) PollDeposits(ctx context.Context, checkpoint string) ([]CreditEvent, string, error) {
	events, next, err := w.node.ListReceivedSince(ctx, checkpoint, w.minConf)
	if err != nil {
		w.logger.Warn("Failed to list received transactions", "checkpoint", checkpoint, "error", err)
		return nil, checkpoint, err
	}

	var credited []CreditEvent
	for _, ev := range events {
		credit, err := w.processEvent(ctx, ev)
		if err != nil {
			w.logger.Error("Failed to process receive event",
				"address", ev.Address,
				"txid", ev.TxID,
				"amount", ev.Amount.String(),
				"error", err,
			)
			return credited, checkpoint, err
		}
		if credit != nil {
			credited = append(credited, *credit)
		}
	}
	return credited, next, nil
}

func (w *DepositWatcher) processEvent(ctx context.Context, ev node.ReceiveEvent) (*CreditEvent, error) {
	addr, err := w.addresses.GetByAddress(ctx, ev.Address)
	if err != nil {
		var notFound address.ErrAddressNotFound
		if errors.As(err, &notFound) {
			w.logger.Warn("Receive on unknown address, skipping", "address", ev.Address, "txid", ev.TxID)
			return nil, nil
		}
		return nil, err
	}

	if addr.WalletID == nil {
		return nil, w.markUnowned(ctx, addr, ev)
	}

	dep, err := w.deposits.Find(ctx, addr.ID, ev.TxID, ev.Amount)
	if err != nil {
		return nil, err
	}

	if dep == nil {
		if dep, err = w.observe(ctx, addr, ev); err != nil {
			return nil, err
		}
		if dep == nil {
			// a concurrent poll recorded it first and may not have credited it
			if dep, err = w.deposits.Find(ctx, addr.ID, ev.TxID, ev.Amount); err != nil || dep == nil {
				return nil, err
			}
		}
	}

	if !dep.Credited && dep.Confirmations != ev.Confirmations {
		if err := w.deposits.UpdateConfirmations(ctx, dep.ID, ev.Confirmations); err != nil {
			return nil, err
		}
		dep.Confirmations = ev.Confirmations
	}

	if !dep.ReadyForCredit(int64(w.minConf)) {
		return nil, nil
	}
	return w.promote(ctx, addr, dep)
}

// markUnowned takes a pool address that received funds before anyone claimed
// it out of the free pool. Its funds are not credited to any wallet.
func (w *DepositWatcher) markUnowned(ctx context.Context, addr *address.Address, ev node.ReceiveEvent) error {
	w.logger.Warn("Receive on unowned pool address, skipping", "address", ev.Address, "txid", ev.TxID)
	if !addr.ReceivedUnconfirmed.IsZero() {
		return nil
	}
	return w.addresses.AddUnconfirmed(ctx, addr.ID, ev.Amount)
}

// observe records a new deposit and raises the address's unconfirmed total.
// It returns nil, nil if a concurrent poll recorded it first.
func (w *DepositWatcher) observe(ctx context.Context, addr *address.Address, ev node.ReceiveEvent) (*deposit.Transaction, error) {
	dep := &deposit.Transaction{
		AddressID:     addr.ID,
		WalletID:      *addr.WalletID,
		ExternalTxID:  ev.TxID,
		Amount:        ev.Amount,
		Confirmations: ev.Confirmations,
	}

	var inserted bool
	err := w.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = w.deposits.WithTx(tx).Insert(ctx, dep)
		if err != nil || !inserted {
			return err
		}

		if err := w.addresses.WithTx(tx).AddUnconfirmed(ctx, addr.ID, ev.Amount); err != nil {
			return err
		}

		return w.ledger.enqueue(ctx, tx, &outbox.BalanceChanged{
			EventID:    eventID("deposit-"+strconv.FormatInt(dep.ID, 10), dep.WalletID, shared.BalanceViewUnconfirmed),
			WalletID:   dep.WalletID,
			View:       shared.BalanceViewUnconfirmed,
			Delta:      ev.Amount,
			DepositID:  &dep.ID,
			OccurredAt: w.clock.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}

	w.metrics.DepositsObserved.Inc()
	w.logger.Info("Deposit observed",
		"deposit_id", dep.ID,
		"wallet_id", dep.WalletID.String(),
		"txid", dep.ExternalTxID,
		"amount", dep.Amount.String(),
		"confirmations", dep.Confirmations,
	)
	return dep, nil
}

// promote credits a confirmed deposit. The credited flag is the only
// exactly-once guard; setting it first also locks the deposit row against
// other promoters. The address counter is shared with every other deposit to
// the same address, so a swap that misses is retried on a fresh read.
func (w *DepositWatcher) promote(ctx context.Context, addr *address.Address, dep *deposit.Transaction) (*CreditEvent, error) {
	entry := ledger.NewDepositEntry(dep.WalletID, dep.Amount, dep.ID, dep.ExternalTxID)

	err := w.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		marked, err := w.deposits.WithTx(tx).MarkCredited(ctx, dep.ID, entry.ID)
		if err != nil {
			return err
		}
		if !marked {
			return errAlreadyPromoted
		}

		if err := w.advanceConfirmed(ctx, tx, addr.Address, dep.Amount); err != nil {
			return err
		}

		return w.ledger.RecordEntry(ctx, tx, entry, 0)
	})
	if err != nil {
		if errors.Is(err, errAlreadyPromoted) {
			w.logger.Debug("Deposit promoted concurrently, skipping", "deposit_id", dep.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to credit deposit %d: %w", dep.ID, err)
	}

	w.metrics.DepositsCredited.Inc()
	w.logger.Info("Deposit credited",
		"deposit_id", dep.ID,
		"wallet_id", dep.WalletID.String(),
		"entry_id", entry.ID.String(),
		"amount", dep.Amount.String(),
	)

	return &CreditEvent{
		DepositID: dep.ID,
		WalletID:  dep.WalletID,
		Address:   addr.Address,
		TxID:      dep.ExternalTxID,
		Amount:    dep.Amount,
		EntryID:   entry.ID,
	}, nil
}

func (w *DepositWatcher) advanceConfirmed(ctx context.Context, tx pgx.Tx, addr string, amount decimal.Decimal) error {
	addresses := w.addresses.WithTx(tx)
	for attempt := 1; attempt <= maxCounterAttempts; attempt++ {
		current, err := addresses.GetByAddress(ctx, addr)
		if err != nil {
			return err
		}
		advanced, err := addresses.AdvanceConfirmed(ctx, current.ID, current.ReceivedConfirmed, amount)
		if err != nil {
			return err
		}
		if advanced {
			return nil
		}
		w.logger.Debug("Confirmed counter moved, re-reading", "address", addr, "attempt", attempt)
	}
	return fmt.Errorf("%w: %s", errCounterContended, addr)
}
