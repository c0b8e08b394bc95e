package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
)

var errNothingClaimed = errors.New("no payouts claimed")

// BatchResult describes what one RunBatch did with the node
type BatchResult struct {
	BatchID      uuid.UUID
	Status       shared.BatchStatus
	PayoutIDs    []uuid.UUID
	ExternalTxID string
	Fee          decimal.Decimal
	FeePosted    bool
	FeesSettled  int
}

// PayoutBatcher sends pending payouts in multi-output transactions. The
// batch lock keeps runners apart; the conditional claim makes sure a payout
// joins at most one send even if two runners overlap anyway.
type PayoutBatcher struct {
	db        persistence.TxRunner
	ledger    *BalanceLedger
	wallets   wallet.Repository
	payouts   payout.Repository
	node      node.Client
	locker    lock.Locker
	cfg       config.PayoutsConfig
	feeWallet uuid.UUID
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPayoutBatcher(
	logger *slog.Logger,
	db persistence.TxRunner,
	bl *BalanceLedger,
	repos Repositories,
	nodeClient node.Client,
	locker lock.Locker,
	cfg config.PayoutsConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *PayoutBatcher {
	return &PayoutBatcher{
		db:        db,
		ledger:    bl,
		wallets:   repos.Wallets,
		payouts:   repos.Payouts,
		node:      nodeClient,
		locker:    locker,
		cfg:       cfg,
		feeWallet: cfg.FeeWallet(),
		clock:     clk,
		metrics:   m,
		logger:    logger,
	}
}

// RunBatch claims the payouts that are due and sends them in one node
// transaction. It returns nil, nil when another runner holds the lock or
// nothing is due. A failed send is returned together with the result
// describing how the batch was left.
func (b *PayoutBatcher) RunBatch(ctx context.Context) (*BatchResult, error) {
	acquired, err := b.locker.TryAcquire(ctx, lock.KeyPayoutBatch, b.cfg.LockLease)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payout batch lock: %w", err)
	}
	if !acquired {
		b.logger.Debug("Payout batch lock held elsewhere, skipping run")
		return nil, nil
	}
	defer func() {
		if err := b.locker.Release(context.WithoutCancel(ctx), lock.KeyPayoutBatch); err != nil {
			b.logger.Warn("Failed to release payout batch lock", "error", err)
		}
	}()

	settled := b.settleFees(ctx)

	result, err := b.runLocked(ctx)
	if result != nil {
		result.FeesSettled = settled
	}
	return result, err
}

func (b *PayoutBatcher) runLocked(ctx context.Context) (*BatchResult, error) {
	pending, err := b.payouts.ListPending(ctx, b.cfg.MaxBatchSize)
	if err != nil {
		return nil, err
	}
	total, err := b.payouts.CountPending(ctx)
	if err != nil {
		return nil, err
	}

	now := b.clock.Now().UTC()
	selected := payout.SelectForBatch(pending, total, b.cfg.BatchThreshold, now)
	if len(selected) == 0 {
		return nil, nil
	}

	batch := &payout.Batch{
		ID:        uuid.New(),
		Status:    shared.BatchStatusClaimed,
		Fee:       decimal.Zero,
		CreatedAt: now,
	}

	members, err := b.claim(ctx, batch, selected)
	if errors.Is(err, errNothingClaimed) {
		b.logger.Info("Selected payouts were claimed by another runner", "selected", len(selected))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log := b.logger.With("batch_id", batch.ID.String())
	result := &BatchResult{BatchID: batch.ID, Fee: decimal.Zero}
	for _, p := range members {
		result.PayoutIDs = append(result.PayoutIDs, p.ID)
	}

	outputs := payout.Outputs(members)
	log.Info("Sending payout batch", "payouts", len(members), "outputs", len(outputs))

	txid, sendErr := b.node.SendMany(ctx, outputs)

	// Whatever the send did must be recorded even if the caller gave up.
	ctx = context.WithoutCancel(ctx)
	if sendErr != nil {
		return b.handleSendFailure(ctx, log, batch, result, sendErr)
	}

	if err := b.markSent(ctx, batch, txid); err != nil {
		// The coins left; only an operator can fix the records now.
		b.escalate(log, "record_send", err, "txid", txid)
		return result, fmt.Errorf("batch %s sent as %s but not recorded: %w", batch.ID, txid, err)
	}

	result.Status = shared.BatchStatusSent
	result.ExternalTxID = txid
	b.metrics.PayoutBatches.WithLabelValues("sent").Inc()
	b.metrics.PayoutsExecuted.Add(float64(len(members)))
	b.metrics.PayoutBatchSize.Observe(float64(len(members)))
	log.Info("Payout batch sent", "txid", txid, "payouts", len(members))

	if err := b.postFee(ctx, batch); err != nil {
		b.escalate(log, "fee_unposted", err, "txid", txid)
	}
	result.Fee = batch.Fee
	result.FeePosted = batch.FeePosted
	return result, nil
}

// claim records the batch and flips the selected payouts to claimed in one
// transaction. Payouts a concurrent runner got first are left out.
func (b *PayoutBatcher) claim(ctx context.Context, batch *payout.Batch, selected []*payout.Payout) ([]*payout.Payout, error) {
	ids := make([]uuid.UUID, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
	}

	var claimed []uuid.UUID
	err := b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		payouts := b.payouts.WithTx(tx)
		if err := payouts.CreateBatch(ctx, batch); err != nil {
			return err
		}

		var err error
		claimed, err = payouts.Claim(ctx, ids, batch.ID)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return errNothingClaimed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	won := make(map[uuid.UUID]struct{}, len(claimed))
	for _, id := range claimed {
		won[id] = struct{}{}
	}
	members := make([]*payout.Payout, 0, len(claimed))
	for _, p := range selected {
		if _, ok := won[p.ID]; ok {
			members = append(members, p)
		}
	}
	return members, nil
}

func (b *PayoutBatcher) handleSendFailure(ctx context.Context, log *slog.Logger, batch *payout.Batch, result *BatchResult, sendErr error) (*BatchResult, error) {
	batch.FailureReason = sendErr.Error()

	if node.IsTransient(sendErr) {
		batch.Status = shared.BatchStatusReleased
		err := b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			payouts := b.payouts.WithTx(tx)
			if _, err := payouts.Release(ctx, batch.ID); err != nil {
				return err
			}
			return payouts.UpdateBatch(ctx, batch)
		})
		if err != nil {
			b.escalate(log, "release_failed", err)
			return result, errors.Join(sendErr, err)
		}

		result.Status = shared.BatchStatusReleased
		b.metrics.PayoutBatches.WithLabelValues("released").Inc()
		log.Warn("Payout batch send failed, payouts released for the next run", "error", sendErr)
		return result, sendErr
	}

	batch.Status = shared.BatchStatusFailed
	err := b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		payouts := b.payouts.WithTx(tx)
		if err := payouts.MarkFailed(ctx, batch.ID, batch.FailureReason); err != nil {
			return err
		}
		return payouts.UpdateBatch(ctx, batch)
	})
	if err != nil {
		log.Error("Failed to mark payout batch failed", "error", err)
	} else {
		result.Status = shared.BatchStatusFailed
	}

	b.metrics.PayoutBatches.WithLabelValues("failed").Inc()
	b.escalate(log, "send_failed", sendErr, "payouts", len(result.PayoutIDs))
	return result, errors.Join(sendErr, err)
}

func (b *PayoutBatcher) markSent(ctx context.Context, batch *payout.Batch, txid string) error {
	batch.Status = shared.BatchStatusSent
	batch.ExternalTxID = txid
	now := b.clock.Now().UTC()

	return b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		payouts := b.payouts.WithTx(tx)
		if err := payouts.MarkExecuted(ctx, batch.ID, txid, now); err != nil {
			return err
		}
		return payouts.UpdateBatch(ctx, batch)
	})
}

// settleFees retries fee posting for batches an earlier run sent but could
// not charge. It returns how many it settled.
func (b *PayoutBatcher) settleFees(ctx context.Context) int {
	batches, err := b.payouts.ListUnpostedFees(ctx)
	if err != nil {
		b.logger.Warn("Failed to list unposted batch fees", "error", err)
		return 0
	}

	settled := 0
	for _, batch := range batches {
		log := b.logger.With("batch_id", batch.ID.String())
		if err := b.postFee(ctx, batch); err != nil {
			log.Warn("Batch fee still unposted", "txid", batch.ExternalTxID, "error", err)
			continue
		}
		log.Info("Settled unposted batch fee", "fee", batch.Fee.String())
		settled++
	}
	return settled
}

// postFee looks up the fee the node paid for the batch, records each
// member's share and charges the whole fee to the fee wallet.
func (b *PayoutBatcher) postFee(ctx context.Context, batch *payout.Batch) error {
	info, err := b.node.GetTransaction(ctx, batch.ExternalTxID)
	if err != nil {
		return fmt.Errorf("failed to look up fee of %s: %w", batch.ExternalTxID, err)
	}

	members, err := b.payouts.ListByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}

	weights := make([]decimal.Decimal, len(members))
	for i, p := range members {
		weights[i] = p.Amount
	}
	shares := shared.SplitProportionally(info.Fee, weights)

	batch.Fee = info.Fee
	err = b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		payouts := b.payouts.WithTx(tx)
		for i, p := range members {
			if err := payouts.SetFeeShare(ctx, p.ID, shares[i]); err != nil {
				return err
			}
		}
		return payouts.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return err
	}

	if info.Fee.IsZero() {
		batch.FeePosted = true
		return b.payouts.UpdateBatch(ctx, batch)
	}

	feeWallet, err := b.wallets.GetByID(ctx, b.feeWallet)
	if err != nil {
		return err
	}
	if !feeWallet.CanDebit(info.Fee) {
		return fmt.Errorf("%w: fee wallet holds %s, batch fee is %s",
			shared.ErrInsufficientFunds, feeWallet.Balance.String(), info.Fee.String())
	}

	entry := ledger.NewFeeEntry(b.feeWallet, info.Fee, batch.ID, batch.ExternalTxID)
	batch.FeePosted = true
	err = b.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := b.ledger.RecordEntry(ctx, tx, entry, feeWallet.Version); err != nil {
			return err
		}
		return b.payouts.WithTx(tx).UpdateBatch(ctx, batch)
	})
	if errors.Is(err, ledger.ErrDuplicateEntry{}) {
		// An earlier attempt posted the entry but lost the flag update.
		return b.payouts.UpdateBatch(ctx, batch)
	}
	if err != nil {
		batch.FeePosted = false
		return err
	}
	return nil
}

func (b *PayoutBatcher) escalate(log *slog.Logger, reason string, err error, args ...any) {
	b.metrics.Escalations.WithLabelValues(reason).Inc()
	log.Error("Payout batch needs manual intervention", append([]any{"reason", reason, "error", err}, args...)...)
}
