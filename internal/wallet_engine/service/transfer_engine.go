package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransferRequest moves Amount from one wallet to another. A non-nil ID makes
// the transfer idempotent: it becomes the entry id.
type TransferRequest struct {
	ID          uuid.UUID
	From        uuid.UUID
	To          uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// TransferEngine moves value between wallets without touching the node. A
// lost version race is reported, never retried here.
type TransferEngine struct {
	db      persistence.TxRunner
	ledger  *BalanceLedger
	wallets wallet.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTransferEngine(logger *slog.Logger, db persistence.TxRunner, bl *BalanceLedger, wallets wallet.Repository, m *metrics.Metrics) *TransferEngine {
	return &TransferEngine{
		db:      db,
		ledger:  bl,
		wallets: wallets,
		metrics: m,
		logger:  logger,
	}
}

func (e *TransferEngine) Transfer(ctx context.Context, req TransferRequest) (*ledger.Entry, error) {
	entry := ledger.NewTransferEntry(req.ID, req.From, req.To, req.Amount, req.Description)
	if err := entry.Validate(); err != nil {
		e.observe("invalid")
		return nil, err
	}

	sender, err := e.wallets.GetByID(ctx, req.From)
	if err != nil {
		e.observe("invalid")
		return nil, err
	}
	if _, err := e.wallets.GetByID(ctx, req.To); err != nil {
		e.observe("invalid")
		return nil, err
	}

	if !sender.CanDebit(req.Amount) {
		e.observe("insufficient_funds")
		return nil, fmt.Errorf("%w: wallet %s holds %s, transfer needs %s",
			shared.ErrInsufficientFunds, sender.ID, sender.Balance.String(), req.Amount.String())
	}

	err = e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		return e.ledger.RecordEntry(ctx, tx, entry, sender.Version)
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict{}) {
			e.observe("conflict")
			e.metrics.ConcurrencyConflicts.Inc()
			e.logger.Debug("Transfer lost version race", "from", req.From.String(), "version", sender.Version)
		} else {
			e.observe("error")
		}
		return nil, err
	}

	e.observe("ok")
	e.logger.Info("Transfer recorded",
		"entry_id", entry.ID.String(),
		"from", req.From.String(),
		"to", req.To.String(),
		"amount", req.Amount.String(),
	)
	return entry, nil
}

func (e *TransferEngine) observe(result string) {
	e.metrics.Transfers.WithLabelValues(result).Inc()
}
