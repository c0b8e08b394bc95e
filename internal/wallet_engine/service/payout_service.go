package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
)

// PayoutRequest asks for Amount to be sent from a wallet to an external
// address. A non-nil ID is used as the payout id and makes the request
// idempotent.
type PayoutRequest struct {
	ID        uuid.UUID
	From      uuid.UUID
	ToAddress string
	Amount    decimal.Decimal
	ExpiresAt time.Time
}

// PayoutService reserves funds for withdrawals. The send itself happens
// later in a PayoutBatcher run.
type PayoutService struct {
	db            persistence.TxRunner
	ledger        *BalanceLedger
	wallets       wallet.Repository
	payouts       payout.Repository
	node          node.Client
	defaultExpiry time.Duration
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewPayoutService(
	logger *slog.Logger,
	db persistence.TxRunner,
	bl *BalanceLedger,
	repos Repositories,
	nodeClient node.Client,
	cfg config.PayoutsConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *PayoutService {
	return &PayoutService{
		db:            db,
		ledger:        bl,
		wallets:       repos.Wallets,
		payouts:       repos.Payouts,
		node:          nodeClient,
		defaultExpiry: cfg.DefaultExpiry,
		clock:         clk,
		metrics:       m,
		logger:        logger,
	}
}

// RequestPayout debits the wallet and records a pending obligation in one
// transaction. The funds leave the wallet immediately.
func (s *PayoutService) RequestPayout(ctx context.Context, req PayoutRequest) (*payout.Payout, error) {
	if err := shared.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := s.node.ValidateAddress(req.ToAddress); err != nil {
		return nil, err
	}

	sender, err := s.wallets.GetByID(ctx, req.From)
	if err != nil {
		return nil, err
	}
	if !sender.CanDebit(req.Amount) {
		return nil, fmt.Errorf("%w: wallet %s holds %s, payout needs %s",
			shared.ErrInsufficientFunds, sender.ID, sender.Balance.String(), req.Amount.String())
	}

	now := s.clock.Now().UTC()
	p := &payout.Payout{
		ID:        req.ID,
		WalletID:  req.From,
		ToAddress: req.ToAddress,
		Amount:    req.Amount,
		Status:    shared.PayoutStatusPending,
		FeeShare:  decimal.Zero,
		CreatedAt: now,
		ExpiresAt: req.ExpiresAt.UTC(),
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if req.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(s.defaultExpiry)
	}

	entry := ledger.NewPayoutEntry(p.ID, req.From, req.ToAddress, req.Amount, p.ID)
	p.LedgerEntryID = entry.ID

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.ledger.RecordEntry(ctx, tx, entry, sender.Version); err != nil {
			return err
		}
		return s.payouts.WithTx(tx).Create(ctx, p)
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict{}) {
			s.metrics.ConcurrencyConflicts.Inc()
		}
		return nil, err
	}

	s.metrics.PayoutsRequested.Inc()
	s.logger.Info("Payout requested",
		"payout_id", p.ID.String(),
		"wallet_id", p.WalletID.String(),
		"to_address", p.ToAddress,
		"amount", p.Amount.String(),
		"expires_at", p.ExpiresAt,
	)
	return p, nil
}
