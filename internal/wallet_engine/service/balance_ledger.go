package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
)

// BalanceLedger owns the append-only entry log and the cached balance of
// every wallet. All balance changes go through RecordEntry.
type BalanceLedger struct {
	db        persistence.TxRunner
	wallets   wallet.Repository
	entries   ledger.Repository
	addresses address.Repository
	outbox    outbox.Repository
	clock     clock.Clock
	logger    *slog.Logger
}

func NewBalanceLedger(logger *slog.Logger, db persistence.TxRunner, repos Repositories, clk clock.Clock) *BalanceLedger {
	return &BalanceLedger{
		db:        db,
		wallets:   repos.Wallets,
		entries:   repos.Entries,
		addresses: repos.Addresses,
		outbox:    repos.Outbox,
		clock:     clk,
		logger:    logger,
	}
}

// CreateWallet creates an empty wallet. Creating an id that already exists
// returns the existing wallet, so command replays are harmless.
func (l *BalanceLedger) CreateWallet(ctx context.Context, id uuid.UUID, label string) (*wallet.Wallet, error) {
	w := wallet.NewWallet(id, label, l.clock.Now().UTC())

	err := l.wallets.Create(ctx, w)
	if err != nil {
		var dup wallet.ErrDuplicateWallet
		if errors.As(err, &dup) {
			return l.wallets.GetByID(ctx, w.ID)
		}
		return nil, err
	}

	l.logger.Info("Wallet created", "wallet_id", w.ID.String(), "label", label)
	return w, nil
}

// Balance recomputes the wallet balance from the entry log. The unconfirmed
// view adds funds seen on the wallet's addresses but not yet credited.
func (l *BalanceLedger) Balance(ctx context.Context, walletID uuid.UUID, confirmedOnly bool) (decimal.Decimal, error) {
	if _, err := l.wallets.GetByID(ctx, walletID); err != nil {
		return decimal.Zero, err
	}

	credits, debits, err := l.entries.SumForWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := credits.Sub(debits)
	if confirmedOnly {
		return balance, nil
	}

	pending, err := l.addresses.PendingForWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Add(pending), nil
}

// CachedBalance returns the wallet row with its cached balance and version
func (l *BalanceLedger) CachedBalance(ctx context.Context, walletID uuid.UUID) (*wallet.Wallet, error) {
	return l.wallets.GetByID(ctx, walletID)
}

// Entries lists a wallet's entries, newest first, with the total count
func (l *BalanceLedger) Entries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error) {
	if _, err := l.wallets.GetByID(ctx, walletID); err != nil {
		return nil, 0, err
	}

	entries, err := l.entries.ListByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := l.entries.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// RecordEntry applies entry inside tx: conditional debit of the sender at
// debitVersion, insert, credit of the receiver, and the balance events. Any
// error leaves the caller to roll tx back.
func (l *BalanceLedger) RecordEntry(ctx context.Context, tx pgx.Tx, entry *ledger.Entry, debitVersion int64) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	wallets := l.wallets.WithTx(tx)

	if entry.FromWalletID != nil {
		if err := wallets.DebitCAS(ctx, *entry.FromWalletID, entry.Amount, debitVersion); err != nil {
			return err
		}
	}

	if err := l.entries.WithTx(tx).Create(ctx, entry); err != nil {
		return err
	}

	if entry.ToWalletID != nil {
		if err := wallets.Credit(ctx, *entry.ToWalletID, entry.Amount); err != nil {
			return err
		}
	}

	return l.enqueueEntryEvents(ctx, tx, entry)
}

// enqueueEntryEvents writes one event per affected wallet and view. A
// deposit promotion leaves the unconfirmed view unchanged, so it only moves
// the confirmed one.
func (l *BalanceLedger) enqueueEntryEvents(ctx context.Context, tx pgx.Tx, entry *ledger.Entry) error {
	views := []shared.BalanceView{shared.BalanceViewConfirmed, shared.BalanceViewUnconfirmed}
	if entry.Kind == shared.EntryKindDeposit {
		views = views[:1]
	}

	for _, walletID := range []*uuid.UUID{entry.FromWalletID, entry.ToWalletID} {
		if walletID == nil {
			continue
		}
		delta := entry.Delta(*walletID)
		for _, view := range views {
			event := &outbox.BalanceChanged{
				EventID:    eventID(entry.ID.String(), *walletID, view),
				WalletID:   *walletID,
				View:       view,
				Delta:      delta,
				EntryID:    &entry.ID,
				DepositID:  entry.DepositID,
				OccurredAt: l.clock.Now().UTC(),
			}
			if err := l.enqueue(ctx, tx, event); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *BalanceLedger) enqueue(ctx context.Context, tx pgx.Tx, event *outbox.BalanceChanged) error {
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}
	return l.outbox.WithTx(tx).Create(ctx, msg)
}

// eventID derives a stable id from the change it describes, so re-emitting
// the same change yields the same id for consumers to deduplicate on.
func eventID(source string, walletID uuid.UUID, view shared.BalanceView) uuid.UUID {
	return uuid.NewSHA1(walletID, []byte(source+"/"+string(view)))
}
