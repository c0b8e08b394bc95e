package service

import (
	"context"
	"time"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletService answers wallet reads
type WalletService interface {
	// GetWallet returns the wallet row with its cached balance. Returns
	// wallet.ErrWalletNotFound if the wallet doesn't exist.
	GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)

	// GetBalance recomputes the balance from the entry log
	GetBalance(ctx context.Context, id uuid.UUID, confirmedOnly bool) (decimal.Decimal, error)

	// ListEntries returns one page of entries, newest first, and the total count
	ListEntries(ctx context.Context, id uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error)

	// ListAddresses returns the receiving addresses the wallet has claimed,
	// oldest first. Returns wallet.ErrWalletNotFound for an unknown wallet.
	ListAddresses(ctx context.Context, id uuid.UUID) ([]*address.Address, error)
}

// PayoutService answers reads of withdrawal obligations
type PayoutService interface {
	// GetPayout returns payout.ErrPayoutNotFound for an unknown id
	GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
}

// ReportService answers reconciliation report reads
type ReportService interface {
	// Latest returns nil when no run has finished yet
	Latest(ctx context.Context) (*reconciliation.Report, error)
	List(ctx context.Context, from, to time.Time, page, perPage int) ([]*reconciliation.Report, error)
}

// CommandService hands wallet commands to the ledger workers
type CommandService interface {
	// Submit publishes a command of typ. A nil commandID gets a fresh one.
	Submit(ctx context.Context, typ shared.CommandType, commandID uuid.UUID, payload any) (*shared.Command, error)
}
