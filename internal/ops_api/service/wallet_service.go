package service

import (
	"context"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceReader is the read side of the balance ledger
type BalanceReader interface {
	CachedBalance(ctx context.Context, walletID uuid.UUID) (*wallet.Wallet, error)
	Balance(ctx context.Context, walletID uuid.UUID, confirmedOnly bool) (decimal.Decimal, error)
	Entries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error)
}

// AddressLister is the part of the address pool the API reads
type AddressLister interface {
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*address.Address, error)
}

type WalletServiceImpl struct {
	ledger    BalanceReader
	addresses AddressLister
}

func NewWalletService(ledger BalanceReader, addresses AddressLister) WalletService {
	return &WalletServiceImpl{ledger: ledger, addresses: addresses}
}

func (s *WalletServiceImpl) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return s.ledger.CachedBalance(ctx, id)
}

func (s *WalletServiceImpl) GetBalance(ctx context.Context, id uuid.UUID, confirmedOnly bool) (decimal.Decimal, error) {
	return s.ledger.Balance(ctx, id, confirmedOnly)
}

func (s *WalletServiceImpl) ListEntries(ctx context.Context, id uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	return s.ledger.Entries(ctx, id, perPage, (page-1)*perPage)
}

// ListAddresses tells an unknown wallet apart from one that owns nothing yet
func (s *WalletServiceImpl) ListAddresses(ctx context.Context, id uuid.UUID) ([]*address.Address, error) {
	if _, err := s.ledger.CachedBalance(ctx, id); err != nil {
		return nil, err
	}
	return s.addresses.ListByWallet(ctx, id)
}
