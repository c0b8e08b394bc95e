package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines wallet persistence operations
type Repository interface {
	Create(ctx context.Context, wallet *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// DebitCAS subtracts amount only if the stored version still equals
	// expectedVersion, bumping the version. Zero affected rows yields
	// shared.ErrConcurrencyConflict.
	DebitCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) error

	// Credit adds amount to the cached balance without touching the version.
	Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error

	// LockForUpdate reads the row under a pessimistic lock (transaction only)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// SetCachedBalance overwrites the cache and bumps the version
	SetCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error

	SumBalances(ctx context.Context) (decimal.Decimal, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrWalletNotFound indicates missing wallet
type ErrWalletNotFound struct {
	WalletID uuid.UUID
}

func (e ErrWalletNotFound) Error() string {
	return "wallet not found: " + e.WalletID.String()
}

// Is matches any ErrWalletNotFound when the target carries uuid.Nil
func (e ErrWalletNotFound) Is(target error) bool {
	t, ok := target.(ErrWalletNotFound)
	if !ok {
		return false
	}
	return t.WalletID == uuid.Nil || t.WalletID == e.WalletID
}

// ErrDuplicateWallet indicates an id collision on create
type ErrDuplicateWallet struct {
	WalletID uuid.UUID
}

func (e ErrDuplicateWallet) Error() string {
	return "wallet already exists: " + e.WalletID.String()
}
