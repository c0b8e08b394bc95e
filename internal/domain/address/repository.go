package address

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var ErrAddressPoolExhausted = errors.New("no free receiving address could be claimed")

// ErrClaimCommandUsed is returned when a command already claimed another address
var ErrClaimCommandUsed = errors.New("command already claimed an address")

// Repository defines address pool persistence operations
type Repository interface {
	// CreateMany inserts freshly generated pool addresses, skipping ones
	// already known. Returns the number inserted.
	CreateMany(ctx context.Context, addresses []string) (int, error)
	GetByAddress(ctx context.Context, addr string) (*Address, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*Address, error)
	ListWithActivity(ctx context.Context) ([]*Address, error)

	// LatestForWallet returns the most recently claimed active address of the
	// wallet, or nil when it owns none.
	LatestForWallet(ctx context.Context, walletID uuid.UUID) (*Address, error)

	ListFree(ctx context.Context, limit int) ([]*Address, error)
	CountFree(ctx context.Context) (int, error)

	// Claim assigns a free address to walletID. It returns false when another
	// caller won the race for the same row. A non-nil commandID is stored on
	// the row and may claim at most one address.
	Claim(ctx context.Context, id int64, walletID, commandID uuid.UUID) (bool, error)

	// ClaimedByCommand returns the address claimed by commandID, or nil.
	ClaimedByCommand(ctx context.Context, commandID uuid.UUID) (*Address, error)

	// AddUnconfirmed raises the cumulative amount seen on the network
	AddUnconfirmed(ctx context.Context, id int64, amount decimal.Decimal) error

	// AdvanceConfirmed moves the confirmed counter from expected to
	// expected+amount. It returns false if the counter moved concurrently.
	AdvanceConfirmed(ctx context.Context, id int64, expected, amount decimal.Decimal) (bool, error)

	PendingForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrAddressNotFound indicates an address unknown to the pool
type ErrAddressNotFound struct {
	Address string
}

func (e ErrAddressNotFound) Error() string {
	return "address not found: " + e.Address
}
