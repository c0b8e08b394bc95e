package deposit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines deposit persistence operations
type Repository interface {
	// Insert stores a newly observed deposit. It returns false, without error,
	// when the (address, txid, amount) triple is already recorded.
	Insert(ctx context.Context, tx *Transaction) (bool, error)

	// Find returns nil, nil when the triple is unknown
	Find(ctx context.Context, addressID int64, externalTxID string, amount decimal.Decimal) (*Transaction, error)

	UpdateConfirmations(ctx context.Context, id int64, confirmations int64) error

	// MarkCredited links the deposit to its ledger entry. It returns false if
	// the deposit was already credited.
	MarkCredited(ctx context.Context, id int64, entryID uuid.UUID) (bool, error)

	SumCredited(ctx context.Context) (decimal.Decimal, error)

	WithTx(tx pgx.Tx) Repository
}

// CheckpointRepository remembers how far the watcher has scanned the node's
// transaction history. An empty value means scan from genesis.
type CheckpointRepository interface {
	Get(ctx context.Context, name string) (string, error)
	Save(ctx context.Context, name, value string) error
}
