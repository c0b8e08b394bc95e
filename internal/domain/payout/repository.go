package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines payout and batch persistence operations
type Repository interface {
	Create(ctx context.Context, p *Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Payout, error)

	// ListPending returns unclaimed obligations, oldest first
	ListPending(ctx context.Context, limit int) ([]*Payout, error)
	CountPending(ctx context.Context) (int, error)

	// Claim flips claimed=false rows among ids to claimed=true for batchID
	// and returns the ids it actually claimed.
	Claim(ctx context.Context, ids []uuid.UUID, batchID uuid.UUID) ([]uuid.UUID, error)

	// Release returns the batch's claimed obligations to the pending pool
	Release(ctx context.Context, batchID uuid.UUID) (int, error)
	MarkExecuted(ctx context.Context, batchID uuid.UUID, externalTxID string, executedAt time.Time) error
	MarkFailed(ctx context.Context, batchID uuid.UUID, reason string) error
	SetFeeShare(ctx context.Context, id uuid.UUID, share decimal.Decimal) error

	SumReserved(ctx context.Context) (decimal.Decimal, error)

	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error)
	UpdateBatch(ctx context.Context, b *Batch) error
	ListUnpostedFees(ctx context.Context) ([]*Batch, error)
	SumUnpostedFees(ctx context.Context) (decimal.Decimal, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrPayoutNotFound indicates missing payout
type ErrPayoutNotFound struct {
	PayoutID uuid.UUID
}

func (e ErrPayoutNotFound) Error() string {
	return "payout not found: " + e.PayoutID.String()
}

// Is matches any ErrPayoutNotFound when target carries no id
func (e ErrPayoutNotFound) Is(target error) bool {
	t, ok := target.(ErrPayoutNotFound)
	if !ok {
		return false
	}
	return t.PayoutID == uuid.Nil || t.PayoutID == e.PayoutID
}

// ErrBatchNotFound indicates missing payout batch
type ErrBatchNotFound struct {
	BatchID uuid.UUID
}

func (e ErrBatchNotFound) Error() string {
	return "payout batch not found: " + e.BatchID.String()
}
