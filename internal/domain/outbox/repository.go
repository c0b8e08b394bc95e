package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository keeps balance events until the relay has delivered them. Every
// timestamp is supplied by the caller.
type Repository interface {
	Create(ctx context.Context, message *Message) error

	// ListPending returns up to limit PENDING messages in insertion order
	ListPending(ctx context.Context, limit int) ([]*Message, error)

	// CountPending is the relay backlog
	CountPending(ctx context.Context) (int64, error)

	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, at time.Time) error

	// RecordFailedAttempt bumps the attempt counter and returns the stored value
	RecordFailedAttempt(ctx context.Context, id int64, at time.Time) (int, error)

	// PurgePublished deletes PUBLISHED messages last touched before cutoff
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound is returned when an update matches no message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return fmt.Sprintf("outbox message %d not found", e.ID)
}
