package reconciliation

import (
	"context"
	"errors"
	"time"
)

var ErrNoReport = errors.New("no reconciliation report recorded yet")

// Repository stores reconciliation reports
type Repository interface {
	Create(ctx context.Context, report *Report) error
	Latest(ctx context.Context) (*Report, error)
	ListByTimeRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*Report, error)
}
