package service

import (
	"context"

	"github.com/custody-ledger/internal/domain/payout"
	"github.com/google/uuid"
)

// PayoutReader looks up a single withdrawal obligation
type PayoutReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
}

type PayoutServiceImpl struct {
	payouts PayoutReader
}

func NewPayoutService(payouts PayoutReader) PayoutService {
	return &PayoutServiceImpl{payouts: payouts}
}

func (s *PayoutServiceImpl) GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.payouts.GetByID(ctx, id)
}
