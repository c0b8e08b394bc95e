package service

import (
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutService_RequestPayout_ReservesFunds(t *testing.T) {
	h := newHarness(t)
	w := h.wallet("w")
	h.deposit(w, "5")

	p, err := h.payouts.RequestPayout(h.ctx, PayoutRequest{From: w, ToAddress: "ext-1", Amount: dec("1.5")})
	require.NoError(t, err)

	assert.Equal(t, shared.PayoutStatusPending, p.Status)
	assert.False(t, p.Claimed)
	assert.Equal(t, h.clock.Now().Add(time.Hour), p.ExpiresAt)
	h.requireBalance(w, "3.5")

	entry, err := h.repos.Entries.GetByID(h.ctx, p.LedgerEntryID)
	require.NoError(t, err)
	assert.Equal(t, shared.EntryKindPayout, entry.Kind)
	assert.Equal(t, "ext-1", entry.ToExternalAddress)
	require.NotNil(t, entry.PayoutID)
	assert.Equal(t, p.ID, *entry.PayoutID)

	stored, err := h.repos.Payouts.GetByID(h.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(stored.Amount))
}

func TestPayoutService_RequestPayout_Rejections(t *testing.T) {
	h := newHarness(t)
	w := h.wallet("w")
	h.deposit(w, "5")

	tests := []struct {
		name    string
		req     PayoutRequest
		wantErr error
	}{
		{"bad address", PayoutRequest{From: w, ToAddress: "bad-addr", Amount: dec("1")}, shared.ErrInvalidArgument},
		{"empty address", PayoutRequest{From: w, Amount: dec("1")}, shared.ErrInvalidArgument},
		{"zero amount", PayoutRequest{From: w, ToAddress: "ext-1", Amount: dec("0")}, shared.ErrInvalidArgument},
		{"too precise", PayoutRequest{From: w, ToAddress: "ext-1", Amount: dec("0.123456789")}, shared.ErrInvalidArgument},
		{"overdraft", PayoutRequest{From: w, ToAddress: "ext-1", Amount: dec("5.1")}, shared.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.payouts.RequestPayout(h.ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	h.requireBalance(w, "5")
	assert.Empty(t, h.store.AllPayouts())
}

func TestPayoutService_RequestPayout_SameIDOnce(t *testing.T) {
	h := newHarness(t)
	w := h.wallet("w")
	h.deposit(w, "5")
	id := uuid.New()

	_, err := h.payouts.RequestPayout(h.ctx, PayoutRequest{ID: id, From: w, ToAddress: "ext-1", Amount: dec("1")})
	require.NoError(t, err)

	_, err = h.payouts.RequestPayout(h.ctx, PayoutRequest{ID: id, From: w, ToAddress: "ext-1", Amount: dec("1")})
	require.ErrorIs(t, err, ledger.ErrDuplicateEntry{})

	h.requireBalance(w, "4")
	assert.Len(t, h.store.AllPayouts(), 1)
}
