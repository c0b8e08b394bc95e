package service

import (
	"testing"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedgerScenarios walks one set of wallets through a deposit, internal
// transfers, a payout batch and a reconciliation run. Steps share state and
// run in order.
func TestLedgerScenarios(t *testing.T) {
	h := newHarness(t)
	w := h.wallet("w")
	x := h.wallet("x")
	y := h.wallet("y")

	t.Run("deposit credits confirmed balance", func(t *testing.T) {
		addr, err := h.allocator.AllocateAddress(h.ctx, w, false)
		require.NoError(t, err)
		require.True(t, addr.OwnedBy(w))

		h.node.Receive(addr.Address, "tx-a", dec("5.0"), 3)
		credited, err := h.watcher.Run(h.ctx)
		require.NoError(t, err)
		require.Len(t, credited, 1)
		assert.Equal(t, w, credited[0].WalletID)

		h.requireBalance(w, "5.0")
	})

	t.Run("transfer moves funds", func(t *testing.T) {
		_, err := h.transfers.Transfer(h.ctx, TransferRequest{From: w, To: x, Amount: dec("2.0")})
		require.NoError(t, err)

		h.requireBalance(w, "3.0")
		h.requireBalance(x, "2.0")
	})

	t.Run("overdraft is refused", func(t *testing.T) {
		_, err := h.transfers.Transfer(h.ctx, TransferRequest{From: w, To: y, Amount: dec("10.0")})
		require.ErrorIs(t, err, shared.ErrInsufficientFunds)

		h.requireBalance(w, "3.0")
		h.requireBalance(x, "2.0")
		h.requireBalance(y, "0")
	})

	t.Run("payout batch charges the fee wallet", func(t *testing.T) {
		_, err := h.transfers.Transfer(h.ctx, TransferRequest{From: x, To: h.feeWallet, Amount: dec("0.01")})
		require.NoError(t, err)

		p, err := h.payouts.RequestPayout(h.ctx, PayoutRequest{
			From:      w,
			ToAddress: "ext-addr",
			Amount:    dec("1.0"),
			ExpiresAt: h.clock.Now(),
		})
		require.NoError(t, err)
		h.requireBalance(w, "2.0")

		h.node.Fee = dec("0.0005")
		result, err := h.batcher.RunBatch(h.ctx)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, shared.BatchStatusSent, result.Status)
		assert.True(t, result.FeePosted)

		h.requireBalance(h.feeWallet, "0.0095")

		sent, err := h.repos.Payouts.GetByID(h.ctx, p.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, sent.ExternalTxID)
		assert.Equal(t, shared.PayoutStatusExecuted, sent.Status)
		assert.True(t, dec("0.0005").Equal(sent.FeeShare))
	})

	t.Run("reconciliation finds nothing", func(t *testing.T) {
		report, err := h.checker.Run(h.ctx)
		require.NoError(t, err)
		assert.True(t, report.Clean(), "discrepancies: %+v", report.Discrepancies)
		assert.Equal(t, 4, report.WalletsChecked)
		assert.Empty(t, report.SkippedChecks)
	})
}
