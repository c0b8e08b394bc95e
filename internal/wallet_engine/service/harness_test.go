package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/testutil/fakenode"
	"github.com/custody-ledger/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDepositsConfig() config.DepositsConfig {
	return config.DepositsConfig{
		MinConfirmations: 3,
		PoolRefillSize:   5,
		PoolLowWatermark: 2,
		ClaimCandidates:  3,
		MaxClaimAttempts: 3,
		RefillLockLease:  time.Minute,
	}
}

func testPayoutsConfig() config.PayoutsConfig {
	return config.PayoutsConfig{
		MaxBatchSize:   50,
		BatchThreshold: 10,
		DefaultExpiry:  time.Hour,
		LockLease:      time.Minute,
		FeeWalletID:    config.DefaultFeeWalletID,
	}
}

func testReconciliationConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		CorrectCache:     true,
		CheckNodeBalance: true,
		MinConfirmations: 3,
	}
}

// harness wires every component against one in-memory store and fake node,
// the way the worker process wires them against Postgres and bitcoind.
type harness struct {
	t       *testing.T
	ctx     context.Context
	clock   *clock.TestClock
	store   *memstore.Store
	node    *fakenode.Node
	locker  *lock.MemoryLocker
	metrics *metrics.Metrics
	repos   Repositories

	ledger    *BalanceLedger
	allocator *AddressAllocator
	watcher   *DepositWatcher
	transfers *TransferEngine
	payouts   *PayoutService
	batcher   *PayoutBatcher
	checker   *ReconciliationChecker

	feeWallet uuid.UUID
	txids     int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := clock.NewTestClock(testEpoch)
	store := memstore.New(clk)
	fake := fakenode.New()
	locker := lock.NewMemoryLocker(clk)
	m := metrics.New(prometheus.NewRegistry())
	logger := testLogger()

	repos := Repositories{
		Wallets:     store.Wallets(),
		Entries:     store.Entries(),
		Addresses:   store.Addresses(),
		Deposits:    store.Deposits(),
		Checkpoints: store.Checkpoints(),
		Payouts:     store.Payouts(),
		Outbox:      store.Outbox(),
		Reports:     store.Reports(),
	}

	h := &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     clk,
		store:     store,
		node:      fake,
		locker:    locker,
		metrics:   m,
		repos:     repos,
		feeWallet: testPayoutsConfig().FeeWallet(),
	}

	h.ledger = NewBalanceLedger(logger, store, repos, clk)
	h.allocator = NewAddressAllocator(logger, repos, fake, locker, testDepositsConfig(), clk, m)
	h.watcher = NewDepositWatcher(logger, store, h.ledger, repos, fake, testDepositsConfig(), clk, m)
	h.transfers = NewTransferEngine(logger, store, h.ledger, repos.Wallets, m)
	h.payouts = NewPayoutService(logger, store, h.ledger, repos, fake, testPayoutsConfig(), clk, m)
	h.batcher = h.newBatcher(locker)
	h.checker = NewReconciliationChecker(logger, store, repos, fake, testReconciliationConfig(), clk, m)

	_, err := h.ledger.CreateWallet(h.ctx, h.feeWallet, "network fees")
	require.NoError(t, err)
	return h
}

func (h *harness) newBatcher(locker lock.Locker) *PayoutBatcher {
	return NewPayoutBatcher(testLogger(), h.store, h.ledger, h.repos, h.node, locker, testPayoutsConfig(), h.clock, h.metrics)
}

func (h *harness) wallet(label string) uuid.UUID {
	h.t.Helper()
	w, err := h.ledger.CreateWallet(h.ctx, uuid.New(), label)
	require.NoError(h.t, err)
	return w.ID
}

// deposit makes the node report amount to the wallet's address with enough
// confirmations and runs the watcher.
func (h *harness) deposit(walletID uuid.UUID, amount string) {
	h.t.Helper()
	addr, err := h.allocator.AllocateAddress(h.ctx, walletID, false)
	require.NoError(h.t, err)

	h.txids++
	h.node.Receive(addr.Address, "deposit-"+strconv.Itoa(h.txids), dec(amount), 3)
	_, err = h.watcher.Run(h.ctx)
	require.NoError(h.t, err)
}

func (h *harness) balance(walletID uuid.UUID) decimal.Decimal {
	h.t.Helper()
	b, err := h.ledger.Balance(h.ctx, walletID, true)
	require.NoError(h.t, err)
	return b
}

func (h *harness) cached(walletID uuid.UUID) decimal.Decimal {
	h.t.Helper()
	w, err := h.ledger.CachedBalance(h.ctx, walletID)
	require.NoError(h.t, err)
	return w.Balance
}

func (h *harness) requireBalance(walletID uuid.UUID, want string) {
	h.t.Helper()
	require.True(h.t, dec(want).Equal(h.balance(walletID)), "balance %s, want %s", h.balance(walletID), want)
	require.True(h.t, dec(want).Equal(h.cached(walletID)), "cached %s, want %s", h.cached(walletID), want)
}
