package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
)

// ReconciliationChecker recomputes the ledger aggregates and compares them
// with the cached balances, the deposit records and the node. It never
// writes entries; the only thing it may fix is a wallet's cached balance.
type ReconciliationChecker struct {
	db        persistence.TxRunner
	wallets   wallet.Repository
	entries   ledger.Repository
	deposits  deposit.Repository
	addresses address.Repository
	payouts   payout.Repository
	reports   reconciliation.Repository
	node      node.Client
	cfg       config.ReconciliationConfig
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewReconciliationChecker(
	logger *slog.Logger,
	db persistence.TxRunner,
	repos Repositories,
	nodeClient node.Client,
	cfg config.ReconciliationConfig,
	clk clock.Clock,
	m *metrics.Metrics,
) *ReconciliationChecker {
	return &ReconciliationChecker{
		db:        db,
		wallets:   repos.Wallets,
		entries:   repos.Entries,
		deposits:  repos.Deposits,
		addresses: repos.Addresses,
		payouts:   repos.Payouts,
		reports:   repos.Reports,
		node:      nodeClient,
		cfg:       cfg,
		clock:     clk,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes every check and stores the report. Discrepancies are reported,
// not returned as errors; an error means a check could not be computed.
func (c *ReconciliationChecker) Run(ctx context.Context) (*reconciliation.Report, error) {
	report := &reconciliation.Report{
		ID:            uuid.NewString(),
		StartedAt:     c.clock.Now().UTC(),
		Discrepancies: []reconciliation.Discrepancy{},
	}

	if err := c.checkWallets(ctx, report); err != nil {
		return nil, err
	}

	sums, err := c.ledgerSums(ctx)
	if err != nil {
		return nil, err
	}

	if !sums.depositEntries.Equal(sums.creditedDeposits) {
		report.Discrepancies = append(report.Discrepancies,
			reconciliation.NewDiscrepancy(reconciliation.CheckDepositLinkage, sums.creditedDeposits, sums.depositEntries))
	}

	expected := sums.depositEntries.Sub(sums.payoutEntries)
	actual := sums.balances.Add(sums.feeEntries)
	if !expected.Equal(actual) {
		report.Discrepancies = append(report.Discrepancies,
			reconciliation.NewDiscrepancy(reconciliation.CheckGlobalZeroSum, expected, actual))
	}

	if c.cfg.CheckNodeBalance {
		if err := c.checkNodeBalance(ctx, report, sums.balances); err != nil {
			c.skip(report, reconciliation.CheckNodeBalance, err)
		}
	} else {
		report.SkippedChecks = append(report.SkippedChecks, reconciliation.CheckNodeBalance)
	}

	if err := c.checkAddresses(ctx, report); err != nil {
		c.skip(report, reconciliation.CheckAddressReceived, err)
	}

	report.FinishedAt = c.clock.Now().UTC()
	c.observe(report)

	if err := c.reports.Create(ctx, report); err != nil {
		c.logger.Error("Failed to store reconciliation report", "report_id", report.ID, "error", err)
		return report, fmt.Errorf("failed to store reconciliation report: %w", err)
	}
	return report, nil
}

// checkWallets compares every cached balance with the entry log while the
// wallet row is locked, so no debit can slip in between read and fix.
func (c *ReconciliationChecker) checkWallets(ctx context.Context, report *reconciliation.Report) error {
	ids, err := c.wallets.ListIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		var found *reconciliation.Discrepancy
		err := c.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			wallets := c.wallets.WithTx(tx)
			w, err := wallets.LockForUpdate(ctx, id)
			if err != nil {
				return err
			}

			credits, debits, err := c.entries.WithTx(tx).SumForWallet(ctx, id)
			if err != nil {
				return err
			}
			recomputed := credits.Sub(debits)
			if recomputed.Equal(w.Balance) {
				return nil
			}

			d := reconciliation.NewDiscrepancy(reconciliation.CheckWalletBalance, recomputed, w.Balance)
			d.WalletID = id.String()
			if c.cfg.CorrectCache {
				if err := wallets.SetCachedBalance(ctx, id, recomputed); err != nil {
					return err
				}
				d.Corrected = true
			}
			found = &d
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to reconcile wallet %s: %w", id, err)
		}

		report.WalletsChecked++
		if found == nil {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, *found)
		if found.Corrected {
			report.CachesCorrected++
		}
	}
	return nil
}

type ledgerSums struct {
	balances         decimal.Decimal
	depositEntries   decimal.Decimal
	payoutEntries    decimal.Decimal
	feeEntries       decimal.Decimal
	creditedDeposits decimal.Decimal
}

func (c *ReconciliationChecker) ledgerSums(ctx context.Context) (*ledgerSums, error) {
	var (
		s   ledgerSums
		err error
	)
	if s.balances, err = c.wallets.SumBalances(ctx); err != nil {
		return nil, err
	}
	if s.depositEntries, err = c.entries.SumByKind(ctx, shared.EntryKindDeposit); err != nil {
		return nil, err
	}
	if s.payoutEntries, err = c.entries.SumByKind(ctx, shared.EntryKindPayout); err != nil {
		return nil, err
	}
	if s.feeEntries, err = c.entries.SumByKind(ctx, shared.EntryKindFee); err != nil {
		return nil, err
	}
	if s.creditedDeposits, err = c.deposits.SumCredited(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// checkNodeBalance compares what the node holds with what the ledger says it
// should hold: wallet balances, plus payouts reserved but not yet sent, minus
// fees the node already paid but the ledger has not charged.
func (c *ReconciliationChecker) checkNodeBalance(ctx context.Context, report *reconciliation.Report, balances decimal.Decimal) error {
	reserved, err := c.payouts.SumReserved(ctx)
	if err != nil {
		return err
	}
	unposted, err := c.payouts.SumUnpostedFees(ctx)
	if err != nil {
		return err
	}
	held, err := c.node.GetBalance(ctx, c.cfg.MinConfirmations)
	if err != nil {
		return err
	}

	expected := balances.Add(reserved).Sub(unposted)
	if !expected.Equal(held) {
		report.Discrepancies = append(report.Discrepancies,
			reconciliation.NewDiscrepancy(reconciliation.CheckNodeBalance, expected, held))
	}
	return nil
}

func (c *ReconciliationChecker) checkAddresses(ctx context.Context, report *reconciliation.Report) error {
	active, err := c.addresses.ListWithActivity(ctx)
	if err != nil {
		return err
	}

	for _, a := range active {
		if a.WalletID == nil {
			continue
		}
		received, err := c.node.GetReceived(ctx, a.Address, c.cfg.MinConfirmations)
		if err != nil {
			return err
		}
		if received.Equal(a.ReceivedConfirmed) {
			continue
		}
		d := reconciliation.NewDiscrepancy(reconciliation.CheckAddressReceived, received, a.ReceivedConfirmed)
		d.WalletID = a.WalletID.String()
		d.Address = a.Address
		report.Discrepancies = append(report.Discrepancies, d)
	}
	return nil
}

func (c *ReconciliationChecker) skip(report *reconciliation.Report, check reconciliation.CheckName, err error) {
	report.SkippedChecks = append(report.SkippedChecks, check)
	c.logger.Warn("Reconciliation check skipped", "check", check, "error", err)
}

func (c *ReconciliationChecker) observe(report *reconciliation.Report) {
	c.metrics.ReconciliationRuns.Inc()
	c.metrics.CachesCorrected.Add(float64(report.CachesCorrected))
	for _, check := range reconciliation.AllChecks {
		c.metrics.ReconciliationDiscrepancies.WithLabelValues(string(check)).Set(float64(report.Count(check)))
	}

	if report.Clean() {
		c.logger.Info("Reconciliation clean",
			"report_id", report.ID,
			"wallets_checked", report.WalletsChecked,
			"skipped", report.SkippedChecks,
		)
		return
	}

	for _, d := range report.Discrepancies {
		c.logger.Warn("Reconciliation mismatch",
			"error", shared.ErrReconciliationMismatch,
			"check", d.Check,
			"wallet_id", d.WalletID,
			"address", d.Address,
			"expected", d.Expected,
			"actual", d.Actual,
			"corrected", d.Corrected,
		)
	}
}
