// Package metrics defines the Prometheus instruments of the ledger. Every
// process registers them on its own registry, exposed by the ops API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "custody_ledger"

// Metrics holds all Prometheus metrics of the wallet engine
type Metrics struct {
	// --- Transfers & commands ---
	Transfers            *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter
	Commands             *prometheus.CounterVec
	CommandDuration      *prometheus.HistogramVec

	// --- Deposits ---
	DepositsObserved prometheus.Counter
	DepositsCredited prometheus.Counter
	AddressPoolFree  prometheus.Gauge
	AddressesClaimed prometheus.Counter

	// --- Payouts ---
	PayoutsRequested prometheus.Counter
	PayoutBatches    *prometheus.CounterVec
	PayoutsExecuted  prometheus.Counter
	PayoutBatchSize  prometheus.Histogram
	Escalations      *prometheus.CounterVec

	// --- Reconciliation ---
	ReconciliationRuns          prometheus.Counter
	ReconciliationDiscrepancies *prometheus.GaugeVec
	CachesCorrected             prometheus.Counter

	// --- Outbox ---
	OutboxPublished prometheus.Counter
	OutboxFailed    prometheus.Counter
	OutboxBacklog   prometheus.Gauge
	OutboxPurged    prometheus.Counter

	// --- Ops API ---
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	CommandsSubmitted *prometheus.CounterVec
}

// New creates the metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Transfers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Internal transfer attempts by result",
		}, []string{"result"}),

		ConcurrencyConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Conditional debits that lost the version race",
		}),

		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Wallet commands processed by type and result",
		}, []string{"type", "result"}),

		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wallet command processing latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"type"}),

		DepositsObserved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_observed_total",
			Help:      "New inbound payments recorded",
		}),

		DepositsCredited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_credited_total",
			Help:      "Inbound payments promoted to ledger credits",
		}),

		AddressPoolFree: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "address_pool_free",
			Help:      "Unclaimed receiving addresses in the pool",
		}),

		AddressesClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addresses_claimed_total",
			Help:      "Pool addresses assigned to wallets",
		}),

		PayoutsRequested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_requested_total",
			Help:      "Withdrawal obligations created",
		}),

		PayoutBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_batches_total",
			Help:      "Payout batch runs by outcome",
		}, []string{"outcome"}),

		PayoutsExecuted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_executed_total",
			Help:      "Obligations included in a successful send",
		}),

		PayoutBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payout_batch_size",
			Help:      "Obligations per successful send",
			Buckets:   prometheus.LinearBuckets(1, 10, 10),
		}),

		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Conditions that need an operator",
		}, []string{"reason"}),

		ReconciliationRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_runs_total",
			Help:      "Completed reconciliation runs",
		}),

		ReconciliationDiscrepancies: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_discrepancies",
			Help:      "Discrepancies found by the last run, per check",
		}, []string{"check"}),

		CachesCorrected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_caches_corrected_total",
			Help:      "Cached wallet balances rewritten from the ledger",
		}),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Balance events delivered to the event bus",
		}),

		OutboxFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Balance events given up after max retries",
		}),

		OutboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Balance events waiting for the relay, sampled after each poll",
		}),

		OutboxPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_purged_total",
			Help:      "Published balance events deleted after the retention period",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops API requests by route and status",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ops API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		CommandsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_submitted_total",
			Help:      "Wallet commands accepted by the ops API and written to Kafka",
		}, []string{"type", "result"}),
	}
}
