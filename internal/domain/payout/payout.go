package payout

import (
	"time"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payout is one withdrawal obligation. Its funds were reserved by a PAYOUT
// ledger entry when it was created, so it only ever moves forward:
// PENDING -> CLAIMED -> EXECUTED, CLAIMED -> PENDING on release, or
// CLAIMED -> FAILED for manual resolution.
type Payout struct {
	ID            uuid.UUID           `json:"id"`
	WalletID      uuid.UUID           `json:"wallet_id"`
	ToAddress     string              `json:"to_address"`
	Amount        decimal.Decimal     `json:"amount"`
	LedgerEntryID uuid.UUID           `json:"ledger_entry_id"`
	Status        shared.PayoutStatus `json:"status"`
	Claimed       bool                `json:"claimed"`
	BatchID       *uuid.UUID          `json:"batch_id,omitempty"`
	ExternalTxID  string              `json:"external_txid,omitempty"`
	FeeShare      decimal.Decimal     `json:"fee_share"`
	FailureReason string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	ExecutedAt    *time.Time          `json:"executed_at,omitempty"`
}

// IsDue reports whether the obligation has waited long enough to be sent on
// its own, without a full batch.
func (p *Payout) IsDue(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// SelectForBatch picks the obligations a batch run should claim. pending must
// be ordered oldest first. When the total pending count reached threshold the
// whole slice is taken; otherwise only the due ones are.
func SelectForBatch(pending []*Payout, totalPending, threshold int, now time.Time) []*Payout {
	if totalPending >= threshold {
		return pending
	}
	var due []*Payout
	for _, p := range pending {
		if p.IsDue(now) {
			due = append(due, p)
		}
	}
	return due
}

// Outputs sums amounts per destination. Obligations to the same address share
// one output of the send.
func Outputs(payouts []*Payout) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(payouts))
	for _, p := range payouts {
		out[p.ToAddress] = out[p.ToAddress].Add(p.Amount)
	}
	return out
}

// Batch is the audit record of one multi-destination send
type Batch struct {
	ID            uuid.UUID          `json:"id"`
	Status        shared.BatchStatus `json:"status"`
	ExternalTxID  string             `json:"external_txid,omitempty"`
	Fee           decimal.Decimal    `json:"fee"`
	FeePosted     bool               `json:"fee_posted"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
