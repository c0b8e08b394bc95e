package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is an internal claim against the pooled funds. Balance is a cache of
// the ledger aggregate; Version increments on every debit and is the
// compare-and-swap token for debits.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	Label     string          `json:"label"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewWallet builds an empty wallet. A nil id gets a random one.
func NewWallet(id uuid.UUID, label string, now time.Time) *Wallet {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Wallet{
		ID:        id,
		Label:     label,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanDebit reports whether the cached balance covers amount
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}
