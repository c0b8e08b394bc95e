package deposit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one inbound payment to one owned address. It is matched on
// (address, external txid, amount) and becomes immutable once Credited.
type Transaction struct {
	ID            int64           `json:"id"`
	AddressID     int64           `json:"address_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	ExternalTxID  string          `json:"external_txid"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	Credited      bool            `json:"credited"`
	LedgerEntryID *uuid.UUID      `json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReadyForCredit reports whether the deposit crossed the threshold and has
// not been credited yet.
func (t *Transaction) ReadyForCredit(minConfirmations int64) bool {
	return !t.Credited && t.Confirmations >= minConfirmations
}
