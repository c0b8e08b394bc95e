package address

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address is a receiving address on the external network. It sits in the free
// pool until claimed by exactly one wallet.
type Address struct {
	ID                  int64           `json:"id"`
	Address             string          `json:"address"`
	WalletID            *uuid.UUID      `json:"wallet_id,omitempty"`
	ReceivedUnconfirmed decimal.Decimal `json:"received_unconfirmed"`
	ReceivedConfirmed   decimal.Decimal `json:"received_confirmed"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
	ClaimedAt           *time.Time      `json:"claimed_at,omitempty"`
	ClaimCommandID      *uuid.UUID      `json:"claim_command_id,omitempty"`
}

// IsFree reports whether the address can still be claimed from the pool
func (a *Address) IsFree() bool {
	return !a.Active && a.WalletID == nil && a.ReceivedUnconfirmed.IsZero()
}

// OwnedBy reports whether walletID currently owns the address
func (a *Address) OwnedBy(walletID uuid.UUID) bool {
	return a.WalletID != nil && *a.WalletID == walletID
}

// Pending is the amount seen on the network but not yet credited
func (a *Address) Pending() decimal.Decimal {
	p := a.ReceivedUnconfirmed.Sub(a.ReceivedConfirmed)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}
