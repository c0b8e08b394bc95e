package address

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAddress_IsFree(t *testing.T) {
	owner := uuid.New()

	assert.True(t, (&Address{ReceivedUnconfirmed: decimal.Zero}).IsFree())
	assert.False(t, (&Address{Active: true}).IsFree())
	assert.False(t, (&Address{WalletID: &owner}).IsFree())
	assert.False(t, (&Address{ReceivedUnconfirmed: decimal.RequireFromString("0.1")}).IsFree(),
		"an address that ever received funds must not go back to the pool")
}

func TestAddress_Pending(t *testing.T) {
	a := &Address{
		ReceivedUnconfirmed: decimal.RequireFromString("7.5"),
		ReceivedConfirmed:   decimal.RequireFromString("5"),
	}
	assert.True(t, a.Pending().Equal(decimal.RequireFromString("2.5")))

	a.ReceivedConfirmed = decimal.RequireFromString("8")
	assert.True(t, a.Pending().IsZero())
}

func TestAddress_OwnedBy(t *testing.T) {
	owner := uuid.New()
	a := &Address{WalletID: &owner}
	assert.True(t, a.OwnedBy(owner))
	assert.False(t, a.OwnedBy(uuid.New()))
	assert.False(t, (&Address{}).OwnedBy(owner))
}
