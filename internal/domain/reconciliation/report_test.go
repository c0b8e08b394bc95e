package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReport_Count(t *testing.T) {
	r := &Report{}
	assert.True(t, r.Clean())

	r.Discrepancies = append(r.Discrepancies,
		NewDiscrepancy(CheckWalletBalance, decimal.NewFromInt(1), decimal.NewFromInt(2)),
		NewDiscrepancy(CheckWalletBalance, decimal.NewFromInt(3), decimal.NewFromInt(3)),
		NewDiscrepancy(CheckNodeBalance, decimal.NewFromInt(5), decimal.NewFromInt(4)),
	)

	assert.False(t, r.Clean())
	assert.Equal(t, 2, r.Count(CheckWalletBalance))
	assert.Equal(t, 1, r.Count(CheckNodeBalance))
	assert.Equal(t, 0, r.Count(CheckGlobalZeroSum))
}

func TestDiscrepancy_Difference(t *testing.T) {
	d := NewDiscrepancy(CheckGlobalZeroSum, decimal.RequireFromString("5.00000000"), decimal.RequireFromString("4.9995"))
	assert.True(t, d.Difference().Equal(decimal.RequireFromString("-0.0005")))
}
