package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Transfers.WithLabelValues("ok").Inc()
	m.PayoutBatches.WithLabelValues("sent").Add(2)
	m.ReconciliationDiscrepancies.WithLabelValues("WALLET_BALANCE").Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transfers.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PayoutBatches.WithLabelValues("sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReconciliationDiscrepancies.WithLabelValues("WALLET_BALANCE")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["custody_ledger_transfers_total"])
	assert.True(t, names["custody_ledger_reconciliation_discrepancies"])
}

func TestNew_SeparateRegistriesDoNotClash(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
