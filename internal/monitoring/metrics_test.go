package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetrics(t *testing.T) {
	metrics := NewPaymentMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	metrics.RecordAddressIssued("POLYGON")
	metrics.RecordCheck("POLYGON", "not_found")
	metrics.RecordCheck("POLYGON", "found")
	metrics.RecordConfirmed("POLYGON", "USDC")
	metrics.SetPendingDeposits("POLYGON", 7)
	metrics.SetPendingDeposits("BASE", 0)
	metrics.SetPendingDeposits("POLYGON", 5)

	families := gatherFamilies(t, registry)

	require.NotNil(t, families["paywall_deposit_addresses_created_total"])
	checks := families["paywall_payment_checks_total"]
	require.NotNil(t, checks)
	assert.Len(t, checks.GetMetric(), 2)

	confirmed := families["paywall_payments_confirmed_total"]
	require.NotNil(t, confirmed)
	assert.Equal(t, "USDC", getLabelValue(confirmed.GetMetric()[0], "coin"))

	pending := families["paywall_pending_deposits"]
	require.NotNil(t, pending)
	values := map[string]float64{}
	for _, m := range pending.GetMetric() {
		values[getLabelValue(m, "chain")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"POLYGON": 5, "BASE": 0}, values)
}
