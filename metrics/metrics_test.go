package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveBalancesUpdatesGauges(t *testing.T) {
	r, _ := NewRegistry()
	r.ObserveBalances("alice-bob", 900, 100)

	require.Equal(t, float64(900), testutil.ToFloat64(r.ChannelLocal.WithLabelValues("alice-bob")))
	require.Equal(t, float64(100), testutil.ToFloat64(r.ChannelRemote.WithLabelValues("alice-bob")))
}

func TestCountersIncrement(t *testing.T) {
	r, _ := NewRegistry()
	r.PaymentsCommitted.Inc()
	r.PaymentsCommitted.Inc()
	r.PaymentsCancelled.Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(r.PaymentsCommitted))
	require.Equal(t, float64(1), testutil.ToFloat64(r.PaymentsCancelled))
}
