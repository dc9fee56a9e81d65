// Package metrics publishes the node event loop's operational
// counters over Prometheus, the teacher's own metrics dependency
// (github.com/prometheus/client_golang) re-wired directly here since
// the grpc middleware it previously traveled through in the teacher
// repo is not part of this module (§9's CLI-transport decision).
package metrics

import (
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every gauge/counter this node publishes. A node owns
// exactly one.
type Registry struct {
	LoopIterations   prometheus.Counter
	CommandLatency   prometheus.Histogram
	PaymentsCommitted prometheus.Counter
	PaymentsCancelled prometheus.Counter
	ChannelLocal      *prometheus.GaugeVec
	ChannelRemote     *prometheus.GaugeVec
	BackendHealthy    prometheus.Gauge
}

// NewRegistry constructs and registers a fresh Registry against a
// dedicated prometheus.Registerer, so multiple Nodes in the same
// process (as in the twelve-node flood scenario, §8) don't collide on
// the default global registry.
func NewRegistry() (*Registry, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		LoopIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "amiko_loop_iterations_total",
			Help: "Number of node event loop iterations processed.",
		}),
		CommandLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "amiko_command_latency_seconds",
			Help: "Latency of Node API calls dispatched through the command mailbox.",
		}),
		PaymentsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "amiko_payments_committed_total",
			Help: "Number of payments that reached the committed terminal state.",
		}),
		PaymentsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "amiko_payments_cancelled_total",
			Help: "Number of payments that reached the cancelled terminal state.",
		}),
		ChannelLocal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amiko_channel_amount_local",
			Help: "Current amountLocal of a channel, labeled by link name.",
		}, []string{"link"}),
		ChannelRemote: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amiko_channel_amount_remote",
			Help: "Current amountRemote of a channel, labeled by link name.",
		}, []string{"link"}),
		BackendHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "amiko_backend_healthy",
			Help: "1 if the settlement backend liveness probe last succeeded, 0 otherwise.",
		}),
	}
	r.BackendHealthy.Set(1)
	return r, reg
}

// ObserveBalances publishes a channel's current balances under
// linkName. Package node does not call it, so the ChannelLocal/
// ChannelRemote gauges change only when a caller invokes it.
func (r *Registry) ObserveBalances(linkName string, local, remote btcutil.Amount) {
	r.ChannelLocal.WithLabelValues(linkName).Set(float64(local))
	r.ChannelRemote.WithLabelValues(linkName).Set(float64(remote))
}

// Handler returns an http.Handler serving gatherer's metrics in the
// Prometheus text exposition format, for cmd/amikod to mount under
// Config.MetricsListen.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
