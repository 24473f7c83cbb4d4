// Package metrics exposes the wallet core's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const apNamespace = "ap"

// Operation outcome labels. "submitted" counts every accepted relay
// submission; exactly one of the other three follows it.
const (
	OpSubmitted = "submitted"
	OpSucceeded = "succeeded"
	OpReverted  = "reverted"
	OpDropped   = "dropped"
)

// WalletMetrics contains the instrumented metrics the controller and the
// session manager increment through the methods below. All methods are
// nil-receiver safe so callers can run without a registry.
type WalletMetrics struct {
	numUserOps *prometheus.CounterVec

	numWalletDeployments prometheus.Counter

	numSessionSignatures *prometheus.CounterVec
}

func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	return &WalletMetrics{
		numUserOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_user_ops_total",
				Help:      "The number of user operations by outcome. If submitted keeps growing without succeeded, the bundler is accepting but not including",
			}, []string{"status"}),

		numWalletDeployments: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_wallet_deployments_total",
				Help:      "The number of smart wallets deployed through an operation carrying initCode",
			}),

		numSessionSignatures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_session_signatures_total",
				Help:      "The number of session key signing attempts by outcome (signed or denied)",
			}, []string{"status"}),
	}
}

func (m *WalletMetrics) IncUserOp(status string) {
	if m == nil {
		return
	}
	m.numUserOps.WithLabelValues(status).Inc()
}

func (m *WalletMetrics) IncWalletDeployment() {
	if m == nil {
		return
	}
	m.numWalletDeployments.Inc()
}

func (m *WalletMetrics) IncSessionSignature(status string) {
	if m == nil {
		return
	}
	m.numSessionSignatures.WithLabelValues(status).Inc()
}
