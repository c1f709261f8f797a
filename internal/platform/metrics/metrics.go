// Package metrics exposes Prometheus counters for control-plane operations.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus counters for fairness and governance operations.
type Metrics struct {
	// registerOnce ensures Prometheus metrics are only registered once
	registerOnce sync.Once

	commitsCounter           prometheus.Counter
	resolutionsCounter       *prometheus.CounterVec
	expiredCounter           prometheus.Counter
	parameterMismatchCounter prometheus.Counter
	ledgerAppendsCounter     prometheus.Counter
	ledgerAppendFailures     prometheus.Counter
	quorumActivationsCounter *prometheus.CounterVec
	verificationCounter      prometheus.Counter
}

// Register registers Prometheus metrics with the given registry.
// If registry is nil, this is a no-op. This method is idempotent;
// subsequent calls after the first successful registration are no-ops.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.commitsCounter = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_commitments_total",
			Help: "Total number of bet commitments issued",
		})

		m.resolutionsCounter = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairplane_resolutions_total",
			Help: "Total number of commitment resolutions by result",
		}, []string{"result"})

		m.expiredCounter = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_commitments_expired_total",
			Help: "Total number of commitments expired without reveal",
		})

		m.parameterMismatchCounter = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_parameter_mismatches_total",
			Help: "Total number of reveal attempts with mismatched bet parameters",
		})

		m.ledgerAppendsCounter = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_ledger_appends_total",
			Help: "Total number of ledger entries appended",
		})

		m.ledgerAppendFailures = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_ledger_append_failures_total",
			Help: "Total number of failed ledger appends",
		})

		m.quorumActivationsCounter = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairplane_quorum_activations_total",
			Help: "Total number of quorum actions activated by kind",
		}, []string{"kind"})

		m.verificationCounter = factory.NewCounter(prometheus.CounterOpts{
			Name: "fairplane_verification_requests_total",
			Help: "Total number of reveal verification requests served",
		})
	})
}

// IncCommit increments the commitment counter.
func (m *Metrics) IncCommit() {
	if m == nil || m.commitsCounter == nil {
		return
	}
	m.commitsCounter.Inc()
}

// IncResolution increments the resolution counter for a result ("win" or "loss").
func (m *Metrics) IncResolution(result string) {
	if m == nil || m.resolutionsCounter == nil {
		return
	}
	m.resolutionsCounter.WithLabelValues(result).Inc()
}

// IncExpired increments the expired-commitment counter.
func (m *Metrics) IncExpired(count int) {
	if m == nil || m.expiredCounter == nil || count <= 0 {
		return
	}
	m.expiredCounter.Add(float64(count))
}

// IncParameterMismatch increments the suspicious-reveal counter.
func (m *Metrics) IncParameterMismatch() {
	if m == nil || m.parameterMismatchCounter == nil {
		return
	}
	m.parameterMismatchCounter.Inc()
}

// IncLedgerAppend increments the ledger append counter.
func (m *Metrics) IncLedgerAppend() {
	if m == nil || m.ledgerAppendsCounter == nil {
		return
	}
	m.ledgerAppendsCounter.Inc()
}

// IncLedgerAppendFailure increments the ledger append failure counter.
func (m *Metrics) IncLedgerAppendFailure() {
	if m == nil || m.ledgerAppendFailures == nil {
		return
	}
	m.ledgerAppendFailures.Inc()
}

// IncQuorumActivation increments the activation counter for an action kind.
func (m *Metrics) IncQuorumActivation(kind string) {
	if m == nil || m.quorumActivationsCounter == nil {
		return
	}
	m.quorumActivationsCounter.WithLabelValues(kind).Inc()
}

// IncVerification increments the verification request counter.
func (m *Metrics) IncVerification() {
	if m == nil || m.verificationCounter == nil {
		return
	}
	m.verificationCounter.Inc()
}
