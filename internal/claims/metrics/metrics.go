// Package metrics provides observability for the claims module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks claim lifecycle activity.
type Metrics struct {
	// Claims submitted, by rule kind of the matched rule
	ClaimsSubmitted *prometheus.CounterVec

	// Decisions recorded, by outcome
	DecisionsRecorded *prometheus.CounterVec

	// Terminal resolutions, by final state and rule kind
	ClaimsResolved *prometheus.CounterVec

	// Late decisions against already-terminal claims
	LateDecisions prometheus.Counter

	// Full recordDecision critical section latency
	DecisionLatency prometheus.Histogram
}

// New creates a Metrics instance with all claims module metrics registered.
func New() *Metrics {
	return &Metrics{
		ClaimsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "expenseflow_claims_submitted_total",
			Help: "Total expense claims submitted, by matched rule kind",
		}, []string{"rule_kind"}),

		DecisionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "expenseflow_claim_decisions_total",
			Help: "Total approval decisions recorded, by outcome",
		}, []string{"outcome"}),

		ClaimsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "expenseflow_claims_resolved_total",
			Help: "Total claims reaching a terminal state, by state and rule kind",
		}, []string{"state", "rule_kind"}),

		LateDecisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "expenseflow_claim_late_decisions_total",
			Help: "Decisions rejected because the claim was already terminal",
		}),

		DecisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "expenseflow_claim_decision_duration_seconds",
			Help:    "Duration of the record-decision critical section",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementSubmitted records a submitted claim.
func (m *Metrics) IncrementSubmitted(ruleKind string) {
	if m != nil {
		m.ClaimsSubmitted.WithLabelValues(ruleKind).Inc()
	}
}

// IncrementDecision records a ledger append.
func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.DecisionsRecorded.WithLabelValues(outcome).Inc()
	}
}

// IncrementResolved records a terminal transition.
func (m *Metrics) IncrementResolved(state, ruleKind string) {
	if m != nil {
		m.ClaimsResolved.WithLabelValues(state, ruleKind).Inc()
	}
}

// IncrementLateDecision records a decision against a closed claim.
func (m *Metrics) IncrementLateDecision() {
	if m != nil {
		m.LateDecisions.Inc()
	}
}

// ObserveDecisionLatency records the duration of one recordDecision call.
func (m *Metrics) ObserveDecisionLatency(d time.Duration) {
	if m != nil {
		m.DecisionLatency.Observe(d.Seconds())
	}
}
