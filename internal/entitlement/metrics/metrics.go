package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolve outcomes.
const (
	ResolveFound     = "found"
	ResolveExhausted = "exhausted"
	ResolveError     = "error"
)

// Debit outcomes.
const (
	DebitApplied  = "applied"
	DebitRaceLost = "race_lost"
	DebitError    = "error"
)

// Metrics provides observability for the entitlement ledger.
type Metrics struct {
	// Resolve outcomes by the requested primary type.
	ResolveOutcome *prometheus.CounterVec

	// Debit outcomes by the type the order was resolved for.
	DebitOutcome *prometheus.CounterVec

	// Verifications delivered without a matching debit.
	UncompensatedConsumptions *prometheus.CounterVec

	// Operations that failed, so nothing was charged.
	OperationFailures *prometheus.CounterVec

	ResolveLatency   prometheus.Histogram
	OperationLatency *prometheus.HistogramVec
}

// New registers the ledger metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the ledger metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ResolveOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_ledger_resolve_total",
			Help: "Order resolutions by requested type and outcome",
		}, []string{"type", "outcome"}),

		DebitOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_ledger_debit_total",
			Help: "Debit attempts after successful operations by outcome",
		}, []string{"type", "outcome"}),

		UncompensatedConsumptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_ledger_uncompensated_consumptions_total",
			Help: "Verifications delivered whose debit could not be applied",
		}, []string{"type"}),

		OperationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_ledger_operation_failures_total",
			Help: "Metered operations that failed and were not charged",
		}, []string{"type"}),

		ResolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_ledger_resolve_duration_seconds",
			Help:    "Duration of order resolution",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verigate_ledger_operation_duration_seconds",
			Help:    "Duration of metered operations by resolved type",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),
	}
}

func (m *Metrics) IncrementResolve(verificationType, outcome string) {
	if m != nil {
		m.ResolveOutcome.WithLabelValues(verificationType, outcome).Inc()
	}
}

func (m *Metrics) IncrementDebit(verificationType, outcome string) {
	if m != nil {
		m.DebitOutcome.WithLabelValues(verificationType, outcome).Inc()
	}
}

func (m *Metrics) IncrementUncompensated(verificationType string) {
	if m != nil {
		m.UncompensatedConsumptions.WithLabelValues(verificationType).Inc()
	}
}

func (m *Metrics) IncrementOperationFailures(verificationType string) {
	if m != nil {
		m.OperationFailures.WithLabelValues(verificationType).Inc()
	}
}

func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveOperationLatency(verificationType string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(verificationType).Observe(d.Seconds())
	}
}
