package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics records purchase attempt outcomes and their latency.
type PurchaseMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewPurchaseMetrics registers the purchase metrics on the provided registerer.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchase_attempt_duration_seconds",
		Help:    "Wall time from intent creation to terminal outcome.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_outcomes_total",
		Help: "Terminal purchase outcomes by status and reason.",
	}, []string{"status", "reason"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "purchase_in_flight",
		Help: "Purchase attempts currently between allowance and purchase confirmation.",
	})
	reg.MustRegister(duration, outcomes, inFlight)
	return &PurchaseMetrics{
		duration: duration,
		outcomes: outcomes,
		inFlight: inFlight,
	}
}

// ObserveOutcome counts a terminal outcome and, when known, its duration.
func (m *PurchaseMetrics) ObserveOutcome(status, reason string, duration time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(status), normalizeReason(reason)).Inc()
	if duration > 0 {
		m.duration.WithLabelValues(normalizeLabel(status)).Observe(duration.Seconds())
	}
}

// Started marks one attempt as entering the ledger phases.
func (m *PurchaseMetrics) Started() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

// Finished releases one in-flight attempt.
func (m *PurchaseMetrics) Finished() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func normalizeReason(reason string) string {
	if reason == "" {
		return "none"
	}
	return reason
}
