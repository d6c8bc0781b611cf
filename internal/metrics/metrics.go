// Package metrics exposes Prometheus collectors for the scheduling engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics counts availability checks, slot searches and
// reschedule attempts. A nil *SchedulingMetrics is a valid no-op.
type SchedulingMetrics struct {
	checksTotal      *prometheus.CounterVec
	searchSeconds    *prometheus.HistogramVec
	reschedulesTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "checks_total",
			Help:      "Availability checks by result and reason",
		}, []string{"result", "reason"}),
		searchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "search_seconds",
			Help:      "Latency of next-slot searches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "reschedules_total",
			Help:      "Reschedule attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checksTotal, m.searchSeconds, m.reschedulesTotal)
	return m
}

func (m *SchedulingMetrics) ObserveCheck(result, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.checksTotal.WithLabelValues(result, reason).Inc()
}

func (m *SchedulingMetrics) ObserveSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.searchSeconds.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveReschedule(outcome string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(outcome).Inc()
}
