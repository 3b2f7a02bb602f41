package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics tracks calls to the SILL API.
type BackendMetrics struct {
	CallDuration       *prometheus.HistogramVec
	CallsTotal         *prometheus.CounterVec
	Retries            *prometheus.CounterVec
	BreakerState       prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec
}

func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	m := &BackendMetrics{
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Duration of SILL API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Total number of SILL API calls, by procedure and result.",
		}, []string{"procedure", "result"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Total number of retried SILL API queries.",
		}, []string{"procedure"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state changes, by new state.",
		}, []string{"state"}),
	}

	reg.MustRegister(m.CallDuration, m.CallsTotal, m.Retries, m.BreakerState, m.BreakerTransitions)
	return m
}

func (m *BackendMetrics) RecordCall(procedure string, d time.Duration, err error) {
	m.CallDuration.WithLabelValues(procedure).Observe(d.Seconds())
	m.CallsTotal.WithLabelValues(procedure, result(err)).Inc()
}

func (m *BackendMetrics) RecordRetry(procedure string) {
	m.Retries.WithLabelValues(procedure).Inc()
}

// RecordBreakerState takes the state name as printed by failsafe-go.
func (m *BackendMetrics) RecordBreakerState(state string) {
	m.BreakerTransitions.WithLabelValues(state).Inc()
	m.BreakerState.Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
