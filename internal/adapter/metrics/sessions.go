package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics tracks the per-browser-session registry.
type SessionMetrics struct {
	Active  prometheus.Gauge
	Created prometheus.Counter
	Evicted *prometheus.CounterVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of browser sessions currently held in memory.",
		}),
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of initialized browser sessions.",
		}),
		Evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_dropped_total",
			Help:      "Total number of dropped browser sessions, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.Active, m.Created, m.Evicted)
	return m
}

func (m *SessionMetrics) SessionCreated() {
	m.Created.Inc()
	m.Active.Inc()
}

// SessionDropped is called with "idle", "login" or "logout".
func (m *SessionMetrics) SessionDropped(reason string) {
	m.Evicted.WithLabelValues(reason).Inc()
	m.Active.Dec()
}
