package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the reference-data cache (software list, agency names).
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	Loads  *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference_cache",
			Name:      "hits_total",
			Help:      "Total number of reference cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference_cache",
			Name:      "misses_total",
			Help:      "Total number of reference cache misses, by layer.",
		}, []string{"layer"}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference_cache",
			Name:      "loads_total",
			Help:      "Total number of reference data loads from the backend, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Loads)
	return m
}

func (m *CacheMetrics) RecordHit(layer string)  { m.Hits.WithLabelValues(layer).Inc() }
func (m *CacheMetrics) RecordMiss(layer string) { m.Misses.WithLabelValues(layer).Inc() }

func (m *CacheMetrics) RecordLoad(err error) {
	m.Loads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
