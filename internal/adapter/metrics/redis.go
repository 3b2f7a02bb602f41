package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedisMetrics tracks commands sent to Redis (token store and reference cache).
type RedisMetrics struct {
	OpsTotal     *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	DialErrors   prometheus.Counter
	BreakerState prometheus.Gauge
}

func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	m := &RedisMetrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total number of Redis commands, by command and result.",
		}, []string{"operation", "result"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis commands in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		DialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "dial_errors_total",
			Help:      "Total number of failed Redis connection attempts.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.OpsTotal, m.OpDuration, m.DialErrors, m.BreakerState)
	return m
}

func (m *RedisMetrics) RecordOperation(operation string, d time.Duration, err error) {
	m.OpsTotal.WithLabelValues(operation, result(err)).Inc()
	m.OpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *RedisMetrics) RecordDialError() { m.DialErrors.Inc() }

func (m *RedisMetrics) RecordBreakerState(state string) {
	m.BreakerState.Set(breakerStateValue(state))
}
