package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// ProfileMetrics counts profile field updates. It satisfies
// userauth.UpdateRecorder.
type ProfileMetrics struct {
	Updates *prometheus.CounterVec
}

func NewProfileMetrics(reg prometheus.Registerer) *ProfileMetrics {
	m := &ProfileMetrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_updates_total",
			Help:      "Total number of profile field updates, by field and result.",
		}, []string{"field", "result"}),
	}

	reg.MustRegister(m.Updates)
	return m
}

func (m *ProfileMetrics) RecordProfileUpdate(field domain.FieldName, err error) {
	m.Updates.WithLabelValues(string(field), result(err)).Inc()
}
