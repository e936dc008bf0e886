package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalyzedTotal counts stateless classifier runs, labeled by severity.
	AnalyzedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "posture",
		Subsystem: "engine",
		Name:      "analyzed_total",
		Help:      "Total number of measurements classified, labeled by severity level.",
	}, []string{"severity"})

	// RecordsCreatedTotal counts persisted posture records.
	RecordsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "posture",
		Subsystem: "engine",
		Name:      "records_created_total",
		Help:      "Total number of posture records persisted.",
	})

	// CoercedSignalsTotal counts signal fields that fell back to 0.0 after
	// failing numeric coercion at the boundary.
	CoercedSignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "posture",
		Subsystem: "engine",
		Name:      "coerced_signals_total",
		Help:      "Total number of signal fields defaulted to zero after failed numeric coercion.",
	})

	// ActiveSessions tracks the current number of active measurement sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "posture",
		Subsystem: "engine",
		Name:      "active_sessions",
		Help:      "Current number of active measurement sessions in the registry.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalyzedTotal,
			RecordsCreatedTotal,
			CoercedSignalsTotal,
			ActiveSessions,
		)
	})
}
