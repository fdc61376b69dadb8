package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "perfreview"

// Metrics groups the Prometheus collectors shared by the review engine
// and the change-tracking pipeline.
type Metrics struct {
	AuditRecords       *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	AuditDropped       prometheus.Counter
	SnapshotFailures   *prometheus.CounterVec
	ReviewTransitions  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Audit records persisted, by outcome status.",
		}, []string{"status"}),
		AuditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit records that could not be persisted.",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit records discarded because the write queue was full or closed.",
		}),
		SnapshotFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "snapshot_failures_total",
			Help:      "Before-state resolutions that returned nothing, by reason.",
		}, []string{"reason"}),
		ReviewTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "transitions_total",
			Help:      "Review lifecycle transitions applied, by event and resulting status.",
		}, []string{"event", "to"}),
	}

	reg.MustRegister(
		m.AuditRecords,
		m.AuditWriteFailures,
		m.AuditDropped,
		m.SnapshotFailures,
		m.ReviewTransitions,
	)
	return m
}

// NewTestMetrics returns collectors registered on a private registry.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
