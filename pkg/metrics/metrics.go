package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the sync subsystem
type Metrics struct {
	PropagationsTotal  prometheus.Counter
	DroppedDispatches  prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
	ReconcileClears    *prometheus.CounterVec
	ReconcileRepairs   prometheus.Counter
	ReconcileConflicts prometheus.Counter
}

// New creates the metric set registered against the given registerer
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PropagationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_propagations_total",
			Help:      "Movement-to-booking patches that changed the booking",
		}),
		DroppedDispatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_dropped_dispatches_total",
			Help:      "Patch dispatches dropped by the reentrancy guard",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_changed_notifications_total",
			Help:      "Data-changed notifications emitted, by source",
		}, []string{"source"}),
		ReconcileClears: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_cleared_refs_total",
			Help:      "Dangling cross-references cleared by reconciliation, by side",
		}, []string{"side"}),
		ReconcileRepairs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_repaired_refs_total",
			Help:      "Booking back-references repaired by reconciliation",
		}),
		ReconcileConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_conflicts_total",
			Help:      "Multi-claimant conflicts reported by reconciliation",
		}),
	}
}
