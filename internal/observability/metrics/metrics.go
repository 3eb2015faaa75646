package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for the booking and notification flows.
type SchedulingMetrics struct {
	conflictsTotal *prometheus.CounterVec
	workflowsTotal *prometheus.CounterVec
	actionsTotal   *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking attempts rejected by the conflict guard",
		}, []string{"reason"}),
		workflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "workflow",
			Name:      "fired_total",
			Help:      "Workflow trigger firings by type and outcome",
		}, []string{"type", "outcome"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "workflow",
			Name:      "actions_total",
			Help:      "Inbound action-link activations by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.conflictsTotal, m.workflowsTotal, m.actionsTotal)
	return m
}

func (m *SchedulingMetrics) ObserveConflict(reason string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(reason).Inc()
}

func (m *SchedulingMetrics) ObserveWorkflowFired(workflowType, outcome string) {
	if m == nil {
		return
	}
	m.workflowsTotal.WithLabelValues(workflowType, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(kind, outcome).Inc()
}
