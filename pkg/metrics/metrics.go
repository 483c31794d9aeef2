// Package metrics exposes prometheus instrumentation for the routing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskgate_routing_decisions_total",
			Help: "Routing decisions by selected provider",
		},
		[]string{"provider"},
	)

	SubtaskAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskgate_subtask_assignments_total",
			Help: "Subtask model assignments by routing mode",
		},
		[]string{"mode"},
	)

	FallbackSelections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskgate_fallback_selections_total",
			Help: "Times the router fell back to the full registry",
		},
	)

	CycleRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskgate_cycle_repairs_total",
			Help: "Circular dependencies repaired by edge removal",
		},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskgate_active_jobs",
			Help: "Jobs currently in a non-terminal state",
		},
	)
)
