// Package metrics exposes Prometheus collectors for the execution core: the
// executor's tick loop, task dispatch, and budget enforcement, grounded on
// the pack's common prometheus/client_golang idiom (package-level
// collectors registered once, updated from call sites).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TickDuration observes how long one Executor.Tick pass takes.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "agentflow",
	Subsystem: "executor",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one executor tick across all active projects.",
	Buckets:   prometheus.DefBuckets,
})

// TasksDispatched counts tasks handed to a worker goroutine, by task type.
var TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentflow",
	Subsystem: "executor",
	Name:      "tasks_dispatched_total",
	Help:      "Total tasks dispatched to a worker, labeled by task_type.",
}, []string{"task_type"})

// TaskOutcomes counts terminal task transitions, by outcome
// (completed, failed, cancelled, needs_review).
var TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentflow",
	Subsystem: "executor",
	Name:      "task_outcomes_total",
	Help:      "Total task outcomes, labeled by outcome.",
}, []string{"outcome"})

// BudgetRejections counts Reserve calls that failed with ErrBudgetExceeded,
// by budget period kind (daily, monthly, project).
var BudgetRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentflow",
	Subsystem: "budget",
	Name:      "reservation_rejections_total",
	Help:      "Total budget reservations rejected as over limit, labeled by period kind.",
}, []string{"kind"})

// ToolCalls counts tool invocations via the Tool Registry, by tool name and
// outcome (ok, error).
var ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentflow",
	Subsystem: "agent",
	Name:      "tool_calls_total",
	Help:      "Total tool invocations, labeled by tool name and outcome.",
}, []string{"tool", "outcome"})

// ActiveProjects reports the current count of non-terminal projects, sampled
// once per tick.
var ActiveProjects = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "agentflow",
	Subsystem: "executor",
	Name:      "active_projects",
	Help:      "Current number of projects not yet in a terminal state.",
})
