package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_settled_total",
		Help: "Work items whose every line was fully deducted.",
	})

	ItemsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_cancelled_total",
		Help: "Work items resolved by cancelling the order for insufficient stock.",
	})

	ItemsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_retried_total",
		Help: "Work items left unacknowledged for queue redelivery.",
	})

	ItemsPoisoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_poisoned_total",
		Help: "Malformed work items acknowledged without processing.",
	})

	DecrementRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_decrement_races_total",
		Help: "Conditional decrements that lost a race and forced a replan.",
	})

	RestoresApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_restores_applied_total",
		Help: "Cancelled orders whose deducted stock was credited back.",
	})

	RestoresSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_restores_skipped_total",
		Help: "Restore invocations that found the restore marker already present.",
	})

	SweepsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_sweeps_total",
		Help: "Reconciliation sweeper passes.",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_sweep_failures_total",
		Help: "Orders whose restoration failed during a sweep.",
	})
)
