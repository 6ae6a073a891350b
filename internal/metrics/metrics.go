// Package metrics registers the prometheus counters the core increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MarksWritten counts durable mark upserts (inserts and updates).
	MarksWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_written_total",
		Help: "Attendance marks written to the ledger.",
	})

	// MarkFailures counts per-student failures inside batch marking.
	MarkFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_mark_failures_total",
		Help: "Per-student failures during batch marking.",
	})

	// ReportsBuilt counts report aggregations.
	ReportsBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_reports_built_total",
		Help: "Reports built by the aggregator.",
	})

	// EventsPublished counts broadcast events published.
	EventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_events_published_total",
		Help: "Mutation events published to the broadcast bus.",
	})

	// EventsDropped counts per-subscriber drops from full buffers.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_events_dropped_total",
		Help: "Broadcast events dropped for slow subscribers.",
	})

	// OrphansPruned counts marks removed by self-healing reads.
	OrphansPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_orphans_pruned_total",
		Help: "Orphaned marks pruned on read.",
	})
)

// Register installs all counters on the default registry.
func Register() {
	prometheus.MustRegister(
		MarksWritten,
		MarkFailures,
		ReportsBuilt,
		EventsPublished,
		EventsDropped,
		OrphansPruned,
	)
}
