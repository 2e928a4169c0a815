// Package metrics exposes the scheduler's progress counters as Prometheus
// gauges/counters, grounded on spec.md §7's user-visible progress
// requirements (render rate, buffer occupancy, waste%). The Python original
// prints the same numbers to a tqdm progress bar
// (original_source/threedb/scheduling/base_scheduler.py's
// render_pb/policies_pb postfix dicts); Prometheus metrics are the
// idiomatic Go substitute for a long-running service, scraped rather than
// printed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RendersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "renders_total",
		Help:      "Total number of push requests received, including duplicates.",
	})
	RendersValid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "renders_valid_total",
		Help:      "Number of push requests that matched an outstanding job (non-duplicate).",
	})
	BufferOccupancy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threedb",
		Subsystem: "buffer",
		Name:      "occupied_slots",
		Help:      "Number of result buffer slots currently allocated.",
	})
	BufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threedb",
		Subsystem: "buffer",
		Name:      "capacity_slots",
		Help:      "Total number of result buffer slots.",
	})
	WorkersLinked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "workers_linked",
		Help:      "Number of distinct worker ids currently linked to the scheduler.",
	})
	PendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "pending_jobs",
		Help:      "Number of jobs currently outstanding (sent to zero or more workers, not yet acknowledged).",
	})
	PoliciesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "policies_running",
		Help:      "Number of policy controllers currently driving their search.",
	})
	PoliciesDone = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "threedb",
		Subsystem: "scheduler",
		Name:      "policies_done_total",
		Help:      "Number of policy controllers that have finished their search.",
	})
)

// Registry bundles every collector above into a fresh, package-scoped
// registry rather than relying on prometheus's global DefaultRegisterer, so
// cmd/master can expose it on its own handler without import-order
// surprises in tests that construct a scheduler more than once.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(RendersTotal, RendersValid, BufferOccupancy, BufferCapacity,
		WorkersLinked, PendingJobs, PoliciesRunning, PoliciesDone)
	return reg
}

// WastePercent computes the share of push requests that turned out to be
// duplicates of an already-completed job, matching the Python original's
// `(1 - valid_renders / total_renders) * 100` postfix stat.
func WastePercent(total, valid float64) float64 {
	if total <= 0 {
		return 0
	}
	return (1 - valid/total) * 100
}
