package refresher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cycleStatusOK          = "ok"
	cycleStatusPartial     = "partial"
	cycleStatusTimeout     = "timeout"
	cycleStatusInterrupted = "interrupted"
	cycleStatusEmpty       = "empty"
	cycleStatusError       = "error"
	cycleStatusSkipped     = "skipped"

	nodeOutcomeSuccess         = "success"
	nodeOutcomeFailure         = "failure"
	nodeOutcomeError           = "error"
	nodeOutcomeTimeout         = "timeout"
	nodeOutcomeCreationFailure = "creation_failure"
)

var (
	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_refresh_cycles_total",
			Help: "Total number of mount table refresh cycles by status",
		},
		[]string{"status"},
	)

	refreshNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_refresh_nodes_total",
			Help: "Total number of router refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	refreshCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mountsync_refresh_cycle_duration_seconds",
			Help:    "Duration of mount table refresh cycles",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	refreshInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mountsync_refresh_tasks_inflight",
			Help: "Current number of router refresh calls still running",
		},
	)

	sweepEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mountsync_sweeper_evicted_total",
			Help: "Total number of admin clients evicted by the periodic sweep",
		},
	)
)

// Collectors returns the refresher collectors for registration in a metrics registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshCyclesTotal,
		refreshNodesTotal,
		refreshCycleDuration,
		refreshInFlight,
		sweepEvictedTotal,
	}
}

func recordCycle(status string, elapsed time.Duration) {
	refreshCyclesTotal.WithLabelValues(status).Inc()
	if status != cycleStatusSkipped {
		refreshCycleDuration.Observe(elapsed.Seconds())
	}
}

func recordNode(outcome string) {
	refreshNodesTotal.WithLabelValues(outcome).Inc()
}

func recordSweep(evicted int) {
	sweepEvictedTotal.Add(float64(evicted))
}
