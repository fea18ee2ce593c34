package scheduler

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	runStatusOK        = "ok"
	runStatusError     = "error"
	runStatusSkipped   = "skipped"
	runStatusLockError = "lock_error"
)

var (
	schedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_scheduler_runs_total",
			Help: "Total number of scheduled job runs by status",
		},
		[]string{"job", "status"},
	)

	schedulerRunsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mountsync_scheduler_runs_inflight",
			Help: "Current number of in-flight scheduled job runs",
		},
		[]string{"job"},
	)

	schedulerLockRenewTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_scheduler_lock_renew_total",
			Help: "Total number of refresh lease renew operations",
		},
		[]string{"job", "status"},
	)
)

// Collectors returns the scheduler metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{schedulerRunsTotal, schedulerRunsInFlight, schedulerLockRenewTotal}
}

func recordSchedulerRun(job, status string) {
	schedulerRunsTotal.WithLabelValues(
		normalizeSchedulerLabel(job),
		normalizeSchedulerLabel(status),
	).Inc()
}

func incrementSchedulerInFlight(job string) {
	schedulerRunsInFlight.WithLabelValues(normalizeSchedulerLabel(job)).Inc()
}

func decrementSchedulerInFlight(job string) {
	schedulerRunsInFlight.WithLabelValues(normalizeSchedulerLabel(job)).Dec()
}

func recordSchedulerLockRenew(job, status string) {
	schedulerLockRenewTotal.WithLabelValues(
		normalizeSchedulerLabel(job),
		normalizeSchedulerLabel(status),
	).Inc()
}

func normalizeSchedulerLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
