package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	managementLabels = []string{"method", "route", "status"}

	managementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mountsync",
		Subsystem: "management",
		Name:      "http_request_duration_seconds",
		Help:      "Management HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, managementLabels)

	managementRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mountsync",
		Subsystem: "management",
		Name:      "http_requests_total",
		Help:      "Management HTTP requests served.",
	}, managementLabels)

	managementInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mountsync",
		Subsystem: "management",
		Name:      "http_requests_in_flight",
		Help:      "Management HTTP requests currently being served.",
	})
)

func httpCollectors() []prometheus.Collector {
	return []prometheus.Collector{managementDuration, managementRequests, managementInFlight}
}

// RecordHTTPMetrics records one finished management request. route is the
// matched route template; "" is recorded as "unmatched".
func RecordHTTPMetrics(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	code := strconv.Itoa(status)
	managementDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	managementRequests.WithLabelValues(method, route, code).Inc()
}

func IncrementInFlight() { managementInFlight.Inc() }

func DecrementInFlight() { managementInFlight.Dec() }
