package clientcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mountsync_client_cache_entries",
			Help: "Current number of cached admin clients",
		},
		[]string{"cache"},
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_client_cache_evictions_total",
			Help: "Total number of admin clients removed from the cache",
		},
		[]string{"cache", "reason"},
	)

	cacheCreatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mountsync_client_cache_creates_total",
			Help: "Total number of admin client factory invocations",
		},
		[]string{"cache", "status"},
	)
)

// Collectors returns the cache collectors for registration in a metrics registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{cacheEntries, cacheEvictionsTotal, cacheCreatesTotal}
}

func setCacheEntries(name string, size int) {
	cacheEntries.WithLabelValues(name).Set(float64(size))
}

func recordCacheEviction(name, reason string) {
	cacheEvictionsTotal.WithLabelValues(name, reason).Inc()
}

func recordCacheCreate(name, status string) {
	cacheCreatesTotal.WithLabelValues(name, status).Inc()
}
