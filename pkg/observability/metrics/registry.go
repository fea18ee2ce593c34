// Package metrics exposes the coordinator's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a private Prometheus registry preloaded with runtime, process,
// build and management HTTP collectors. Each instance is independent, so
// tests can build as many as they like.
type Registry struct {
	*prometheus.Registry
}

// NewRegistry registers components (client cache, refresher, scheduler
// collectors) next to the defaults. It panics on duplicate registration.
func NewRegistry(components ...prometheus.Collector) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	reg.MustRegister(httpCollectors()...)
	reg.MustRegister(components...)
	return &Registry{Registry: reg}
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.Registry
}
