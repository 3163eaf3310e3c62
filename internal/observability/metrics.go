// Package observability provides Prometheus metrics for the audio
// service, organized into typed metric groups registered on a dedicated
// registry.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiosvc/audiod/internal/errors"
)

// Metrics aggregates all metric groups on one registry.
type Metrics struct {
	registry *prometheus.Registry

	Stream *StreamMetrics
	Graph  *GraphMetrics
}

// NewMetrics creates the registry and all metric groups.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stream, err := NewStreamMetrics(registry)
	if err != nil {
		return nil, err
	}
	graph, err := NewGraphMetrics(registry)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		registry: registry,
		Stream:   stream,
		Graph:    graph,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func registerAll(registerer prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := registerer.Register(c); err != nil {
			return errors.New(err).
				Component("observability").
				Category(errors.CategoryConfig).
				Context("operation", "register-metric").Build()
		}
	}
	return nil
}
