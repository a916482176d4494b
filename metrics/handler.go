package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry with the Go runtime and process collectors
// and the const labels every service metric carries.
func NewRegistry(service string) (*prometheus.Registry, prometheus.Labels) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, prometheus.Labels{"service": service}
}

// RegisterAt serves the registry in the Prometheus text format at path.
func RegisterAt(app *fiber.App, path string, registry *prometheus.Registry) {
	app.Get(path, adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry: registry,
	})))
}
