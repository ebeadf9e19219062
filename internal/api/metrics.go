package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evalgo.org/mgapphost/pkg/appmodel"
)

var (
	runActiveDesc = prometheus.NewDesc(
		"mgapphost_run_active",
		"Whether the application model is running (1=running, 0=not)",
		nil, nil,
	)

	resourceInfoDesc = prometheus.NewDesc(
		"mgapphost_resource_state_info",
		"Current state of a resource (1=active for the labeled state)",
		[]string{"name", "kind", "state"}, nil,
	)

	endpointPortDesc = prometheus.NewDesc(
		"mgapphost_endpoint_host_port",
		"Host port allocated to a resource endpoint",
		[]string{"name", "endpoint"}, nil,
	)
)

// modelCollector reads the model and run status at scrape time so the
// metrics never go stale between runs.
type modelCollector struct {
	app    *appmodel.Application
	status Status
}

func (c *modelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- runActiveDesc
	ch <- resourceInfoDesc
	ch <- endpointPortDesc
}

func (c *modelCollector) Collect(ch chan<- prometheus.Metric) {
	running := 0.0
	if c.status != nil && c.status.Running() {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(runActiveDesc, prometheus.GaugeValue, running)

	for _, r := range c.app.Resources() {
		state := "pending"
		if c.status != nil {
			if s, ok := c.status.State(r.Name()); ok {
				state = string(s.State)
			}
		}
		ch <- prometheus.MustNewConstMetric(resourceInfoDesc, prometheus.GaugeValue, 1, r.Name(), resourceKind(r), state)

		for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
			alloc, ok := c.app.Allocations().Lookup(r.Name(), ep.Name)
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(endpointPortDesc, prometheus.GaugeValue, float64(alloc.Port), r.Name(), ep.Name)
		}
	}
}

// metricsHandler serves the model collector alongside the Go runtime
// collectors from a registry owned by this server.
func metricsHandler(app *appmodel.Application, status Status) echo.HandlerFunc {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		&modelCollector{app: app, status: status},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
