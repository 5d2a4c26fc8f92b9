package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// metrics holds the engine-wide Prometheus instrumentation, grounded on the
// daunrodo downloader's internal/observability/metrics.go shape: one
// registry, promauto-built collectors, namespaced under "galleryvault".
type metrics struct {
	registry *prometheus.Registry

	tasksCreated   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksActive    prometheus.Gauge

	bytesDownloaded prometheus.Counter

	searchRequests *prometheus.CounterVec
	exportsTotal   *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &metrics{
		registry: registry,

		tasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "tasks_created_total",
			Help:      "Total number of download tasks created",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "tasks_completed_total",
			Help:      "Total number of download tasks completed",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "tasks_failed_total",
			Help:      "Total number of download tasks that failed",
		}),
		tasksCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "tasks_cancelled_total",
			Help:      "Total number of download tasks cancelled",
		}),
		tasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "tasks_active",
			Help:      "Number of download tasks currently downloading",
		}),
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Total bytes of page images downloaded",
		}),
		searchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search queries resolved",
		}, []string{"outcome"}),
		exportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "galleryvault",
			Subsystem: "export",
			Name:      "requests_total",
			Help:      "Total number of export operations",
		}, []string{"format", "outcome"}),
	}
}

// Handler exposes the registry over HTTP for an external scraper, should
// the host process choose to serve it.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
