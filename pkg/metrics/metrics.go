// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Vault metrics
	ChunksStored  prometheus.Counter
	VaultSearches *prometheus.CounterVec

	// Upload outcomes: processed, empty or failed
	Uploads *prometheus.CounterVec
}

// New creates a collector with its own registry, so several servers in one
// process (tests included) never collide on registration.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	chunksStored := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_chunks_stored_total",
			Help:      "Total number of chunks written to the vault",
		},
	)

	vaultSearches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_searches_total",
			Help:      "Total number of vault similarity searches",
		},
		[]string{"status"},
	)

	uploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of file uploads by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		chunksStored,
		vaultSearches,
		uploads,
	)

	return &Collector{
		registry:      registry,
		HTTPRequests:  httpRequests,
		HTTPDuration:  httpDuration,
		ChunksStored:  chunksStored,
		VaultSearches: vaultSearches,
		Uploads:       uploads,
	}
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveStored(n int) {
	if c == nil {
		return
	}
	c.ChunksStored.Add(float64(n))
}

func (c *Collector) ObserveSearch(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.VaultSearches.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveUpload(outcome string) {
	if c == nil {
		return
	}
	c.Uploads.WithLabelValues(outcome).Inc()
}
