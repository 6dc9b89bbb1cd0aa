package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	EntriesTotal    prometheus.Counter
	ProductsTotal   prometheus.Counter
	UnparsedTotal   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmh_requests_total",
			Help: "Total HTTP requests issued to the portal by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fmh_request_duration_seconds",
			Help:    "HTTP request latency for portal requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	entries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fmh_entries_total",
			Help: "Total application list entries extracted.",
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fmh_products_total",
			Help: "Total product lines extracted from detail pages.",
		},
	)
	unparsed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmh_unparsed_total",
			Help: "Cells or product names that did not match the expected format.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmh_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, entries, products, unparsed, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		EntriesTotal:    entries,
		ProductsTotal:   products,
		UnparsedTotal:   unparsed,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddEntries increments the extracted entries counter.
func (m *Metrics) AddEntries(n int) {
	if m == nil {
		return
	}
	m.EntriesTotal.Add(float64(n))
}

// AddProducts increments the extracted product lines counter.
func (m *Metrics) AddProducts(n int) {
	if m == nil {
		return
	}
	m.ProductsTotal.Add(float64(n))
}

// IncUnparsed counts a value that failed normalization.
func (m *Metrics) IncUnparsed(field string) {
	if m == nil {
		return
	}
	m.UnparsedTotal.WithLabelValues(field).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
