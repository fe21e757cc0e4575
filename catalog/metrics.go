package catalog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the catalog service.
type Metrics struct {
	Registry        *prometheus.Registry
	RefreshTotal    *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	RefreshFailures *prometheus.CounterVec
	Books           prometheus.Gauge
	Categories      prometheus.Gauge
	ValidationRows  *prometheus.GaugeVec
	QueryCache      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	refreshTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Total refresh attempts by result.",
		},
		[]string{"result"},
	)
	refreshDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_refresh_duration_seconds",
			Help:    "Time spent reading, validating and publishing the source file.",
			Buckets: prometheus.DefBuckets,
		},
	)
	refreshFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_failures_total",
			Help: "Total failed refreshes by reason.",
		},
		[]string{"reason"},
	)
	books := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_books",
			Help: "Books in the published generation.",
		},
	)
	categories := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_categories",
			Help: "Distinct categories in the published generation.",
		},
	)
	validationRows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_validation_rows",
			Help: "Rows per outcome in the last validation report.",
		},
		[]string{"outcome"},
	)
	queryCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_query_cache_total",
			Help: "Query result cache lookups by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(refreshTotal, refreshDuration, refreshFailures, books, categories, validationRows, queryCache)

	return &Metrics{
		Registry:        registry,
		RefreshTotal:    refreshTotal,
		RefreshDuration: refreshDuration,
		RefreshFailures: refreshFailures,
		Books:           books,
		Categories:      categories,
		ValidationRows:  validationRows,
		QueryCache:      queryCache,
	}
}

// ObserveRefresh records the outcome and duration of one refresh.
func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
	if err != nil {
		m.RefreshTotal.WithLabelValues("failure").Inc()
		m.RefreshFailures.WithLabelValues(failureReason(err)).Inc()
		return
	}
	m.RefreshTotal.WithLabelValues("success").Inc()
}

// SetContents records the size of the published generation.
func (m *Metrics) SetContents(books, categories int) {
	if m == nil {
		return
	}
	m.Books.Set(float64(books))
	m.Categories.Set(float64(categories))
}

// SetValidation records the row outcomes of a validation report.
func (m *Metrics) SetValidation(valid, corrected, rejected int) {
	if m == nil {
		return
	}
	m.ValidationRows.WithLabelValues("valid").Set(float64(valid))
	m.ValidationRows.WithLabelValues("corrected").Set(float64(corrected))
	m.ValidationRows.WithLabelValues("rejected").Set(float64(rejected))
}

// IncQueryCache counts a query result cache hit or miss.
func (m *Metrics) IncQueryCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.QueryCache.WithLabelValues("hit").Inc()
		return
	}
	m.QueryCache.WithLabelValues("miss").Inc()
}
