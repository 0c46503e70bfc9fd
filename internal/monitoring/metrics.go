// Package monitoring exposes Prometheus metrics for the scan pipeline and
// watches stored run history for failures.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CacheLookupsTotal       *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheSaveErrorsTotal    prometheus.Counter

	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec

	DocumentsTotal    *prometheus.CounterVec
	DocumentDuration  prometheus.Histogram
	PublicationsTotal *prometheus.CounterVec
	InFlight          prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with reg.
//
// Metrics:
//   - gazette_cache_lookups_total{result} - hit or miss
//   - gazette_cache_invalidations_total{reason} - expired, dangling, manual, age
//   - gazette_cache_save_errors_total
//   - gazette_extractions_total{strategy,status}
//   - gazette_extraction_duration_seconds{strategy}
//   - gazette_documents_total{status} - success, failed, cancelled
//   - gazette_document_duration_seconds
//   - gazette_publications_total{review}
//   - gazette_documents_in_flight
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_cache_lookups_total",
				Help: "Text cache lookups by result",
			},
			[]string{"result"},
		),
		CacheInvalidationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_cache_invalidations_total",
				Help: "Text cache entries removed, by reason",
			},
			[]string{"reason"},
		),
		CacheSaveErrorsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "gazette_cache_save_errors_total",
				Help: "Text cache writes that failed",
			},
		),
		ExtractionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_extractions_total",
				Help: "Extraction attempts by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		ExtractionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazette_extraction_duration_seconds",
				Help:    "Time spent extracting a document, by winning strategy",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"strategy"},
		),
		DocumentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_documents_total",
				Help: "Documents finished by the batch coordinator, by status",
			},
			[]string{"status"},
		),
		DocumentDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gazette_document_duration_seconds",
				Help:    "End-to-end time to process one document",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
			},
		),
		PublicationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_publications_total",
				Help: "Scored publications emitted, by manual review flag",
			},
			[]string{"review"},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "gazette_documents_in_flight",
				Help: "Documents currently being processed",
			},
		),
	}
}

// Default returns the process-wide metrics registered with the default
// Prometheus registry. It is safe to call repeatedly.
func Default() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation records n removed cache entries.
func (m *Metrics) RecordCacheInvalidation(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordCacheSaveError records a failed cache write.
func (m *Metrics) RecordCacheSaveError() {
	if m == nil {
		return
	}
	m.CacheSaveErrorsTotal.Inc()
}

// RecordExtraction records one extraction result.
func (m *Metrics) RecordExtraction(strategy string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
		m.ExtractionDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
	m.ExtractionsTotal.WithLabelValues(strategy, status).Inc()
}

// DocumentStarted marks a document as in flight.
func (m *Metrics) DocumentStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// DocumentFinished records a finished document and its publications.
func (m *Metrics) DocumentFinished(status string, elapsed time.Duration, publications, needsReview int) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.DocumentsTotal.WithLabelValues(status).Inc()
	m.DocumentDuration.Observe(elapsed.Seconds())
	if n := publications - needsReview; n > 0 {
		m.PublicationsTotal.WithLabelValues("false").Add(float64(n))
	}
	if needsReview > 0 {
		m.PublicationsTotal.WithLabelValues("true").Add(float64(needsReview))
	}
}

// DocumentSkipped records a document that was never started.
func (m *Metrics) DocumentSkipped(status string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(status).Inc()
}
