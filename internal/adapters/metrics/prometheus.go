// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	yearUploads         *prometheus.CounterVec
	yearDuration        prometheus.Histogram
	fileUploads         *prometheus.CounterVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	markersPruned       *prometheus.CounterVec
	failuresRecorded    prometheus.Counter
	staleYears          prometheus.Gauge
	lastRunTimestamp    prometheus.Gauge
	lastRunSuccess      prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector registered with reg.
// A nil reg registers with the default registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "archivesync"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		yearUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "year_uploads_total",
				Help:      "Total number of year upload units by outcome",
			},
			[]string{"status"},
		),

		yearDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "year_upload_duration_seconds",
				Help:      "Duration of one year's upload unit in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),

		fileUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_uploads_total",
				Help:      "Total number of file uploads by kind and outcome",
			},
			[]string{"kind", "status"},
		),

		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		markersPruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "markers_pruned_total",
				Help:      "Total number of superseded markers deleted",
			},
			[]string{"store"},
		),

		failuresRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_recorded_total",
				Help:      "Total number of entries appended to the failure log",
			},
		),

		staleYears: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stale_years",
				Help:      "Number of years found stale by the last comparison",
			},
		),

		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed reconciliation pass",
			},
		),

		lastRunSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if every stale year was committed by the last pass",
			},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncYearUploads counts a finished year unit.
func (c *Collector) IncYearUploads(success bool) {
	c.yearUploads.WithLabelValues(statusLabel(success)).Inc()
}

// ObserveYearDuration records a year unit's duration.
func (c *Collector) ObserveYearDuration(duration time.Duration) {
	c.yearDuration.Observe(duration.Seconds())
}

// IncFileUploads counts a single file upload.
func (c *Collector) IncFileUploads(kind string, success bool) {
	c.fileUploads.WithLabelValues(kind, statusLabel(success)).Inc()
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, statusLabel(success)).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddMarkersPruned counts markers deleted from store.
func (c *Collector) AddMarkersPruned(store string, count int) {
	c.markersPruned.WithLabelValues(store).Add(float64(count))
}

// IncFailuresRecorded counts a failure log append.
func (c *Collector) IncFailuresRecorded() {
	c.failuresRecorded.Inc()
}

// SetStaleYears sets the stale years gauge.
func (c *Collector) SetStaleYears(count int) {
	c.staleYears.Set(float64(count))
}

// SetLastRun records the outcome of the last pass.
func (c *Collector) SetLastRun(t time.Time, ok bool) {
	c.lastRunTimestamp.Set(float64(t.Unix()))
	if ok {
		c.lastRunSuccess.Set(1)
	} else {
		c.lastRunSuccess.Set(0)
	}
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath bounds label cardinality for unexpected paths.
func normalizePath(path string) string {
	switch {
	case len(path) > 20:
		return path[:20] + "..."
	default:
		return path
	}
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
