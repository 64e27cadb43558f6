package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the QR code service
type PrometheusMetrics struct {
	// QR code metrics
	QRCodesGeneratedTotal *prometheus.CounterVec
	QRCodesScannedTotal   *prometheus.CounterVec
	DecodeFailuresTotal   *prometheus.CounterVec
	EncodeDuration        prometheus.Histogram
	DecodeDuration        prometheus.Histogram

	// Frame analysis metrics
	FramesAnalyzedTotal prometheus.Counter
	FramesDroppedTotal  prometheus.Counter

	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	HistoryRecords            prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	StreamClients       prometheus.Gauge

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		QRCodesGeneratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_generated_total",
				Help: "Total number of QR codes generated",
			},
			[]string{"type"},
		),

		QRCodesScannedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_scanned_total",
				Help: "Total number of QR codes decoded from images",
			},
			[]string{"type", "source"},
		),

		DecodeFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_decode_failures_total",
				Help: "Total number of images in which no QR code could be decoded",
			},
			[]string{"source", "reason"},
		),

		EncodeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrcode_encode_duration_seconds",
				Help:    "Time spent encoding and rendering a QR code",
				Buckets: prometheus.DefBuckets,
			},
		),

		DecodeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrcode_decode_duration_seconds",
				Help:    "Time spent decoding a single image",
				Buckets: prometheus.DefBuckets,
			},
		),

		FramesAnalyzedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "qrcode_frames_analyzed_total",
				Help: "Total number of frames handed to the analyzer worker",
			},
		),

		FramesDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "qrcode_frames_dropped_total",
				Help: "Total number of pending frames replaced by a newer frame",
			},
		),

		CacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_cache_requests_total",
				Help: "Render cache lookups by result",
			},
			[]string{"result"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qrcode_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HistoryRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrcode_history_records",
				Help: "Number of records currently in the history",
			},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_notifications_sent_total",
				Help: "Total number of webhook notifications delivered",
			},
			[]string{"action"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_notification_failures_total",
				Help: "Total number of webhook notifications that failed",
			},
			[]string{"action", "reason"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrcode_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qrcode_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrcode_stream_clients",
				Help: "Number of connected live-history stream clients",
			},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrcode_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qrcode_component_health",
				Help: "Health status of application components (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrcode_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrcode_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordGenerated records a generated QR code
func (m *PrometheusMetrics) RecordGenerated(qrType string, duration time.Duration) {
	m.QRCodesGeneratedTotal.WithLabelValues(qrType).Inc()
	m.EncodeDuration.Observe(duration.Seconds())
}

// RecordScanned records a decoded QR code
func (m *PrometheusMetrics) RecordScanned(qrType, source string) {
	m.QRCodesScannedTotal.WithLabelValues(qrType, source).Inc()
}

// RecordDecode records the duration of a decode attempt and its failure reason, if any
func (m *PrometheusMetrics) RecordDecode(source, failureReason string, duration time.Duration) {
	m.DecodeDuration.Observe(duration.Seconds())
	if failureReason != "" {
		m.DecodeFailuresTotal.WithLabelValues(source, failureReason).Inc()
	}
}

// RecordFrameAnalyzed records a frame picked up by the analyzer worker
func (m *PrometheusMetrics) RecordFrameAnalyzed() {
	m.FramesAnalyzedTotal.Inc()
}

// RecordFrameDropped records a pending frame replaced by a newer one
func (m *PrometheusMetrics) RecordFrameDropped() {
	m.FramesDroppedTotal.Inc()
}

// RecordCacheLookup records a cache hit, miss or error
func (m *PrometheusMetrics) RecordCacheLookup(result string) {
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateHistoryRecords sets the history size gauge
func (m *PrometheusMetrics) UpdateHistoryRecords(count int64) {
	m.HistoryRecords.Set(float64(count))
}

// RecordNotificationSent records a delivered webhook
func (m *PrometheusMetrics) RecordNotificationSent(action string) {
	m.NotificationsSentTotal.WithLabelValues(action).Inc()
}

// RecordNotificationFailure records a failed webhook
func (m *PrometheusMetrics) RecordNotificationFailure(action, reason string) {
	m.NotificationFailuresTotal.WithLabelValues(action, reason).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates application uptime
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates component health status
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates memory usage
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates goroutine count
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
