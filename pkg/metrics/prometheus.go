// Package metrics provides Prometheus metrics for the civicwatch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline runs and per-source jobs
	runsTotal     prometheus.Counter
	runDuration   prometheus.Histogram
	sourceJobs    *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	fetchLatency  *prometheus.HistogramVec
	itemsFetched  *prometheus.CounterVec
	itemsSkipped  *prometheus.CounterVec
	eventsByState *prometheus.CounterVec

	// Alerts and rules
	alertsTotal      *prometheus.CounterVec
	alertsSuppressed prometheus.Counter
	rulesActive      prometheus.Gauge
	rulesSkipped     prometheus.Gauge

	// Event store
	storeEvents     prometheus.Gauge
	storeOpLatency  *prometheus.HistogramVec
	errorsComponent *prometheus.CounterVec

	// Job queue and worker pool
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerActive       prometheus.Gauge
	workerIdle         prometheus.Gauge

	// HTTP API
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "civicwatch",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounter(m.counterOpts("runs_total", "Pipeline runs started"))
	m.runDuration = auto.NewHistogram(m.histogramOpts("run_duration_milliseconds", "Wall time of a full pipeline run"))
	m.sourceJobs = auto.NewCounterVec(m.counterOpts("source_jobs_total", "Source jobs by terminal state"), []string{"source", "outcome"})
	m.jobDuration = auto.NewHistogramVec(m.histogramOpts("job_duration_milliseconds", "Wall time of one source job"), []string{"source"})
	m.fetchLatency = auto.NewHistogramVec(m.histogramOpts("fetch_latency_milliseconds", "Raw record fetch latency"), []string{"source"})
	m.itemsFetched = auto.NewCounterVec(m.counterOpts("items_fetched_total", "Raw records fetched"), []string{"source"})
	m.itemsSkipped = auto.NewCounterVec(m.counterOpts("items_skipped_total", "Raw records skipped by adapters"), []string{"source"})
	m.eventsByState = auto.NewCounterVec(m.counterOpts("events_total", "Saved events by change status"), []string{"status"})

	m.alertsTotal = auto.NewCounterVec(m.counterOpts("alerts_total", "Alerts generated by severity"), []string{"severity"})
	m.alertsSuppressed = auto.NewCounter(m.counterOpts("alerts_suppressed_total", "Alerts dropped by the suppression window"))
	m.rulesActive = auto.NewGauge(m.gaugeOpts("rules_active", "Rules taking part in evaluation"))
	m.rulesSkipped = auto.NewGauge(m.gaugeOpts("rules_skipped", "Malformed rules dropped at load"))

	m.storeEvents = auto.NewGauge(m.gaugeOpts("store_events", "Events held by the event store"))
	m.storeOpLatency = auto.NewHistogramVec(m.histogramOpts("store_operation_latency_milliseconds", "Event store operation latency"), []string{"operation"})
	m.errorsComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "error_type"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Source jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Job queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Source jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Source jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueues"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Workers in the source job pool"))
	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active", "Workers running a source job"))
	m.workerIdle = auto.NewGauge(m.gaugeOpts("worker_idle", "Workers waiting for a source job"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration"), []string{"endpoint", "method", "status_code"})
}

// RecordRun counts a pipeline run and its duration.
func RecordRun(durationMs float64) {
	globalManager.runsTotal.Inc()
	globalManager.runDuration.Observe(durationMs)
}

// RecordSourceJob counts a finished source job by terminal state.
func RecordSourceJob(source, outcome string, durationMs float64) {
	globalManager.sourceJobs.WithLabelValues(source, outcome).Inc()
	globalManager.jobDuration.WithLabelValues(source).Observe(durationMs)
}

// RecordFetch records fetch latency and the number of raw records returned.
func RecordFetch(source string, latencyMs float64, items int) {
	globalManager.fetchLatency.WithLabelValues(source).Observe(latencyMs)
	globalManager.itemsFetched.WithLabelValues(source).Add(float64(items))
}

// RecordSkipped counts adapter skips for a source.
func RecordSkipped(source string, n int) {
	if n > 0 {
		globalManager.itemsSkipped.WithLabelValues(source).Add(float64(n))
	}
}

// RecordEventStatus counts one saved event by change status.
func RecordEventStatus(status string) {
	globalManager.eventsByState.WithLabelValues(status).Inc()
}

// RecordAlert counts one generated alert.
func RecordAlert(severity string) {
	globalManager.alertsTotal.WithLabelValues(severity).Inc()
}

// RecordAlertSuppressed counts one alert dropped by the suppression window.
func RecordAlertSuppressed() {
	globalManager.alertsSuppressed.Inc()
}

// UpdateRules sets the active and skipped rule gauges.
func UpdateRules(active, skipped int) {
	globalManager.rulesActive.Set(float64(active))
	globalManager.rulesSkipped.Set(float64(skipped))
}

// UpdateStoreEvents sets the stored event count.
func UpdateStoreEvents(count int) {
	globalManager.storeEvents.Set(float64(count))
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdle.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
