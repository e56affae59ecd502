// Package metrics provides Prometheus metrics for the twitch-sources bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the bridge.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// Webhook Metrics - inbound deliveries from upstream
	webhookDeliveries  *prometheus.CounterVec
	signatureFailures  prometheus.Counter
	eventsDispatched   *prometheus.CounterVec
	revocationsHandled prometheus.Counter

	// Fan-out Metrics
	fanoutPublished   *prometheus.CounterVec
	fanoutDropped     *prometheus.CounterVec
	fanoutSubscribers prometheus.Gauge

	// WebSocket Metrics
	wsSessionsActive *prometheus.GaugeVec
	wsSessionsTotal  *prometheus.CounterVec
	wsMessagesSent   *prometheus.CounterVec

	// Subscription Metrics
	subscriptionsCreated *prometheus.CounterVec
	subscriptionsRemoved prometheus.Counter
	telemetryErrors      prometheus.Counter

	// Upstream Metrics
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	tokenFetches     *prometheus.CounterVec
	tokenCacheHits   prometheus.Counter

	// Simulator Metrics
	simulatorRuns   *prometheus.CounterVec
	simulatorActive prometheus.Gauge

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "twsrc",
		subsystem:        "bridge",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and error type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by error type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by HTTP endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of failed operations in milliseconds", "component", "error_type")

	m.webhookDeliveries = m.counterVec("webhook_deliveries_total",
		"Inbound webhook deliveries by message type and outcome", "message_type", "result")
	m.signatureFailures = m.counter("webhook_signature_failures_total",
		"Inbound deliveries rejected because the HMAC did not match")
	m.eventsDispatched = m.counterVec("events_dispatched_total",
		"Typed events handed to the dispatcher", "event_type")
	m.revocationsHandled = m.counter("user_revocations_total",
		"User authorization revocations applied to the user store")

	m.fanoutPublished = m.counterVec("fanout_published_total",
		"Messages published on fan-out channels", "topic")
	m.fanoutDropped = m.counterVec("fanout_dropped_total",
		"Messages dropped for a subscriber whose buffer was full", "topic")
	m.fanoutSubscribers = m.gauge("fanout_subscribers",
		"Current number of fan-out subscribers")

	m.wsSessionsActive = m.gaugeVec("ws_sessions_active",
		"Currently streaming WebSocket sessions", "topic")
	m.wsSessionsTotal = m.counterVec("ws_sessions_total",
		"WebSocket session attempts by outcome", "topic", "result")
	m.wsMessagesSent = m.counterVec("ws_messages_sent_total",
		"Text frames forwarded to widgets", "topic")

	m.subscriptionsCreated = m.counterVec("subscriptions_created_total",
		"Upstream subscriptions created", "sub_type")
	m.subscriptionsRemoved = m.counter("subscriptions_removed_total",
		"Subscriptions removed after upstream revocation")
	m.telemetryErrors = m.counter("subscription_telemetry_errors_total",
		"Failed connect/disconnect timestamp updates")

	m.upstreamRequests = m.counterVec("upstream_requests_total",
		"Calls to the platform API by call and status", "call", "status")
	m.upstreamLatency = m.histogramVec("upstream_latency_milliseconds",
		"Platform API latency in milliseconds", "call")
	m.tokenFetches = m.counterVec("app_token_fetches_total",
		"App token fetches by result", "result")
	m.tokenCacheHits = m.counter("app_token_cache_hits_total",
		"App token requests served from cache")

	m.simulatorRuns = m.counterVec("simulator_runs_total",
		"Test event simulator runs by widget and result", "widget", "result")
	m.simulatorActive = m.gauge("simulator_active_runs",
		"Simulator runs currently in flight")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Current heap allocation in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Current number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		ConstLabels: m.customLabels,
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records how long a failed operation took.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// RecordWebhookDelivery counts an inbound delivery outcome.
func RecordWebhookDelivery(messageType, result string) {
	globalManager.webhookDeliveries.WithLabelValues(messageType, result).Inc()
}

// RecordSignatureFailure counts an HMAC mismatch.
func RecordSignatureFailure() {
	globalManager.signatureFailures.Inc()
}

// RecordEventDispatched counts a typed event reaching the dispatcher.
func RecordEventDispatched(eventType string) {
	globalManager.eventsDispatched.WithLabelValues(eventType).Inc()
}

// RecordRevocation counts a user revocation applied to the user store.
func RecordRevocation() {
	globalManager.revocationsHandled.Inc()
}

// RecordPublish counts a fan-out publish.
func RecordPublish(topic string) {
	globalManager.fanoutPublished.WithLabelValues(topic).Inc()
}

// RecordDrop counts a message dropped for a slow subscriber.
func RecordDrop(topic string) {
	globalManager.fanoutDropped.WithLabelValues(topic).Inc()
}

// UpdateFanoutSubscribers sets the current subscriber count.
func UpdateFanoutSubscribers(count int) {
	globalManager.fanoutSubscribers.Set(float64(count))
}

// SessionOpened marks a WebSocket session as streaming.
func SessionOpened(topic string) {
	globalManager.wsSessionsActive.WithLabelValues(topic).Inc()
	globalManager.wsSessionsTotal.WithLabelValues(topic, "opened").Inc()
}

// SessionClosed marks a streaming WebSocket session as finished.
func SessionClosed(topic string) {
	globalManager.wsSessionsActive.WithLabelValues(topic).Dec()
}

// RecordSessionRejected counts a session refused before upgrade.
func RecordSessionRejected(topic, reason string) {
	globalManager.wsSessionsTotal.WithLabelValues(topic, reason).Inc()
}

// RecordMessageSent counts a frame forwarded to a widget.
func RecordMessageSent(topic string) {
	globalManager.wsMessagesSent.WithLabelValues(topic).Inc()
}

// RecordSubscriptionCreated counts an upstream subscription creation.
func RecordSubscriptionCreated(subType string) {
	globalManager.subscriptionsCreated.WithLabelValues(subType).Inc()
}

// RecordSubscriptionRemoved counts a subscription removed after revocation.
func RecordSubscriptionRemoved() {
	globalManager.subscriptionsRemoved.Inc()
}

// RecordTelemetryError counts a failed connect/disconnect time update.
func RecordTelemetryError() {
	globalManager.telemetryErrors.Inc()
}

// RecordUpstreamRequest counts a platform API call and its latency.
func RecordUpstreamRequest(call, status string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(call, status).Inc()
	globalManager.upstreamLatency.WithLabelValues(call).Observe(latencyMs)
}

// RecordTokenFetch counts an app token fetch.
func RecordTokenFetch(result string) {
	globalManager.tokenFetches.WithLabelValues(result).Inc()
}

// RecordTokenCacheHit counts a token served from cache.
func RecordTokenCacheHit() {
	globalManager.tokenCacheHits.Inc()
}

// RecordSimulatorRun counts a simulator start attempt.
func RecordSimulatorRun(widget, result string) {
	globalManager.simulatorRuns.WithLabelValues(widget, result).Inc()
}

// UpdateSimulatorActive sets the number of in-flight simulator runs.
func UpdateSimulatorActive(count int) {
	globalManager.simulatorActive.Set(float64(count))
}

// UpdateSystemMemoryUsage updates the memory usage metric.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count metric.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
