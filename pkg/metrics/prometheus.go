// Package metrics provides Prometheus metrics for the steamwatch service.
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
	registry         prometheus.Registerer

	// Check cycle
	cyclesTotal    prometheus.Counter
	cyclesSkipped  prometheus.Counter
	pendingCycles  prometheus.Gauge
	cycleDuration  prometheus.Histogram
	trackedTargets prometheus.Gauge
	targetsChecked *prometheus.CounterVec

	// Inventory retrieval
	fetchAttempts *prometheus.CounterVec
	newItems      prometheus.Counter

	// Delivery
	notifications *prometheus.CounterVec
	botUpdates    *prometheus.CounterVec

	// Storage
	snapshotPruned prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "steamwatch",
		subsystem:        "",
		histogramBuckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)

	m.cyclesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "check_cycles_total",
		Help:      "Total number of completed inventory check cycles",
	})

	m.cyclesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "check_cycles_skipped_total",
		Help:      "Ticks dropped because a cycle was already pending",
	})

	m.pendingCycles = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_cycles",
		Help:      "Check cycles waiting in the queue",
	})

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "check_cycle_duration_seconds",
		Help:      "Wall time of one check cycle in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.trackedTargets = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_targets",
		Help:      "Distinct (account, game) targets in the last cycle",
	})

	m.targetsChecked = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "targets_checked_total",
		Help:      "Targets checked, by result",
	}, []string{"result"})

	m.fetchAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inventory_fetch_attempts_total",
		Help:      "Inventory HTTP attempts, by outcome",
	}, []string{"outcome"})

	m.newItems = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "new_items_total",
		Help:      "Items reported as new across all targets",
	})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_total",
		Help:      "Watcher notifications, by result",
	}, []string{"result"})

	m.botUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bot_updates_total",
		Help:      "Telegram updates handled, by kind",
	}, []string{"kind"})

	m.snapshotPruned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_rows_pruned_total",
		Help:      "Snapshot rows removed by retention cleanup",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Admin HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Admin HTTP request duration in milliseconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordCycle records one completed check cycle.
func RecordCycle(durationSeconds float64) {
	globalManager.cyclesTotal.Inc()
	globalManager.cycleDuration.Observe(durationSeconds)
}

// RecordCycleSkipped records a tick dropped because a cycle was already queued.
func RecordCycleSkipped() {
	globalManager.cyclesSkipped.Inc()
}

// UpdatePendingCycles sets the queued cycle count.
func UpdatePendingCycles(n int) {
	globalManager.pendingCycles.Set(float64(n))
}

// UpdateTrackedTargets sets the distinct target count.
func UpdateTrackedTargets(count int) {
	globalManager.trackedTargets.Set(float64(count))
}

// RecordTargetChecked counts one target by result class (ok, private, ...).
func RecordTargetChecked(result string) {
	globalManager.targetsChecked.WithLabelValues(result).Inc()
}

// RecordFetchAttempt counts one inventory HTTP attempt by outcome.
func RecordFetchAttempt(outcome string) {
	globalManager.fetchAttempts.WithLabelValues(outcome).Inc()
}

// RecordNewItems adds n newly detected items.
func RecordNewItems(n int) {
	if n > 0 {
		globalManager.newItems.Add(float64(n))
	}
}

// RecordNotification counts one watcher notification by result.
func RecordNotification(result string) {
	globalManager.notifications.WithLabelValues(result).Inc()
}

// RecordBotUpdate counts one Telegram update by kind.
func RecordBotUpdate(kind string) {
	globalManager.botUpdates.WithLabelValues(kind).Inc()
}

// RecordSnapshotPruned adds pruned snapshot rows.
func RecordSnapshotPruned(rows int64) {
	if rows > 0 {
		globalManager.snapshotPruned.Add(float64(rows))
	}
}

// RecordHTTPRequest counts one admin HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an admin HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom registry serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
