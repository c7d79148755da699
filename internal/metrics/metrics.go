package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Counters
	RunsTotal         *prometheus.CounterVec
	RowsAppended      prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	ItemsDiscovered   prometheus.Counter
	ItemsSkipped      *prometheus.CounterVec
	APICallsTotal     *prometheus.CounterVec
	StoreOpsTotal     *prometheus.CounterVec

	// Histograms for latency
	APICallDuration    *prometheus.HistogramVec
	StoreOpDuration    *prometheus.HistogramVec
	ProcessingDuration prometheus.Histogram

	// Gauges
	TrackedItems     prometheus.Gauge
	LastRunTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shorts_runs_total",
				Help: "Total number of tracker runs",
			},
			[]string{"trigger", "status"},
		),

		RowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shorts_rows_appended_total",
			Help: "Total number of metric rows appended to the store",
		}),

		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shorts_duplicate_rows_skipped_total",
			Help: "Rows dropped because their (video_id, timestamp) pair already existed",
		}),

		ItemsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shorts_items_discovered_total",
			Help: "Short videos newly added to the tracked set",
		}),

		ItemsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shorts_items_skipped_total",
				Help: "Tracked items skipped for a run",
			},
			[]string{"reason"},
		),

		APICallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shorts_api_calls_total",
				Help: "Total number of YouTube API calls",
			},
			[]string{"api", "method", "status"},
		),

		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shorts_store_operations_total",
				Help: "Total number of tracked-set store operations",
			},
			[]string{"backend", "operation", "status"},
		),

		APICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shorts_api_call_duration_seconds",
				Help:    "Duration of API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api", "method"},
		),

		StoreOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shorts_store_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),

		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shorts_run_duration_seconds",
				Help:    "Total run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		TrackedItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shorts_tracked_items",
				Help: "Size of the tracked set after the last run",
			},
		),

		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shorts_last_run_timestamp",
				Help: "Timestamp of the last successful run",
			},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RowsAppended,
		m.DuplicatesSkipped,
		m.ItemsDiscovered,
		m.ItemsSkipped,
		m.APICallsTotal,
		m.StoreOpsTotal,
		m.APICallDuration,
		m.StoreOpDuration,
		m.ProcessingDuration,
		m.TrackedItems,
		m.LastRunTimestamp,
	)

	// Register default Go metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns the HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordAPICall records an API call with its duration
func (m *Metrics) RecordAPICall(api, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.APICallsTotal.WithLabelValues(api, method, status).Inc()
	m.APICallDuration.WithLabelValues(api, method).Observe(duration.Seconds())
}

// RecordStoreOp records a store operation with its duration
func (m *Metrics) RecordStoreOp(backend, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.WithLabelValues(backend, operation, status).Inc()
	m.StoreOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordRun records the outcome of a tracker run
func (m *Metrics) RecordRun(trigger, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(trigger, status).Inc()
	m.ProcessingDuration.Observe(duration.Seconds())
	if status == "success" {
		m.LastRunTimestamp.SetToCurrentTime()
	}
}

// RecordRows records appended and duplicate rows for one run
func (m *Metrics) RecordRows(appended, duplicates int) {
	if m == nil {
		return
	}
	m.RowsAppended.Add(float64(appended))
	m.DuplicatesSkipped.Add(float64(duplicates))
}

// RecordDiscovered increments the discovered items counter
func (m *Metrics) RecordDiscovered(count int) {
	if m == nil {
		return
	}
	m.ItemsDiscovered.Add(float64(count))
}

// RecordSkipped counts items skipped for the given reason
func (m *Metrics) RecordSkipped(reason string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.ItemsSkipped.WithLabelValues(reason).Add(float64(count))
}

// SetTrackedItems updates the tracked-set gauge
func (m *Metrics) SetTrackedItems(count int) {
	if m == nil {
		return
	}
	m.TrackedItems.Set(float64(count))
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration returns the duration since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	return time.Since(t.start)
}

// Status maps an error to the status label used by the counters.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
