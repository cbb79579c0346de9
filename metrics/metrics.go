// Package metrics exposes Prometheus collectors for a running Task set,
// grounded on the teacher's PrometheusMetrics (prometheus.go): one struct
// holding every collector, built with promauto so registration happens at
// construction time, plus small Record*/Update* methods callers sprinkle
// through the acquisition loop.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector this module exposes. A nil *Metrics is
// valid and every method on it is a no-op, the same nil-safe pattern the
// teacher's PrometheusMetrics methods use throughout.
type Metrics struct {
	taskState       *prometheus.GaugeVec
	receiveQueue    *prometheus.GaugeVec
	lostSweeps      *prometheus.CounterVec
	sweepsCompleted *prometheus.CounterVec
	measureLatency  *prometheus.HistogramVec
	promDownload    prometheus.Histogram
	transportErrors *prometheus.CounterVec

	goroutines prometheus.Gauge
	heapBytes  prometheus.Gauge
}

// New builds and registers the collector set against reg. Passing
// prometheus.DefaultRegisterer matches the teacher's own registration
// against the global registry; tests pass a fresh prometheus.NewRegistry()
// so repeated calls across test cases don't collide on metric names.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		taskState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "avmu_task_state",
				Help: "Current Task lifecycle state (0=uninitialized,1=stopped,2=started,3=running) by task id",
			},
			[]string{"task_id"},
		),
		receiveQueue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "avmu_receive_queue_depth",
				Help: "Reassembled sweep records queued per measured path",
			},
			[]string{"task_id", "path"},
		),
		lostSweeps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avmu_lost_sweeps_total",
				Help: "Partially assembled sweeps superseded before completion",
			},
			[]string{"task_id"},
		),
		sweepsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avmu_sweeps_completed_total",
				Help: "Sweeps fully reassembled and delivered to a path queue",
			},
			[]string{"task_id", "path"},
		),
		measureLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avmu_measure_duration_seconds",
				Help:    "Wall-clock time a synchronous Measure call spent waiting for a sweep",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_id"},
		),
		promDownload: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "avmu_prom_download_duration_seconds",
				Help:    "Time spent downloading and parsing a device PROM during initialize",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		transportErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avmu_transport_errors_total",
				Help: "Transport-level failures (timeouts, socket errors) by error kind",
			},
			[]string{"kind"},
		),
		goroutines: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "avmu_goroutines",
				Help: "Current number of goroutines in the driving process",
			},
		),
		heapBytes: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "avmu_heap_alloc_bytes",
				Help: "Current heap memory allocated in bytes",
			},
		),
	}
	return m
}

// SetTaskState records a Task's lifecycle state as a small integer.
func (m *Metrics) SetTaskState(taskID string, state int) {
	if m == nil {
		return
	}
	m.taskState.WithLabelValues(taskID).Set(float64(state))
}

// SetQueueDepth records how many records are queued for one path.
func (m *Metrics) SetQueueDepth(taskID, path string, depth int) {
	if m == nil {
		return
	}
	m.receiveQueue.WithLabelValues(taskID, path).Set(float64(depth))
}

// RecordLostSweep increments the lost-sweep counter for a Task.
func (m *Metrics) RecordLostSweep(taskID string) {
	if m == nil {
		return
	}
	m.lostSweeps.WithLabelValues(taskID).Inc()
}

// RecordSweepCompleted increments the completed-sweep counter for a path.
func (m *Metrics) RecordSweepCompleted(taskID, path string) {
	if m == nil {
		return
	}
	m.sweepsCompleted.WithLabelValues(taskID, path).Inc()
}

// ObserveMeasureDuration records how long a Measure call took.
func (m *Metrics) ObserveMeasureDuration(taskID string, seconds float64) {
	if m == nil {
		return
	}
	m.measureLatency.WithLabelValues(taskID).Observe(seconds)
}

// ObservePromDownload records how long a PROM download+parse took.
func (m *Metrics) ObservePromDownload(seconds float64) {
	if m == nil {
		return
	}
	m.promDownload.Observe(seconds)
}

// RecordTransportError increments the transport error counter for a kind.
func (m *Metrics) RecordTransportError(kind string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(kind).Inc()
}

// UpdateResourceMetrics refreshes goroutine and heap gauges, grounded on
// the teacher's updateResourceMetrics (prometheus.go).
func (m *Metrics) UpdateResourceMetrics() {
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.heapBytes.Set(float64(ms.HeapAlloc))
}
