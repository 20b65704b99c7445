package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tspbatch"

// Metrics — Prometheus метрики оркестратора.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без
// метрик (например, в тестах), просто ничего не пишут.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    prometheus.Histogram
	batchesTotal    *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	buffersLive     prometheus.Gauge
	bufferBytesLive prometheus.Gauge
	buffersReleased *prometheus.CounterVec
	workerRestarts  prometheus.Counter
	workersBusy     prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// Для глобального реестра передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Solver tasks by terminal status",
		}, []string{"status"}),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from submit to completion, including transport",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches by outcome",
		}, []string{"status"}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch wall time from allocation to release",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		buffersLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shared_buffers_live",
			Help:      "Shared memory segments currently allocated",
		}),
		bufferBytesLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shared_buffer_bytes_live",
			Help:      "Bytes held by live shared memory segments",
		}),
		buffersReleased: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_buffers_released_total",
			Help:      "Released shared memory segments by releasing side",
		}, []string{"side"}),
		workerRestarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Worker processes respawned after death or deadline",
		}),
		workersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently executing a task",
		}),
	}
}

// ObserveTask учитывает завершённый task.
func (m *Metrics) ObserveTask(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
	m.taskDuration.Observe(d.Seconds())
}

// ObserveBatch учитывает завершённый batch.
func (m *Metrics) ObserveBatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// BufferCreated учитывает новый сегмент.
func (m *Metrics) BufferCreated(bytes int) {
	if m == nil {
		return
	}
	m.buffersLive.Inc()
	m.bufferBytesLive.Add(float64(bytes))
}

// BufferReleased учитывает освобождённый сегмент.
// side: "owner" — оркестратор, "peer" — воркер освободил сам.
func (m *Metrics) BufferReleased(bytes int, side string) {
	if m == nil {
		return
	}
	m.buffersLive.Dec()
	m.bufferBytesLive.Sub(float64(bytes))
	m.buffersReleased.WithLabelValues(side).Inc()
}

// WorkerRestarted учитывает перезапуск воркера.
func (m *Metrics) WorkerRestarted() {
	if m == nil {
		return
	}
	m.workerRestarts.Inc()
}

// WorkerBusy изменяет количество занятых воркеров на delta.
func (m *Metrics) WorkerBusy(delta int) {
	if m == nil {
		return
	}
	m.workersBusy.Add(float64(delta))
}
