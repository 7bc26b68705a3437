package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courier"

// UnknownTaskLabel — метка для вызовов незарегистрированных задач.
const UnknownTaskLabel = "unknown"

// Метрики воркера.
var (
	TasksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_received_total",
		Help:      "Deliveries received by the worker.",
	}, []string{"task"})

	TasksSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_succeeded_total",
		Help:      "Task invocations that completed successfully.",
	}, []string{"task"})

	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_failed_total",
		Help:      "Task invocations that failed terminally.",
	}, []string{"task", "kind"})

	TasksRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_retried_total",
		Help:      "Task invocations republished for retry.",
	}, []string{"task"})

	TasksAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_abandoned_total",
		Help:      "In-flight invocations returned to the broker on shutdown.",
	})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_in_flight",
		Help:      "Task invocations currently executing.",
	})

	TasksHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_held",
		Help:      "Deliveries held until their ETA.",
	})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})

	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_errors_total",
		Help:      "Failed publishes to the broker.",
	}, []string{"queue"})
)

// Метрики клиента.
var (
	TasksSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_sent_total",
		Help:      "Task invocations published by the client.",
	}, []string{"task"})

	BeatDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "beat_dispatched_total",
		Help:      "Periodic dispatches sent by the beat scheduler.",
	}, []string{"entry"})
)
