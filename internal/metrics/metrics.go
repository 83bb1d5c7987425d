// Package metrics implements Prometheus metrics for the poller and
// preprocessor subsystems. Self-monitoring counters are otherwise an
// external collaborator per spec.md §1, but ambient metrics are still
// carried here matching the teacher's metrics package (SPEC_FULL.md §1).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollerProcessing tracks PollerConfig.processing: items dispatched
	// but not yet completed (spec.md §3, testable property 2).
	PollerProcessing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollcore_poller_processing",
			Help: "Number of in-flight dispatched checks awaiting a completion callback",
		},
		[]string{"poller_type"},
	)

	// PollerProcessedTotal counts completed checks by errcode.
	PollerProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcore_poller_processed_total",
			Help: "Total number of completed checks by errcode",
		},
		[]string{"poller_type", "errcode"},
	)

	// PollerQueued tracks the number of items fetched from the
	// configuration cache in the most recent dispatch cycle.
	PollerQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollcore_poller_queued",
			Help: "Number of items fetched from the configuration cache in the last dispatch cycle",
		},
		[]string{"poller_type"},
	)

	// PollerCycleDuration measures one async_check_items dispatch cycle.
	PollerCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollcore_poller_cycle_duration_seconds",
			Help:    "Duration of one dispatch cycle",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"poller_type"},
	)

	// InterfaceAvailable tracks the tri-state availability of an
	// interface (0=unknown, 1=true, 2=false) for dashboarding.
	InterfaceAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollcore_interface_available",
			Help: "Interface availability tri-state (0=unknown,1=available,2=unavailable)",
		},
		[]string{"interface_id"},
	)

	// PreprocQueueDepth tracks the preprocessor's runnable pending queue
	// length.
	PreprocQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pollcore_preproc_queue_depth",
			Help: "Number of runnable tasks waiting in the preprocessor queue",
		},
	)

	// PreprocWorkerBusy tracks whether a given worker id is currently
	// executing a task (0 or 1), matching the timekeeper idea in
	// spec.md §4.2 ("mark self busy in timekeeper").
	PreprocWorkerBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollcore_preproc_worker_busy",
			Help: "1 if the worker is currently executing a task, 0 if idle",
		},
		[]string{"worker_id"},
	)

	// PreprocTasksTotal counts finished tasks by shape and outcome.
	PreprocTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcore_preproc_tasks_total",
			Help: "Total number of finished preprocessor tasks",
		},
		[]string{"task_type", "outcome"},
	)

	// PreprocStepDuration measures how long a worker takes to execute one
	// task's whole step plan. The "step" label carries the task type
	// (value, value_seq, test, dependent, sequence); individual steps are
	// not timed separately.
	PreprocStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollcore_preproc_step_duration_seconds",
			Help:    "Latency of executing one preprocessor task's step plan, by task type",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20),
		},
		[]string{"step"},
	)
)

// Numeric encoding of model.Tri used for the InterfaceAvailable gauge.
const (
	InterfaceUnknown     = 0
	InterfaceIsAvailable = 1
	InterfaceIsDown      = 2
)
