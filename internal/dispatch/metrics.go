// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobsEnqueued is the counter for accepted jobs. Use RegisterMetrics to
// register this with a Prometheus registry.
var JobsEnqueued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_dispatch_jobs_enqueued_total",
		Help: "Total number of jobs accepted by the dispatcher",
	},
	[]string{"kind"},
)

// JobsCompleted is the counter for jobs that finished successfully.
var JobsCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_dispatch_jobs_completed_total",
		Help: "Total number of jobs completed successfully",
	},
	[]string{"kind"},
)

// JobsFailed is the counter for jobs dropped after retry exhaustion.
var JobsFailed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_dispatch_jobs_failed_total",
		Help: "Total number of jobs dropped after exhausting retries",
	},
	[]string{"kind"},
)

// JobsDropped is the counter for jobs rejected at enqueue time.
var JobsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_dispatch_jobs_dropped_total",
		Help: "Total number of jobs dropped at enqueue (full queue or stopped dispatcher)",
	},
	[]string{"kind"},
)

// JobRetries is the counter for retry attempts.
var JobRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_dispatch_job_retries_total",
		Help: "Total number of job retry attempts",
	},
	[]string{"kind"},
)

// JobDuration is the histogram for job execution duration including
// retries.
var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "driftline_dispatch_job_duration_seconds",
		Help:    "Job execution duration in seconds, including retries",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// QueueDepth is the gauge of jobs waiting in worker queues.
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "driftline_dispatch_queue_depth",
		Help: "Number of jobs waiting in dispatcher queues",
	},
)

// RegisterMetrics registers dispatcher metrics with the given
// Prometheus registry. Panics if registration fails (prometheus
// convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(JobsEnqueued)
	reg.MustRegister(JobsCompleted)
	reg.MustRegister(JobsFailed)
	reg.MustRegister(JobsDropped)
	reg.MustRegister(JobRetries)
	reg.MustRegister(JobDuration)
	reg.MustRegister(QueueDepth)
}

// RecordEnqueued increments the enqueued counter for a job kind.
func RecordEnqueued(kind string) { JobsEnqueued.WithLabelValues(kind).Inc() }

// RecordCompleted increments the completed counter for a job kind.
func RecordCompleted(kind string) { JobsCompleted.WithLabelValues(kind).Inc() }

// RecordFailed increments the failed counter for a job kind.
func RecordFailed(kind string) { JobsFailed.WithLabelValues(kind).Inc() }

// RecordDropped increments the dropped counter for a job kind.
func RecordDropped(kind string) { JobsDropped.WithLabelValues(kind).Inc() }

// RecordRetry increments the retry counter for a job kind.
func RecordRetry(kind string) { JobRetries.WithLabelValues(kind).Inc() }

// RecordDuration records the duration of a job execution.
func RecordDuration(kind string, d time.Duration) {
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}
