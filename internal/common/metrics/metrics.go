// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	LeadsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_captured_total",
			Help: "Total number of leads captured",
		},
		[]string{"source"},
	)

	LeadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_rejected_total",
			Help: "Total number of leads rejected at capture",
		},
		[]string{"error_code"},
	)

	LeadsQualified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_qualified_total",
			Help: "Total number of qualification runs by resulting status",
		},
		[]string{"status"},
	)

	LeadScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lead_bant_score",
			Help:    "Distribution of overall BANT scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	CRMSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_total",
			Help: "Total number of CRM sync calls by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	CRMSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crm_sync_duration_seconds",
			Help: "Duration of CRM sync calls in seconds",
		},
		[]string{"backend", "operation"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_events_published_total",
			Help: "Total number of lead events published by type and sink",
		},
		[]string{"event_type", "sink", "outcome"},
	)

	NurtureStepsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_steps_scheduled_total",
			Help: "Total number of nurturing steps scheduled",
		},
		[]string{"template"},
	)
)
