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

	ReferralTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_transitions_total",
			Help: "Referral status transitions applied",
		},
		[]string{"from", "to"},
	)

	MatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_match_outcomes_total",
			Help: "Match selections by outcome",
		},
		[]string{"outcome"},
	)

	CapacityAdvisories = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_advisories_total",
			Help: "Reservations that left a supplier over its maximum",
		},
	)

	CapacityStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capacity_status_changes_total",
			Help: "Supplier status changes applied by reconciliation",
		},
		[]string{"to"},
	)

	JournalCompensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capacity_journal_compensations_total",
			Help: "Dangling reservation journal entries resolved by the sweep",
		},
		[]string{"op", "action"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	CommissionDue = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_commission_due_total",
			Help: "Sum of commission recorded on won referrals",
		},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "record_store_operation_duration_seconds",
			Help:    "Record store call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "table", "outcome"},
	)
)
