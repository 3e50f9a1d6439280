package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrialsStarted tracks trials started per pipeline
	TrialsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_trials_started_total",
			Help: "Total number of trials started",
		},
		[]string{"pipeline"},
	)

	// TrialsFinished tracks finished trials per pipeline and result
	TrialsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_trials_finished_total",
			Help: "Total number of trials that reached a final status",
		},
		[]string{"pipeline", "result"},
	)

	// TrialsDeleted tracks trials deleted by repair tooling
	TrialsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_trials_deleted_total",
			Help: "Total number of trials deleted by repair operations",
		},
		[]string{"reason"},
	)

	// SessionsReset tracks retryable sessions reset per pipeline
	SessionsReset = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchd_sessions_reset_total",
			Help: "Total number of sessions reset for retry",
		},
		[]string{"pipeline"},
	)

	// SessionsPermanent tracks sessions closed as permanently failed
	SessionsPermanent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "benchd_sessions_permanent_total",
			Help: "Total number of sessions marked permanently failed",
		},
	)

	// TransactionConflicts tracks session lock conflicts
	TransactionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "benchd_transaction_conflicts_total",
			Help: "Total number of session lock conflicts",
		},
	)

	// SweepErrors tracks per-session failures during recovery sweeps
	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "benchd_sweep_errors_total",
			Help: "Total number of per-session failures during recovery sweeps",
		},
	)

	// SweepCandidates tracks the candidate set size of the last sweep
	SweepCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_sweep_candidate_sessions",
			Help: "Number of candidate sessions found by the last recovery sweep",
		},
	)

	// TrialDuration tracks wall-clock trial duration
	TrialDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benchd_trial_duration_seconds",
			Help:    "Trial duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"pipeline"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "benchd_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
