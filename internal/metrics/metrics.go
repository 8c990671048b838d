package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "flowbatch"

var (
	BatchStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_started_total",
			Help:      "Total number of batch runs started.",
		},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total flow invocations issued, labeled by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	PollIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_iterations_total",
			Help:      "Total status poll calls across all tasks.",
		},
	)

	TaskFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_finalized_total",
			Help:      "Total tasks reaching a terminal state, labeled by status and reason.",
		},
		[]string{"status", "reason"},
	)

	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from dispatch to terminal state (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	CreditsSpentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Total credits reported by the flow service, in decimal units.",
		},
	)

	OutputFilesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_files_written_total",
			Help:      "Total task result files written to disk.",
		},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter, labeled by scope and operation.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		BatchStartedTotal,
		InvocationsTotal,
		PollIterationsTotal,
		TaskFinalizedTotal,
		TaskDurationSeconds,
		CreditsSpentTotal,
		OutputFilesWrittenTotal,
		RateLimitHitsTotal,
	)
}
