package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionTransitions counts session status changes by target status.
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_session_transitions_total",
			Help: "Total number of respondent session status transitions.",
		},
		[]string{"to"},
	)

	// outboxDeliveries counts delivery attempts by result (sent, retry, failed).
	outboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_outbox_deliveries_total",
			Help: "Outbox delivery attempts by result.",
		},
		[]string{"result"},
	)

	// outboxDeadLetters counts entries that exhausted their attempts.
	outboxDeadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "survey_outbox_dead_letters_total",
			Help: "Outbox entries marked permanently failed.",
		},
	)

	// rebuildSeconds observes the duration of one (survey, day) rebuild.
	rebuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "survey_analytics_rebuild_seconds",
			Help:    "Duration of daily analytics rebuilds in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// sweepProcessed counts sessions moved by each sweep.
	sweepProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_sweep_processed_total",
			Help: "Sessions transitioned by scheduled sweeps.",
		},
		[]string{"sweep"},
	)

	// telemetryEvents counts best-effort product telemetry captures.
	telemetryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_telemetry_events_total",
			Help: "Product telemetry events captured.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		sessionTransitions,
		outboxDeliveries,
		outboxDeadLetters,
		rebuildSeconds,
		sweepProcessed,
		telemetryEvents,
	)
}
