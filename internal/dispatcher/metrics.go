package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recipientOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_recipient_outcomes_total",
			Help: "Delivery attempts by outcome (sent, failed, rate_limited)",
		},
		[]string{"outcome"},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_jobs_finished_total",
			Help: "Dispatcher runs by the status they left the job in",
		},
		[]string{"status"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_send_duration_seconds",
			Help:    "Latency of a single transport send",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeDispatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_dispatchers",
			Help: "Jobs currently held by a dispatcher loop",
		},
	)
)
