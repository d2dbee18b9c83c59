package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the event module: accepted and
// rejected actions, idempotent replays, duplicate detections, and write
// path latency.
type Metrics struct {
	ActionsAccepted    *prometheus.CounterVec
	ActionsRejected    *prometheus.CounterVec
	IdempotentReplays  prometheus.Counter
	DuplicatesDetected prometheus.Counter
	AcceptDuration     prometheus.Histogram
}

// New registers and returns the event module metrics.
func New() *Metrics {
	return &Metrics{
		ActionsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_actions_accepted_total",
			Help: "Total number of actions committed to the log",
		}, []string{"action"}),
		ActionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_actions_rejected_total",
			Help: "Total number of action requests rejected before append",
		}, []string{"action", "code"}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_idempotent_replays_total",
			Help: "Total number of requests answered from a previously committed transaction id",
		}),
		DuplicatesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_duplicates_detected_total",
			Help: "Total number of declarations short-circuited into duplicate-pending state",
		}),
		AcceptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_action_accept_duration_seconds",
			Help:    "Duration of the full action write path including dedup search",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveAccept records the duration of one write path execution.
func (m *Metrics) ObserveAccept(start time.Time) {
	m.AcceptDuration.Observe(time.Since(start).Seconds())
}
