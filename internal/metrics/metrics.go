package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncengine",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events by provider and result.",
		},
		[]string{"provider", "result"},
	)

	syncJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncengine",
			Name:      "sync_jobs_total",
			Help:      "Processed sync jobs by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "syncengine",
			Name:      "sync_job_duration_seconds",
			Help:      "Wall time spent processing a single sync job.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "syncengine",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
		},
		[]string{"provider"},
	)
)

// Register registers all collectors. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(webhookEvents, syncJobs, jobDuration, breakerState)
	})
}

// Webhook event results.
const (
	WebhookAccepted  = "accepted"
	WebhookDuplicate = "duplicate"
	WebhookNoKey     = "no_key"
	WebhookError     = "handler_error"
)

// Job outcomes.
const (
	JobCompleted = "completed"
	JobRetried   = "retried"
	JobFailed    = "failed"
)

// IncWebhookEvent counts one inbound event.
func IncWebhookEvent(provider, result string) {
	webhookEvents.WithLabelValues(provider, result).Inc()
}

// IncSyncJob counts one processed job.
func IncSyncJob(provider, outcome string) {
	syncJobs.WithLabelValues(provider, outcome).Inc()
}

// ObserveJobDuration records the processing time of one job.
func ObserveJobDuration(provider string, seconds float64) {
	jobDuration.WithLabelValues(provider).Observe(seconds)
}

// SetBreakerState records a breaker transition.
func SetBreakerState(provider string, state float64) {
	breakerState.WithLabelValues(provider).Set(state)
}
