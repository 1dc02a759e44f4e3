package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions        *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	CleanupRunsTotal *prometheus.CounterVec
	CleanupDeleted   prometheus.Counter
	CleanupDuration  prometheus.Histogram
	CheckDuration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_ratelimit_decisions_total",
			Help: "Rate limit decisions by bucket and outcome",
		}, []string{"bucket", "outcome"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_ratelimit_store_errors_total",
			Help: "Rate limit store failures; the request was let through",
		}, []string{"bucket"}),
		CleanupRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bastion_ratelimit_cleanup_events_deleted_total",
			Help: "Expired rate limit events deleted by the cleanup worker",
		}),
		CleanupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "bastion_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_ratelimit_check_duration_seconds",
			Help:    "Latency of rate limit store checks",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"bucket"}),
	}
}

func (m *Metrics) IncrementDecision(bucket string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(bucket, outcome).Inc()
}

func (m *Metrics) IncrementStoreError(bucket string) {
	m.StoreErrors.WithLabelValues(bucket).Inc()
}

func (m *Metrics) ObserveCheckDuration(bucket string, seconds float64) {
	m.CheckDuration.WithLabelValues(bucket).Observe(seconds)
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AddCleanupDeleted(count int) {
	m.CleanupDeleted.Add(float64(count))
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.CleanupDuration.Observe(durationSeconds)
}
