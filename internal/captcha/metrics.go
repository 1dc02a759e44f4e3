package captcha

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrCircuitOpen is returned while the provider is being skipped.
var ErrCircuitOpen = errors.New("captcha provider circuit open")

const (
	resultVerified    = "verified"
	resultRejected    = "rejected"
	resultMissing     = "missing"
	resultError       = "error"
	resultCircuitOpen = "circuit_open"
)

type Metrics struct {
	Verifications  *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_captcha_verifications_total",
			Help: "CAPTCHA verifications by result",
		}, []string{"result"}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bastion_captcha_verify_duration_seconds",
			Help:    "Latency of siteverify calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}
