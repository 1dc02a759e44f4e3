package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for auth operations.
type Metrics struct {
	AccountsCreated       prometheus.Counter
	TokensIssued          prometheus.Counter
	LoginAttempts         *prometheus.CounterVec
	AuthFailures          *prometheus.CounterVec
	LockoutsTriggered     prometheus.Counter
	ResetRequests         *prometheus.CounterVec
	ResetsCompleted       prometheus.Counter
	EmailsVerified        prometheus.Counter
	MailDeliveryFailures  *prometheus.CounterVec
	LoginDurationMs       prometheus.Histogram
	ResetTokensCleanedUp  prometheus.Counter
	OperationDurationByOp *prometheus.HistogramVec
}

// New registers auth collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_accounts_created_total",
			Help: "Total number of accounts created",
		}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_tokens_issued_total",
			Help: "Total number of bearer tokens issued",
		}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_auth_failures_total",
			Help: "Authentication failures by reason",
		}, []string{"reason"}),
		LockoutsTriggered: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_lockouts_triggered_total",
			Help: "Number of times an account was newly locked",
		}),
		ResetRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_password_reset_requests_total",
			Help: "Password reset requests by outcome",
		}, []string{"outcome"}),
		ResetsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_password_resets_completed_total",
			Help: "Number of successful password resets",
		}),
		EmailsVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_emails_verified_total",
			Help: "Number of accounts that completed email verification",
		}),
		MailDeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_mail_delivery_failures_total",
			Help: "Mail hand-off failures by message type",
		}, []string{"message_type"}),
		LoginDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bastion_login_duration_ms",
			Help:    "Duration of login requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		ResetTokensCleanedUp: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_reset_tokens_cleaned_up_total",
			Help: "Expired reset tokens removed by the cleanup worker",
		}),
		OperationDurationByOp: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_auth_operation_duration_ms",
			Help:    "Duration of auth operations in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementAccountsCreated() {
	m.AccountsCreated.Inc()
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementLoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAuthFailures(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementLockouts() {
	m.LockoutsTriggered.Inc()
}

func (m *Metrics) IncrementResetRequests(outcome string) {
	m.ResetRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementResetsCompleted() {
	m.ResetsCompleted.Inc()
}

func (m *Metrics) IncrementEmailsVerified() {
	m.EmailsVerified.Inc()
}

func (m *Metrics) IncrementMailDeliveryFailures(messageType string) {
	m.MailDeliveryFailures.WithLabelValues(messageType).Inc()
}

func (m *Metrics) ObserveLoginDuration(durationMs float64) {
	m.LoginDurationMs.Observe(durationMs)
}

func (m *Metrics) AddResetTokensCleanedUp(n int) {
	m.ResetTokensCleanedUp.Add(float64(n))
}

func (m *Metrics) ObserveOperationDuration(operation string, durationMs float64) {
	m.OperationDurationByOp.WithLabelValues(operation).Observe(durationMs)
}
