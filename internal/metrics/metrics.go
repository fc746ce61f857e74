// Package metrics holds the Prometheus collectors of the verification service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for stamp verification.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Verifications        *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	TokensIssued         prometheus.Counter
	AuditWriteFailures   prometheus.Counter
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartstamp_verifications_total",
			Help: "Total number of verification attempts by outcome status",
		}, []string{"status"}),
		VerificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartstamp_verification_duration_seconds",
			Help:    "Duration of verification requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartstamp_tokens_issued_total",
			Help: "Total number of signed verification tokens",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartstamp_audit_write_failures_total",
			Help: "Total number of audit log appends that failed",
		}),
	}
}

// ObserveVerification records one finished attempt.
func (m *Metrics) ObserveVerification(status string, start time.Time) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
	m.VerificationDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementTokensIssued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementAuditWriteFailures() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}
