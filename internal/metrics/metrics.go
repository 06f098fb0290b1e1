// Package metrics records subscribe endpoint outcomes with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes.
const (
	OutcomePreflight     = "preflight"
	OutcomeBadMethod     = "method_not_allowed"
	OutcomeInvalidInput  = "invalid_input"
	OutcomeConfigError   = "config_error"
	OutcomeSubscribed    = "subscribed"
	OutcomeRejected      = "rejected"
	OutcomeProviderError = "provider_error"
)

// Metrics holds the collectors of one handler.
type Metrics struct {
	requests         *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "waitlist",
				Name:      "subscribe_requests_total",
				Help:      "Total number of subscribe requests by outcome",
			},
			[]string{"outcome"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "waitlist",
				Name:      "mailchimp_request_duration_seconds",
				Help:      "Mailchimp add member call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.providerDuration)
	}
	return m
}

// IncRequest counts one request with the given outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveProvider records the duration of a provider call that ended with
// outcome, one of OutcomeSubscribed, OutcomeRejected or OutcomeProviderError.
func (m *Metrics) ObserveProvider(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
