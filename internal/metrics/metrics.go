// Package metrics exposes Prometheus counters for the registration flow.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for this process.
type Metrics struct {
	Registrations      *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
	Confirmations      *prometheus.CounterVec
	ConfirmationSend   prometheus.Histogram
}

// New registers the collectors with reg. Each process and each test uses its
// own registry so collectors never collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "infest_registrations_total",
			Help: "Registration submissions by payment mode and outcome",
		}, []string{"payment_mode", "outcome"}),
		PaymentTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "infest_payment_transitions_total",
			Help: "Payment reconciliation attempts by source and outcome",
		}, []string{"source", "outcome"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "infest_webhook_events_total",
			Help: "Gateway webhook deliveries by result",
		}, []string{"result"}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "infest_confirmations_total",
			Help: "Confirmation dispatch attempts by result",
		}, []string{"result"}),
		ConfirmationSend: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "infest_confirmation_send_seconds",
			Help:    "Time spent rendering and mailing a confirmation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RegistrationRecorded(mode, outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) PaymentTransition(source, outcome string) {
	if m == nil {
		return
	}
	m.PaymentTransitions.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) WebhookEvent(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

// ConfirmationDispatched records one dispatch attempt and its duration in seconds.
func (m *Metrics) ConfirmationDispatched(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(result).Inc()
	m.ConfirmationSend.Observe(seconds)
}
