// AngelaMos | 2026
// metrics.go

package otp

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests      *prometheus.CounterVec
	verifications *prometheus.CounterVec
	exchanges     *prometheus.CounterVec
}

// NewMetrics registers the OTP counters on reg. Pass a fresh registry in
// tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "OTP code requests by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP code verifications by outcome.",
		}, []string{"outcome"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_exchanges_total",
			Help: "Bridge token exchanges by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.requests, m.verifications, m.exchanges)
	return m
}
