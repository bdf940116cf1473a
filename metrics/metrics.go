// Package metrics exposes Prometheus collectors for the session pipeline: how often requests hit a 401,
// how refreshes end, how many requests were replayed and how many sessions were torn down.
//
// All methods are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos_client"

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeDenied       = "denied"
	OutcomeNoCredential = "no_credential"
	OutcomeNetwork      = "network"
	OutcomeInvalid      = "invalid_credentials"
	OutcomeFailure      = "failure"
)

// Metrics holds the session pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	unauthorized    prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshJoined   prometheus.Counter
	refreshInFlight prometheus.Gauge
	replays         *prometheus.CounterVec
	terminations    prometheus.Counter
	logins          *prometheus.CounterVec
	logouts         prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_responses_total",
			Help:      "Responses with status 401 seen by the request authorizer.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh calls made to the backend, by outcome.",
		}, []string{"outcome"}),
		refreshJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_joined_total",
			Help:      "Callers that waited on an already running refresh instead of starting one.",
		}),
		refreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh call is outstanding.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Original requests replayed after a refresh, by outcome.",
		}, []string{"outcome"}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_terminated_total",
			Help:      "Sessions cleared because credentials could not be renewed.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts, by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_total",
			Help:      "Explicit logouts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.unauthorized, m.refreshes, m.refreshJoined, m.refreshInFlight,
			m.replays, m.terminations, m.logins, m.logouts)
	}
	return m
}

// Unauthorized counts a 401 seen by the request authorizer.
func (m *Metrics) Unauthorized() {
	if m == nil {
		return
	}
	m.unauthorized.Inc()
}

// RefreshStarted marks a refresh call as outstanding.
func (m *Metrics) RefreshStarted() {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(1)
}

// RefreshFinished clears the outstanding marker and counts the outcome.
func (m *Metrics) RefreshFinished(outcome string) {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(0)
	m.refreshes.WithLabelValues(outcome).Inc()
}

// RefreshJoined counts a caller that waited on a running refresh.
func (m *Metrics) RefreshJoined() {
	if m == nil {
		return
	}
	m.refreshJoined.Inc()
}

// Replayed counts a replayed request by outcome.
func (m *Metrics) Replayed(outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(outcome).Inc()
}

// Terminated counts a session cleared because it could not be renewed.
func (m *Metrics) Terminated() {
	if m == nil {
		return
	}
	m.terminations.Inc()
}

// Login counts a login attempt by outcome.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Logout counts an explicit logout.
func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}
