// Package metrics exposes Prometheus counters for login and entry outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginBlocked = "blocked"
)

// Metrics owns its registry so tests and multiple servers never collide.
type Metrics struct {
	reg      *prometheus.Registry
	logins   *prometheus.CounterVec
	lockouts prometheus.Counter
	rejected *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kizami_login_attempts_total", Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kizami_login_lockouts_total", Help: "Failures that placed or extended a lockout",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kizami_time_entries_rejected_total", Help: "Time entries rejected by validation",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kizami_http_requests_total", Help: "HTTP requests by route and status",
		}, []string{"route", "code"}),
	}
	m.reg.MustRegister(
		m.logins, m.lockouts, m.rejected, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Login counts one login attempt with the given outcome.
func (m *Metrics) Login(outcome string) { m.logins.WithLabelValues(outcome).Inc() }

// Lockout matches limiter.WithLockoutHook.
func (m *Metrics) Lockout(string, time.Time) { m.lockouts.Inc() }

// EntryRejected counts a rejected entry by reason (validation, granularity).
func (m *Metrics) EntryRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

// Request counts one served HTTP request.
func (m *Metrics) Request(route, code string) { m.requests.WithLabelValues(route, code).Inc() }
