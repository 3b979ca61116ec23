package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the slip service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SlipsCreated       prometheus.Counter
	CreateFailures     *prometheus.CounterVec
	PresignFailures    prometheus.Counter
	AuthAttempts       *prometheus.CounterVec
	AuthBypass         *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	SweeperActions     *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Passing nil registers on the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SlipsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "slip_created_total",
			Help: "Total number of slips uploaded and recorded",
		}),
		CreateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slip_create_failures_total",
			Help: "Slip creations that failed, by workflow stage",
		}, []string{"stage"}),
		PresignFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "slip_presign_failures_total",
			Help: "Presigned URL generations that failed and were skipped",
		}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slip_auth_attempts_total",
			Help: "Calls to auth service candidates, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		AuthBypass: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slip_auth_bypass_total",
			Help: "Requests served in auth bypass mode after all candidates failed",
		}, []string{"endpoint"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slip_events_published_total",
			Help: "Broker publishes, by routing key and result",
		}, []string{"routing_key", "result"}),
		SweeperActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slip_sweeper_actions_total",
			Help: "Reconciliation actions taken by the sweeper",
		}, []string{"kind", "result"}),
		HTTPRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slip_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncrementSlipsCreated() {
	if m == nil {
		return
	}
	m.SlipsCreated.Inc()
}

// IncrementCreateFailure records a failed create at stage
// (upload, record, publish).
func (m *Metrics) IncrementCreateFailure(stage string) {
	if m == nil {
		return
	}
	m.CreateFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncrementPresignFailure() {
	if m == nil {
		return
	}
	m.PresignFailures.Inc()
}

func (m *Metrics) IncrementAuthAttempt(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) IncrementAuthBypass(endpoint string) {
	if m == nil {
		return
	}
	m.AuthBypass.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) IncrementEventPublished(routingKey string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(routingKey, result).Inc()
}

func (m *Metrics) IncrementSweeperAction(kind, result string) {
	if m == nil {
		return
	}
	m.SweeperActions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(route, method, status).Observe(d.Seconds())
}
