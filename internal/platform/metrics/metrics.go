package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate outcomes.
const (
	OutcomePublic          = "public"
	OutcomeAuthenticated   = "authenticated"
	OutcomeUnauthenticated = "unauthenticated"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	GateDecisions   *prometheus.CounterVec
	RefreshFailures *prometheus.CounterVec
	RefreshLatency  prometheus.Histogram
	SignIns         *prometheus.CounterVec
	SignOuts        prometheus.Counter
	EntityWrites    *prometheus.CounterVec
	UpdateEvents    *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so constructors can run more than once.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camino_gate_decisions_total",
			Help: "Auth gate decisions by outcome",
		}, []string{"outcome"}),
		RefreshFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camino_gate_refresh_failures_total",
			Help: "Session refresh failures that were treated as unauthenticated",
		}, []string{"reason"}),
		RefreshLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camino_session_refresh_duration_seconds",
			Help:    "Latency of the per-request session refresh",
			Buckets: prometheus.DefBuckets,
		}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camino_auth_signins_total",
			Help: "Sign-in attempts by result",
		}, []string{"result"}),
		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "camino_auth_signouts_total",
			Help: "Completed sign-outs",
		}),
		EntityWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camino_entity_writes_total",
			Help: "Entity mutations by entity and operation",
		}, []string{"entity", "op"}),
		UpdateEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camino_update_events_total",
			Help: "Desktop update notifications by channel and disposition",
		}, []string{"channel", "disposition"}),
	}
}

// IncGateDecision counts one gate outcome.
func (m *Metrics) IncGateDecision(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}

// IncRefreshFailure counts a refresh failure by reason.
func (m *Metrics) IncRefreshFailure(reason string) {
	if m == nil {
		return
	}
	m.RefreshFailures.WithLabelValues(reason).Inc()
}

// ObserveRefresh records how long a refresh took.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshLatency.Observe(d.Seconds())
}

// IncSignIn counts a sign-in attempt.
func (m *Metrics) IncSignIn(result string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(result).Inc()
}

// IncSignOut counts a sign-out.
func (m *Metrics) IncSignOut() {
	if m == nil {
		return
	}
	m.SignOuts.Inc()
}

// IncEntityWrite counts an entity mutation.
func (m *Metrics) IncEntityWrite(entity, op string) {
	if m == nil {
		return
	}
	m.EntityWrites.WithLabelValues(entity, op).Inc()
}

// IncUpdateEvent counts an update channel notification.
func (m *Metrics) IncUpdateEvent(channel, disposition string) {
	if m == nil {
		return
	}
	m.UpdateEvents.WithLabelValues(channel, disposition).Inc()
}
