// Package diagnostics counts the engine's notable outcomes (stale fixes,
// transitions, delivery failures) and exposes them to Prometheus.
package diagnostics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lumra"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	FixesIngested      prometheus.Counter
	InvalidFixes       prometheus.Counter
	StaleFixes         prometheus.Counter
	RateLimitedFixes   prometheus.Counter
	Transitions        *prometheus.CounterVec
	DeliveryAttempts   *prometheus.CounterVec
	DeliveryFailures   prometheus.Counter
	NotificationsQueue prometheus.Gauge
	NotificationsDrop  prometheus.Counter
}

// New registers a fresh set of collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FixesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fixes_ingested_total",
			Help: "Position fixes accepted for evaluation.",
		}),
		InvalidFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fixes_invalid_total",
			Help: "Position fixes rejected at ingest for invalid geometry.",
		}),
		StaleFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fixes_stale_total",
			Help: "Fix/geofence evaluations dropped because the fix was older than the pair state.",
		}),
		RateLimitedFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fixes_rate_limited_total",
			Help: "Position fixes rejected by the per-elderly rate limit.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Confirmed geofence transitions by kind.",
		}, []string{"kind"}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_attempts_total",
			Help: "Notification send attempts by channel and result.",
		}, []string{"channel", "result"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Notifications that exhausted their retries.",
		}),
		NotificationsQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "notifications_queued",
			Help: "Events waiting for a notifier worker.",
		}),
		NotificationsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_dropped_total",
			Help: "Events recorded as delivery failures because the queue was full.",
		}),
	}
	reg.MustRegister(
		m.FixesIngested, m.InvalidFixes, m.StaleFixes, m.RateLimitedFixes,
		m.Transitions, m.DeliveryAttempts, m.DeliveryFailures,
		m.NotificationsQueue, m.NotificationsDrop,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FixIngested() {
	if m != nil {
		m.FixesIngested.Inc()
	}
}

func (m *Metrics) FixInvalid() {
	if m != nil {
		m.InvalidFixes.Inc()
	}
}

func (m *Metrics) FixStale() {
	if m != nil {
		m.StaleFixes.Inc()
	}
}

func (m *Metrics) FixRateLimited() {
	if m != nil {
		m.RateLimitedFixes.Inc()
	}
}

func (m *Metrics) Transition(kind string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DeliveryAttempt(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.DeliveryAttempts.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) QueueDepth(n int) {
	if m != nil {
		m.NotificationsQueue.Set(float64(n))
	}
}

func (m *Metrics) NotificationDropped() {
	if m != nil {
		m.NotificationsDrop.Inc()
	}
}
