// Package metrics exposes Prometheus collectors for network actions, flows,
// the session monitor and the event relay.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chordsync"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	actionDuration *prometheus.HistogramVec
	actionRejected *prometheus.CounterVec
	flowOutcomes   *prometheus.CounterVec
	sessionChecks  *prometheus.CounterVec
	sessionEnded   prometheus.Counter
	relayEvents    *prometheus.CounterVec
	relayConnected prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the metrics registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the collectors with reg. Collectors already registered
// under the same name are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "duration_seconds",
			Help:      "Duration of network actions by resource kind and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),
		actionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "rejected_total",
			Help:      "Network actions rejected because a request for the same resource was in flight.",
		}, []string{"kind"}),
		flowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "outcomes_total",
			Help:      "Completed flows by name and outcome (ended, terminated, rejected).",
		}, []string{"flow", "outcome"}),
		sessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "checks_total",
			Help:      "Session checks by observed result (authenticated, anonymous, error).",
		}, []string{"result"}),
		sessionEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Number of authenticated to anonymous transitions observed.",
		}),
		relayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Push events received by type and whether a handler consumed them.",
		}, []string{"type", "handled"}),
		relayConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connected",
			Help:      "1 while the event relay channel is open.",
		}),
	}

	m.actionDuration = register(reg, m.actionDuration)
	m.actionRejected = register(reg, m.actionRejected)
	m.flowOutcomes = register(reg, m.flowOutcomes)
	m.sessionChecks = register(reg, m.sessionChecks)
	m.sessionEnded = register(reg, m.sessionEnded)
	m.relayEvents = register(reg, m.relayEvents)
	m.relayConnected = register(reg, m.relayConnected)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveAction records a completed network action.
func (m *Metrics) ObserveAction(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.actionDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// IncActionRejected counts a request rejected by the in-flight guard.
func (m *Metrics) IncActionRejected(kind string) {
	if m == nil {
		return
	}
	m.actionRejected.WithLabelValues(kind).Inc()
}

// IncFlow counts a flow outcome.
func (m *Metrics) IncFlow(flow, outcome string) {
	if m == nil {
		return
	}
	m.flowOutcomes.WithLabelValues(flow, outcome).Inc()
}

// IncSessionCheck counts a session check result.
func (m *Metrics) IncSessionCheck(result string) {
	if m == nil {
		return
	}
	m.sessionChecks.WithLabelValues(result).Inc()
}

// IncSessionEnded counts a sign-out edge.
func (m *Metrics) IncSessionEnded() {
	if m == nil {
		return
	}
	m.sessionEnded.Inc()
}

// IncRelayEvent counts a received push event.
func (m *Metrics) IncRelayEvent(eventType string, handled bool) {
	if m == nil {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	m.relayEvents.WithLabelValues(eventType, h).Inc()
}

// SetRelayConnected reports whether the relay channel is open.
func (m *Metrics) SetRelayConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.relayConnected.Set(1)
	} else {
		m.relayConnected.Set(0)
	}
}

// Handler serves the metrics of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
