// Package metrics exposes Prometheus instrumentation for the coach server.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save paths.
const (
	SaveViaChat   = "chat"
	SaveViaButton = "button"
)

// Metrics holds the server's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	turns               *prometheus.CounterVec
	turnFailures        *prometheus.CounterVec
	plansGenerated      prometheus.Counter
	plansSaved          *prometheus.CounterVec
	persistFailures     prometheus.Counter
	completionFallbacks prometheus.Counter
	pendingPlans        prometheus.Gauge
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "chat_turns_total",
			Help:      "Chat turns handled, by detected intent.",
		}, []string{"intent"}),
		turnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "chat_turn_failures_total",
			Help:      "Chat turns that failed, by cause.",
		}, []string{"cause"}),
		plansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "plans_generated_total",
			Help:      "Practice plans generated and left pending.",
		}),
		plansSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "plans_saved_total",
			Help:      "Practice plans persisted, by confirmation path.",
		}, []string{"path"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "plan_persist_failures_total",
			Help:      "Failed attempts to persist a confirmed plan.",
		}),
		completionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fretcoach",
			Name:      "completion_fallbacks_total",
			Help:      "Completions served by the fallback provider.",
		}),
		pendingPlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fretcoach",
			Name:      "pending_plans",
			Help:      "Plans awaiting confirmation.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.turnFailures, m.plansGenerated, m.plansSaved,
		m.persistFailures, m.completionFallbacks, m.pendingPlans,
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

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TurnHandled(intent string) {
	if m != nil {
		m.turns.WithLabelValues(intent).Inc()
	}
}

func (m *Metrics) TurnFailed(cause string) {
	if m != nil {
		m.turnFailures.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) PlanGenerated() {
	if m != nil {
		m.plansGenerated.Inc()
	}
}

func (m *Metrics) PlanSaved(path string) {
	if m != nil {
		m.plansSaved.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

func (m *Metrics) CompletionFellBack() {
	if m != nil {
		m.completionFallbacks.Inc()
	}
}

func (m *Metrics) SetPendingPlans(n int) {
	if m != nil {
		m.pendingPlans.Set(float64(n))
	}
}
