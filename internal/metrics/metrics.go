// Package metrics records ledger and verification outcomes.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by metric sinks.
type Recorder interface {
	LedgerEvent(kind, outcome string)
	TopUp(outcome string)
	VerificationCreated(action string)
	VerificationDecision(action, outcome string)
	CircuitState(name string, state float64)
}

// NoOp discards everything. Useful for tests.
type NoOp struct{}

func (NoOp) LedgerEvent(string, string)          {}
func (NoOp) TopUp(string)                        {}
func (NoOp) VerificationCreated(string)          {}
func (NoOp) VerificationDecision(string, string) {}
func (NoOp) CircuitState(string, float64)        {}

// Prometheus implements Recorder with client_golang collectors registered on
// its own registry.
type Prometheus struct {
	registry      *prometheus.Registry
	ledgerEvents  *prometheus.CounterVec
	topUps        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
}

// NewPrometheus builds the collectors under namespace.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ledgerEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_total",
				Help:      "Payment events handled by the ledger per kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		topUps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_topups_total",
				Help:      "Top-ups handled by the ledger per outcome",
			},
			[]string{"outcome"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_created_total",
				Help:      "Verifications created per action",
			},
			[]string{"action"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_decisions_total",
				Help:      "Verification decision attempts per action and outcome",
			},
			[]string{"action", "outcome"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
	p.registry.MustRegister(
		p.ledgerEvents,
		p.topUps,
		p.verifications,
		p.decisions,
		p.circuitState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) LedgerEvent(kind, outcome string) {
	p.ledgerEvents.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) TopUp(outcome string) {
	p.topUps.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) VerificationCreated(action string) {
	p.verifications.WithLabelValues(action).Inc()
}

func (p *Prometheus) VerificationDecision(action, outcome string) {
	p.decisions.WithLabelValues(action, outcome).Inc()
}

func (p *Prometheus) CircuitState(name string, state float64) {
	p.circuitState.WithLabelValues(name).Set(state)
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
