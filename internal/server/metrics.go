package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry          *prometheus.Registry
	connectsTotal     *prometheus.CounterVec
	transactionsTotal *prometheus.CounterVec
	stepActionsTotal  *prometheus.CounterVec
	activeStep        prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	connects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_session_connects_total",
		Help: "Total number of wallet connect attempts",
	}, []string{"status"})

	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_transactions_total",
		Help: "Confirmed and failed on-chain transactions",
	}, []string{"kind", "status"})

	stepActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintgate_step_actions_total",
		Help: "Mint workflow step actions by outcome",
	}, []string{"step", "outcome"})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mintgate_workflow_active_step",
		Help: "Ordinal of the active burn-mint step, -1 when no run exists",
	})
	active.Set(-1)

	r := prometheus.NewRegistry()
	r.MustRegister(connects, transactions, stepActions, active)

	return &metricsRegistry{
		registry:          r,
		connectsTotal:     connects,
		transactionsTotal: transactions,
		stepActionsTotal:  stepActions,
		activeStep:        active,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incConnect(status string) {
	m.connectsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incTx(kind, status string) {
	m.transactionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *metricsRegistry) incStep(step, outcome string) {
	m.stepActionsTotal.WithLabelValues(step, outcome).Inc()
}

func (m *metricsRegistry) setActiveStep(ordinal int) {
	m.activeStep.Set(float64(ordinal))
}
