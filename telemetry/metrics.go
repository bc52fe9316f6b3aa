package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "defcheck"

// Metrics records validation events as Prometheus metrics.
type Metrics struct {
	validations   *prometheus.CounterVec
	ruleFaults    *prometheus.CounterVec
	requestFaults *prometheus.CounterVec
	duration      prometheus.Histogram
	reloads       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validations by outcome (acceptable, rejected, degraded).",
		}, []string{"outcome"}),
		ruleFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_faults_total",
			Help:      "Rule evaluations that faulted or timed out.",
		}, []string{"rule"}),
		requestFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_faults_total",
			Help:      "Degraded validations by error code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time to produce a validation result.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Catalog reload attempts by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.validations, m.ruleFaults, m.requestFaults, m.duration, m.reloads} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) RuleFault(_ context.Context, f RuleFault) {
	m.ruleFaults.WithLabelValues(f.RuleCode).Inc()
}

func (m *Metrics) RequestFault(_ context.Context, f RequestFault) {
	m.requestFaults.WithLabelValues(f.Code).Inc()
}

func (m *Metrics) Completed(_ context.Context, c Completion) {
	outcome := "rejected"
	switch {
	case c.Degraded:
		outcome = "degraded"
	case c.Acceptable:
		outcome = "acceptable"
	}
	m.validations.WithLabelValues(outcome).Inc()
	m.duration.Observe(c.Duration.Seconds())
}

// CatalogReloaded counts a reload attempt.
func (m *Metrics) CatalogReloaded(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}
