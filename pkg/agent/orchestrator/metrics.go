package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeFinished          = "finished"
	OutcomeContractViolation = "contract_violation"
	OutcomeBudgetExhausted   = "step_budget_exhausted"
	OutcomeError             = "error"
)

// Metrics exposes Prometheus collectors for orchestration activity.
type Metrics struct {
	runs               *prometheus.CounterVec
	plannerSteps       prometheus.Histogram
	delegations        *prometheus.CounterVec
	contractViolations prometheus.Counter
	doerSteps          prometheus.Histogram
	redactedOutputs    prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global registry.
// The collectors are created once so several orchestrators can share them.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg and panics on conflicts,
// mirroring promauto. Tests pass a fresh registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stepBuckets := prometheus.LinearBuckets(1, 1, 10)

	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Orchestrator invocations by outcome.",
		}, []string{"outcome"}),
		plannerSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scout",
			Subsystem: "orchestrator",
			Name:      "planner_steps",
			Help:      "Planner calls per invocation.",
			Buckets:   stepBuckets,
		}),
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "orchestrator",
			Name:      "delegations_total",
			Help:      "Tasks handed to the doer, by whether the result was best effort.",
		}, []string{"best_effort"}),
		contractViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "orchestrator",
			Name:      "contract_violations_total",
			Help:      "Planner replies outside the TASK/FINISH grammar.",
		}),
		doerSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scout",
			Subsystem: "doer",
			Name:      "steps",
			Help:      "Doer loop steps per delegation.",
			Buckets:   stepBuckets,
		}),
		redactedOutputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "compaction",
			Name:      "redacted_outputs_total",
			Help:      "Tool outputs replaced before a planner call.",
		}),
	}
	reg.MustRegister(m.runs, m.plannerSteps, m.delegations, m.contractViolations, m.doerSteps, m.redactedOutputs)
	return m
}

func (m *Metrics) observeRun(outcome string, steps int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.plannerSteps.Observe(float64(steps))
	if outcome == OutcomeContractViolation {
		m.contractViolations.Inc()
	}
}

func (m *Metrics) observeDelegation(steps int, bestEffort bool) {
	if m == nil {
		return
	}
	label := "false"
	if bestEffort {
		label = "true"
	}
	m.delegations.WithLabelValues(label).Inc()
	m.doerSteps.Observe(float64(steps))
}

func (m *Metrics) addRedacted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.redactedOutputs.Add(float64(n))
}
