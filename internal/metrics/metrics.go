// Package metrics exports solver activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

// Collector records solver outcomes. It implements ipm.Observer and is safe to
// share between concurrent solves.
type Collector struct {
	solves     *prometheus.CounterVec
	flags      *prometheus.CounterVec
	aborted    *prometheus.CounterVec
	iterations prometheus.Histogram
	duration   prometheus.Histogram
	finalStep  prometheus.Histogram
	stalls     prometheus.Counter
	active     prometheus.Gauge
}

var _ ipm.Observer = (*Collector)(nil)

// NewCollector registers the solver metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ipm_solves_total",
			Help: "Finished solves by outcome",
		}, []string{"outcome"}),
		flags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ipm_status_flags_total",
			Help: "Status flags set on finished solves",
		}, []string{"flag"}),
		aborted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ipm_solves_aborted_total",
			Help: "Solves that ended without a status",
		}, []string{"reason"}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipm_solve_iterations",
			Help:    "Iterations per finished solve",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipm_solve_duration_seconds",
			Help:    "Wall time per finished solve",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		finalStep: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipm_final_step_size",
			Help:    "Last step size of finished solves",
			Buckets: []float64{1e-7, 1e-4, 0.01, 0.1, 0.5, 0.9, 0.99, 1},
		}),
		stalls: f.NewCounter(prometheus.CounterOpts{
			Name: "ipm_stall_corrections_total",
			Help: "Iterations whose step fell below alphaMin",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "ipm_active_solves",
			Help: "Solves currently iterating",
		}),
	}
}

// Outcome reduces a status to its leading condition.
func Outcome(s ipm.Status) string {
	switch {
	case s == ipm.StatusConverged:
		return "converged"
	case s.Has(ipm.StatusPrimalInfeasible):
		return "primal_infeasible"
	case s.Has(ipm.StatusDualInfeasible):
		return "dual_infeasible"
	case s.Has(ipm.StatusHessianFailure):
		return "hessian_failure"
	default:
		return "exceeded_iterations"
	}
}

func (c *Collector) SolveStarted(ipm.StartInfo) {
	c.active.Inc()
}

func (c *Collector) IterationCompleted(rec ipm.IterationRecord) {
	if rec.Stalled {
		c.stalls.Inc()
	}
}

func (c *Collector) SolveFinished(sum ipm.Summary) {
	c.active.Dec()
	c.solves.WithLabelValues(Outcome(sum.Status)).Inc()
	if sum.Status != ipm.StatusConverged {
		for _, name := range sum.Status.Names() {
			c.flags.WithLabelValues(name).Inc()
		}
	}
	c.iterations.Observe(float64(sum.Iterations))
	c.duration.Observe(sum.Elapsed.Seconds())
	c.finalStep.Observe(sum.FinalStepSize)
}

// SolveAborted balances SolveStarted for a solve that returned an error
// instead of a summary.
func (c *Collector) SolveAborted(reason string) {
	c.active.Dec()
	c.aborted.WithLabelValues(reason).Inc()
}
