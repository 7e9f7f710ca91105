package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		status ipm.Status
		want   string
	}{
		{ipm.StatusConverged, "converged"},
		{ipm.StatusPrimalInfeasible, "primal_infeasible"},
		{ipm.StatusDualInfeasible, "dual_infeasible"},
		{ipm.StatusHessianFailure, "hessian_failure"},
		{ipm.StatusExceededIterations | ipm.StatusGapUnmet, "exceeded_iterations"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.status))
		})
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SolveStarted(ipm.StartInfo{})
	c.SolveStarted(ipm.StartInfo{})
	c.SolveStarted(ipm.StartInfo{})
	assert.Equal(t, 3.0, testutil.ToFloat64(c.active))

	c.IterationCompleted(ipm.IterationRecord{Iteration: 1})
	c.IterationCompleted(ipm.IterationRecord{Iteration: 2, Stalled: true})

	c.SolveFinished(ipm.Summary{Status: ipm.StatusConverged, Iterations: 12, Elapsed: time.Millisecond, FinalStepSize: .99})
	c.SolveFinished(ipm.Summary{
		Status:        ipm.StatusExceededIterations | ipm.StatusGapUnmet | ipm.StatusStepBelowHalf,
		Iterations:    201,
		Elapsed:       time.Second,
		FinalStepSize: .3,
	})
	c.SolveAborted("cancelled")

	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.solves.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.solves.WithLabelValues("exceeded_iterations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flags.WithLabelValues("gap_unmet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flags.WithLabelValues("step_below_half")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.aborted.WithLabelValues("cancelled")))
	var m dto.Metric
	require.NoError(t, c.iterations.Write(&m))
	assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
	assert.Equal(t, 213.0, m.GetHistogram().GetSampleSum())

	n, err := testutil.GatherAndCount(reg, "ipm_solves_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
