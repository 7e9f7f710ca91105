package dense

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

func mustProblem(t *testing.T, s Spec) *Problem {
	t.Helper()
	p, err := s.Problem()
	require.NoError(t, err)
	return p
}

// lpSpec is min x1 + 2 x2 subject to x ≥ 0 and x1 + x2 ≥ 1, optimal at (1, 0).
func lpSpec() Spec {
	return Spec{
		C:  []float64{1, 2},
		G:  [][]float64{{-1, 0}, {0, -1}, {-1, -1}},
		H:  []float64{0, 0, -1},
		X0: []float64{1, 1},
	}
}

func solve(t *testing.T, p *Problem) (*ipm.Result, *Kernel) {
	t.Helper()
	k, err := NewKernel(p, WithLogger(zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))))
	require.NoError(t, err)

	cfg := p.SolverConfig(ipm.DefaultSolverConfig(0, 0, 0))
	cfg.GradTolerance = 1e-8
	cfg.EqualTolerance = 1e-8
	cfg.DesiredDualityGap = 1e-8
	d, err := ipm.NewDriver(cfg, k)
	require.NoError(t, err)

	res, err := d.Solve(context.Background(), 1, 200, 0)
	require.NoError(t, err)
	return res, k
}

func TestNewKernel(t *testing.T) {
	_, err := NewKernel(nil)
	assert.Error(t, err)

	_, err = NewKernel(&Problem{C: []float64{1}, X0: []float64{1, 2}})
	assert.Error(t, err)

	k, err := NewKernel(mustProblem(t, lpSpec()))
	require.NoError(t, err)
	it := k.Iterate()
	assert.Equal(t, []float64{1, 1}, it.Z)
	assert.Equal(t, []float64{1, 1, 1}, it.Lambda)
	assert.Empty(t, it.Nu)

	f, g := k.Constraints()
	assert.Equal(t, []float64{1, 1, 1}, f)
	assert.Empty(t, g)
}

func TestKernelMeasurements(t *testing.T) {
	k, err := NewKernel(mustProblem(t, lpSpec()))
	require.NoError(t, err)

	k.SetBarrier(.5)
	k.InitializeInequalityDual()
	assert.Equal(t, []float64{.5, .5, .5}, k.Iterate().Lambda)

	gap, minSlack, minDual := k.GapAndFeasibility()
	assert.InDelta(t, 1.5, gap, 1e-15)
	assert.Equal(t, 1.0, minSlack)
	assert.Equal(t, .5, minDual)

	// c + Gᵀλ = (1 − 1, 2 − 1).
	assert.InDelta(t, 1, k.GradientInfNorm(), 1e-12)
	assert.Zero(t, k.EqualityInfNorm())

	obj, barrier := k.EvaluateObjective()
	assert.Equal(t, 3.0, obj)
	assert.Equal(t, 3.0, barrier) // log(1) terms vanish
}

func TestKernelDirections(t *testing.T) {
	k, err := NewKernel(mustProblem(t, lpSpec()))
	require.NoError(t, err)
	k.InitializeInequalityDual()

	for _, probe := range []struct {
		name   string
		steps  func() (float64, float64)
		margin func(float64) float64
	}{
		{"affine", k.MaxStepAffine, k.MinInequalityMarginAffine},
		{"combined", k.MaxStepCombined, k.MinInequalityMarginCombined},
	} {
		t.Run(probe.name, func(t *testing.T) {
			primal, dual := probe.steps()
			assert.True(t, primal > 0)
			assert.True(t, dual > 0)
			assert.Equal(t, 1.0, probe.margin(0))
			if !math.IsInf(primal, 1) {
				assert.InDelta(t, 0, probe.margin(primal), 1e-12)
			}
		})
	}

	k.SetStepSize(0)
	assert.InDelta(t, 1, k.CenteringRatio(), 1e-12)

	dz, dnu, dlam := k.CombinedDirection()
	assert.Len(t, dz, 2)
	assert.Empty(t, dnu)
	assert.Len(t, dlam, 3)

	before := k.Iterate()
	k.SetStepSize(.5)
	k.CommitCombinedStep()
	after := k.Iterate()
	for i := range dz {
		assert.InDelta(t, before.Z[i]+.5*dz[i], after.Z[i], 1e-12)
	}
}

func TestSolveLP(t *testing.T) {
	res, k := solve(t, mustProblem(t, lpSpec()))

	require.Equal(t, ipm.StatusConverged, res.Status, res.Status.String())
	assert.Greater(t, res.Iterations, 1)
	assert.Less(t, res.Iterations, 200)
	require.NotNil(t, res.Iterate)
	assert.InDeltaSlice(t, []float64{1, 0}, res.Iterate.Z, 1e-6)
	assert.InDeltaSlice(t, []float64{0, 1, 1}, res.Iterate.Lambda, 1e-6)

	gap, minSlack, minDual := k.GapAndFeasibility()
	assert.LessOrEqual(t, gap, 1e-8)
	assert.Greater(t, minSlack, 0.0)
	assert.Greater(t, minDual, 0.0)
}

func TestSolveQP(t *testing.T) {
	p := mustProblem(t, Spec{
		P:  [][]float64{{1, 0}, {0, 1}},
		C:  []float64{0, 0},
		A:  [][]float64{{1, 1}},
		B:  []float64{1},
		G:  [][]float64{{-1, 0}, {0, -1}},
		H:  []float64{0, 0},
		X0: []float64{2, 1},
	})
	res, _ := solve(t, p)

	require.Equal(t, ipm.StatusConverged, res.Status, res.Status.String())
	assert.InDeltaSlice(t, []float64{.5, .5}, res.Iterate.Z, 1e-6)
	assert.InDeltaSlice(t, []float64{-.5}, res.Iterate.Nu, 1e-6)
}

func TestSolveEqualityQP(t *testing.T) {
	p := mustProblem(t, Spec{
		P: [][]float64{{1, 0}, {0, 1}},
		C: []float64{1, 0},
		A: [][]float64{{1, 1}},
		B: []float64{1},
	})
	res, _ := solve(t, p)

	require.Equal(t, ipm.StatusConverged, res.Status, res.Status.String())
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1.0, res.FinalStepSize)
	assert.Zero(t, res.Mu)
	assert.InDeltaSlice(t, []float64{0, 1}, res.Iterate.Z, 1e-12)
	assert.InDeltaSlice(t, []float64{-1}, res.Iterate.Nu, 1e-12)
}

// With inactive bounds the barrier solution must match an unconstrained
// quasi-Newton minimizer.
func TestSolveMatchesBFGS(t *testing.T) {
	spec := Spec{
		P:  [][]float64{{4, 1}, {1, 3}},
		C:  []float64{1, 2},
		G:  [][]float64{{-1, 0}, {0, -1}},
		H:  []float64{10, 10},
		X0: []float64{1, 1},
	}
	p := mustProblem(t, spec)
	res, _ := solve(t, p)
	require.Equal(t, ipm.StatusConverged, res.Status, res.Status.String())

	obj := optimize.Problem{
		Func: func(x []float64) float64 {
			px := mat.NewVecDense(2, nil)
			px.MulVec(p.P, mat.NewVecDense(2, x))
			return .5*floats.Dot(x, px.RawVector().Data) + floats.Dot(p.C, x)
		},
		Grad: func(grad, x []float64) {
			px := mat.NewVecDense(2, nil)
			px.MulVec(p.P, mat.NewVecDense(2, x))
			floats.AddTo(grad, px.RawVector().Data, p.C)
		},
	}
	ref, err := optimize.Minimize(obj, []float64{1, 1}, nil, &optimize.BFGS{})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{-1.0 / 11, -7.0 / 11}, ref.X, 1e-6)
	assert.InDeltaSlice(t, ref.X, res.Iterate.Z, 1e-6)
}

func TestSolveSingular(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	k, err := NewKernel(mustProblem(t, Spec{C: []float64{1, 1}}), WithLogger(zap.New(core)))
	require.NoError(t, err)

	cfg := ipm.DefaultSolverConfig(2, 0, 0)
	cfg.AllowSave = true
	d, err := ipm.NewDriver(cfg, k)
	require.NoError(t, err)
	res, err := d.Solve(context.Background(), 1, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, ipm.StatusHessianFailure, res.Status)
	assert.Equal(t, 1, res.Iterations)

	ws := logs.FilterMessage("working set").AllUntimed()
	require.NotEmpty(t, ws)
	assert.Equal(t, true, ws[0].ContextMap()["singular"])
	assert.Equal(t, "ipm_WW.values", ws[0].ContextMap()["name"])
}

func TestKernelDumps(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	k, err := NewKernel(mustProblem(t, lpSpec()), WithLogger(zap.New(core)))
	require.NoError(t, err)
	k.InitializeInequalityDual()

	k.DumpWorkingSet("ipm_ws")
	k.DumpStepDirection("ipm_dir")
	k.DumpRHS("ipm_rhs")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	for i, want := range []struct{ msg, name string }{
		{"working set", "ipm_ws"},
		{"step direction", "ipm_dir"},
		{"right-hand side", "ipm_rhs"},
	} {
		assert.Equal(t, want.msg, entries[i].Message)
		assert.Equal(t, "dense_kernel", entries[i].LoggerName)
		assert.Equal(t, want.name, entries[i].ContextMap()["name"])
	}
	assert.Equal(t, false, entries[0].ContextMap()["singular"])
	assert.NotEmpty(t, entries[0].ContextMap()["matrix"])
	assert.Len(t, entries[1].ContextMap()["dz"], 2)
	assert.Len(t, entries[2].ContextMap()["b"], 2)
}

func TestWorkspaceReuse(t *testing.T) {
	ws := newWorkspace(3)
	m := ws.getDense(2, 3)
	m.Set(1, 1, 5)
	ws.putDense(m)

	again := ws.getDense(2, 3)
	assert.Same(t, m, again)
	assert.Zero(t, again.At(1, 1))
	assert.NotSame(t, m, ws.getDense(3, 2))

	v := ws.getVec(4)
	v.SetVec(0, 1)
	ws.putVec(v)
	assert.Same(t, v, ws.getVec(4))
	assert.Zero(t, v.AtVec(0))
}
