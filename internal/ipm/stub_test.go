package ipm

import (
	"math"
	"time"
)

// lpKernel solves the separable linear program
//
//	minimize cᵀx  subject to  x ≥ 0
//
// in closed form. With F = x the Newton system decouples per coordinate:
// dλ = c − λ and dx = (μ − x∘c)/λ.
type lpKernel struct {
	c, x0 []float64

	x, lam    []float64
	mu, alpha float64

	gradCalls int
	nanAt     int
	commits   int
	inits     []string
	dumps     []string
}

func newLPKernel(c, x0 []float64) *lpKernel {
	return &lpKernel{
		c:   c,
		x0:  x0,
		x:   make([]float64, len(c)),
		lam: make([]float64, len(c)),
		mu:  1,
	}
}

func (k *lpKernel) InitializePrimalDual() {
	k.inits = append(k.inits, "primal_dual")
	copy(k.x, k.x0)
	for i := range k.lam {
		k.lam[i] = 1
	}
}

func (k *lpKernel) InitializeEqualityDual() { k.inits = append(k.inits, "equality") }

func (k *lpKernel) InitializeInequalityDual() {
	k.inits = append(k.inits, "inequality")
	for i := range k.lam {
		k.lam[i] = k.mu / k.x[i]
	}
}

func (k *lpKernel) SetStepSize(alpha float64) { k.alpha = alpha }
func (k *lpKernel) SetBarrier(mu float64)     { k.mu = mu }

func (k *lpKernel) EvaluateObjective() (f, g float64) {
	for i := range k.x {
		f += k.c[i] * k.x[i]
		g -= k.mu * math.Log(k.x[i])
	}
	return f, f + g
}

func (k *lpKernel) GradientInfNorm() float64 {
	k.gradCalls++
	if k.gradCalls == k.nanAt {
		return math.NaN()
	}
	var n float64
	for i := range k.c {
		n = math.Max(n, math.Abs(k.c[i]-k.lam[i]))
	}
	return n
}

func (k *lpKernel) EqualityInfNorm() float64 { return 0 }

func (k *lpKernel) GapAndFeasibility() (gap, minSlack, minDual float64) {
	minSlack, minDual = math.Inf(1), math.Inf(1)
	for i := range k.x {
		gap += k.x[i] * k.lam[i]
		minSlack = math.Min(minSlack, k.x[i])
		minDual = math.Min(minDual, k.lam[i])
	}
	return gap, minSlack, minDual
}

func (k *lpKernel) direction(mu float64) (dx, dlam []float64) {
	dx = make([]float64, len(k.x))
	dlam = make([]float64, len(k.x))
	for i := range k.x {
		dlam[i] = k.c[i] - k.lam[i]
		dx[i] = (mu - k.x[i]*k.c[i]) / k.lam[i]
	}
	return dx, dlam
}

func maxRatio(v, dv []float64) float64 {
	a := math.Inf(1)
	for i := range v {
		if dv[i] < 0 {
			a = math.Min(a, -v[i]/dv[i])
		}
	}
	return a
}

func (k *lpKernel) MaxStepAffine() (primal, dual float64) {
	dx, dlam := k.direction(0)
	return maxRatio(k.x, dx), maxRatio(k.lam, dlam)
}

func (k *lpKernel) MaxStepCombined() (primal, dual float64) {
	dx, dlam := k.direction(k.mu)
	return maxRatio(k.x, dx), maxRatio(k.lam, dlam)
}

func (k *lpKernel) margin(mu, alpha float64) float64 {
	dx, _ := k.direction(mu)
	m := math.Inf(1)
	for i := range k.x {
		m = math.Min(m, k.x[i]+alpha*dx[i])
	}
	return m
}

func (k *lpKernel) MinInequalityMarginAffine(alpha float64) float64 { return k.margin(0, alpha) }

func (k *lpKernel) MinInequalityMarginCombined(alpha float64) float64 { return k.margin(k.mu, alpha) }

func (k *lpKernel) CenteringRatio() float64 {
	dx, dlam := k.direction(0)
	var num, den float64
	for i := range k.x {
		num += (k.x[i] + k.alpha*dx[i]) * (k.lam[i] + k.alpha*dlam[i])
		den += k.x[i] * k.lam[i]
	}
	return num / den
}

func (k *lpKernel) CommitCombinedStep() {
	k.commits++
	dx, dlam := k.direction(k.mu)
	for i := range k.x {
		k.x[i] += k.alpha * dx[i]
		k.lam[i] += k.alpha * dlam[i]
	}
}

func (k *lpKernel) DumpWorkingSet(name string)    { k.dumps = append(k.dumps, name) }
func (k *lpKernel) DumpStepDirection(name string) { k.dumps = append(k.dumps, name) }
func (k *lpKernel) DumpRHS(name string)           { k.dumps = append(k.dumps, name) }

func (k *lpKernel) Iterate() Iterate {
	return Iterate{
		Z:      append([]float64(nil), k.x...),
		Nu:     []float64{},
		Lambda: append([]float64(nil), k.lam...),
	}
}

func (k *lpKernel) Constraints() (f, g []float64) {
	return append([]float64(nil), k.x...), []float64{}
}

func (k *lpKernel) CombinedDirection() (dz, dnu, dlambda []float64) {
	dx, dlam := k.direction(k.mu)
	return dx, []float64{}, dlam
}

// quadKernel minimizes ½‖x − t‖² without constraints; its Newton step is
// t − x.
type quadKernel struct {
	t, x    []float64
	alpha   float64
	commits int
}

func newQuadKernel(t []float64) *quadKernel {
	return &quadKernel{t: t, x: make([]float64, len(t))}
}

func (k *quadKernel) InitializePrimalDual() {
	for i := range k.x {
		k.x[i] = 0
	}
}
func (k *quadKernel) InitializeEqualityDual()   {}
func (k *quadKernel) InitializeInequalityDual() {}
func (k *quadKernel) SetStepSize(alpha float64) { k.alpha = alpha }
func (k *quadKernel) SetBarrier(float64)        {}

func (k *quadKernel) EvaluateObjective() (f, g float64) {
	for i := range k.x {
		f += .5 * (k.x[i] - k.t[i]) * (k.x[i] - k.t[i])
	}
	return f, f
}

func (k *quadKernel) GradientInfNorm() float64 {
	var n float64
	for i := range k.x {
		n = math.Max(n, math.Abs(k.x[i]-k.t[i]))
	}
	return n
}

func (k *quadKernel) EqualityInfNorm() float64                       { return 0 }
func (k *quadKernel) GapAndFeasibility() (float64, float64, float64) { return 0, 1, 1 }
func (k *quadKernel) MaxStepAffine() (float64, float64)              { return math.Inf(1), math.Inf(1) }
func (k *quadKernel) MaxStepCombined() (float64, float64)            { return math.Inf(1), math.Inf(1) }
func (k *quadKernel) MinInequalityMarginAffine(float64) float64      { return math.Inf(1) }
func (k *quadKernel) MinInequalityMarginCombined(float64) float64    { return math.Inf(1) }
func (k *quadKernel) CenteringRatio() float64                        { return 0 }

func (k *quadKernel) CommitCombinedStep() {
	k.commits++
	for i := range k.x {
		k.x[i] += k.alpha * (k.t[i] - k.x[i])
	}
}

// scriptedKernel exposes fixed maximum steps and margin functions to the
// line search.
type scriptedKernel struct {
	lpKernel
	primal, dual float64
	marginFn     func(alpha float64) float64
	probes       []float64
	committedAt  []float64
}

func (k *scriptedKernel) MaxStepAffine() (float64, float64)   { return k.primal, k.dual }
func (k *scriptedKernel) MaxStepCombined() (float64, float64) { return k.primal, k.dual }

func (k *scriptedKernel) MinInequalityMarginAffine(alpha float64) float64 {
	k.probes = append(k.probes, alpha)
	return k.marginFn(alpha)
}

func (k *scriptedKernel) MinInequalityMarginCombined(alpha float64) float64 {
	k.probes = append(k.probes, alpha)
	return k.marginFn(alpha)
}

func (k *scriptedKernel) CommitCombinedStep() {
	k.committedAt = append(k.committedAt, k.alpha)
}

// stepClock advances by a fixed amount on every reading.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// recordingObserver keeps everything it is sent.
type recordingObserver struct {
	starts     []StartInfo
	iterations []IterationRecord
	summaries  []Summary
}

func (o *recordingObserver) SolveStarted(info StartInfo)            { o.starts = append(o.starts, info) }
func (o *recordingObserver) IterationCompleted(rec IterationRecord) { o.iterations = append(o.iterations, rec) }
func (o *recordingObserver) SolveFinished(sum Summary)              { o.summaries = append(o.summaries, sum) }

func lpConfig() SolverConfig {
	cfg := DefaultSolverConfig(3, 0, 3)
	cfg.GradTolerance = 1e-8
	cfg.EqualTolerance = 1e-8
	cfg.DesiredDualityGap = 1e-8
	return cfg
}
