package dense

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

var (
	_ ipm.NumericKernel = (*Kernel)(nil)
	_ ipm.Dumper        = (*Kernel)(nil)
	_ ipm.TraceSource   = (*Kernel)(nil)
)

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the logger used for dumps and conditioning warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// direction is one Newton direction and the induced change of the slacks.
type direction struct {
	dx, dnu, dlam, df []float64
}

func nanDirection(nZ, nG, nF int) *direction {
	d := &direction{
		dx:   make([]float64, nZ),
		dnu:  make([]float64, nG),
		dlam: make([]float64, nF),
		df:   make([]float64, nF),
	}
	for _, s := range [][]float64{d.dx, d.dnu, d.dlam, d.df} {
		for i := range s {
			s[i] = math.NaN()
		}
	}
	return d
}

// Kernel is a dense NumericKernel. The Newton system is reduced by
// eliminating the inequality multipliers,
//
//	[ P + GᵀDG  Aᵀ ] [dx ]   [ −(Px + c + Aᵀν + Gᵀ(μ/F)) ]
//	[ A         0  ] [dν ] = [ −(Ax − b)                 ]
//
// with D = diag(λ/F), and dλ = μ/F − λ + D·G·dx. The affine direction uses
// μ = 0, the combined direction the current barrier.
type Kernel struct {
	prob       *Problem
	nZ, nG, nF int
	logger     *zap.Logger
	ws         *workspace

	x, nu, lam []float64
	mu, alpha  float64

	// Derived from the iterate; reset by refresh.
	slack    []float64
	lu       mat.LU
	factored bool
	singular bool
	affine   *direction
	combined *direction
}

// NewKernel creates a kernel positioned at the problem's starting point.
func NewKernel(p *Problem, opts ...Option) (*Kernel, error) {
	const op = "NewKernel"

	if p == nil {
		return nil, ipm.NewErrorf("problem must not be nil").WithOperation(op).WithComponent(component)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	nZ, nG, nF := p.Dims()
	k := &Kernel{
		prob:   p,
		nZ:     nZ,
		nG:     nG,
		nF:     nF,
		logger: zap.NewNop(),
		ws:     newWorkspace(nZ + nG),
		x:      make([]float64, nZ),
		nu:     make([]float64, nG),
		lam:    make([]float64, nF),
		slack:  make([]float64, nF),
		mu:     1,
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.Named("dense_kernel")
	k.InitializePrimalDual()
	return k, nil
}

// mulVec returns m·v, or mᵀ·v when trans is set.
func mulVec(m mat.Matrix, trans bool, v []float64) []float64 {
	if trans {
		m = m.T()
	}
	r, _ := m.Dims()
	out := make([]float64, r)
	mat.NewVecDense(r, out).MulVec(m, mat.NewVecDense(len(v), v))
	return out
}

// refresh drops everything derived from the previous iterate.
func (k *Kernel) refresh() {
	k.factored, k.singular = false, false
	k.affine, k.combined = nil, nil
	if k.nF > 0 {
		floats.SubTo(k.slack, k.prob.H, mulVec(k.prob.G, false, k.x))
	}
}

// stationarity returns Px + c + Aᵀν + Gᵀw.
func (k *Kernel) stationarity(w []float64) []float64 {
	r := append([]float64(nil), k.prob.C...)
	if k.prob.P != nil {
		floats.Add(r, mulVec(k.prob.P, false, k.x))
	}
	if k.nG > 0 {
		floats.Add(r, mulVec(k.prob.A, true, k.nu))
	}
	if k.nF > 0 {
		floats.Add(r, mulVec(k.prob.G, true, w))
	}
	return r
}

// factor assembles and factors the Newton matrix at the current iterate. It
// reports false when the matrix is singular.
func (k *Kernel) factor() bool {
	if k.factored {
		return !k.singular
	}
	k.factored = true

	n := k.nZ + k.nG
	kkt := k.ws.kkt
	kkt.Zero()
	h := kkt.Slice(0, k.nZ, 0, k.nZ).(*mat.Dense)
	if k.prob.P != nil {
		h.Copy(k.prob.P)
	}
	if k.nF > 0 {
		scaled := k.ws.getDense(k.nF, k.nZ)
		scaled.Copy(k.prob.G)
		for i := 0; i < k.nF; i++ {
			floats.Scale(k.lam[i]/k.slack[i], scaled.RawRowView(i))
		}
		gtdg := k.ws.getDense(k.nZ, k.nZ)
		gtdg.Mul(k.prob.G.T(), scaled)
		h.Add(h, gtdg)
		k.ws.putDense(scaled)
		k.ws.putDense(gtdg)
	}
	if k.nG > 0 {
		kkt.Slice(k.nZ, n, 0, k.nZ).(*mat.Dense).Copy(k.prob.A)
		kkt.Slice(0, k.nZ, k.nZ, n).(*mat.Dense).Copy(k.prob.A.T())
	}

	for _, v := range kkt.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			k.singular = true
			return false
		}
	}
	k.lu.Factorize(kkt)
	logDet, _ := k.lu.LogDet()
	if c := k.lu.Cond(); math.IsInf(logDet, -1) || math.IsInf(c, 1) || math.IsNaN(c) {
		k.singular = true
	}
	return !k.singular
}

// solve computes the Newton direction targeting F∘λ = mu. A singular system
// yields a direction of NaNs so every later probe reports the failure.
func (k *Kernel) solve(mu float64, keep bool) *direction {
	if !k.factor() {
		return nanDirection(k.nZ, k.nG, k.nF)
	}

	n := k.nZ + k.nG
	w := make([]float64, k.nF)
	for i := range w {
		w[i] = mu / k.slack[i]
	}
	rhs := k.ws.getVec(n)
	defer k.ws.putVec(rhs)
	for i, v := range k.stationarity(w) {
		rhs.SetVec(i, -v)
	}
	if k.nG > 0 {
		for i, v := range mulVec(k.prob.A, false, k.x) {
			rhs.SetVec(k.nZ+i, k.prob.B[i]-v)
		}
	}

	sol := k.ws.getVec(n)
	defer k.ws.putVec(sol)
	if err := k.lu.SolveVecTo(sol, false, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			k.logger.Debug("newton system solve failed", zap.Error(err))
			return nanDirection(k.nZ, k.nG, k.nF)
		}
		k.logger.Debug("ill-conditioned newton system", zap.Float64("condition", float64(cond)))
	}
	if keep {
		k.ws.rhs.CopyVec(rhs)
		k.ws.sol.CopyVec(sol)
	}

	raw := sol.RawVector().Data
	d := &direction{
		dx:   append([]float64(nil), raw[:k.nZ]...),
		dnu:  append([]float64(nil), raw[k.nZ:n]...),
		dlam: make([]float64, k.nF),
		df:   make([]float64, k.nF),
	}
	if k.nF > 0 {
		gdx := mulVec(k.prob.G, false, d.dx)
		for i := range d.df {
			d.df[i] = -gdx[i]
			d.dlam[i] = mu/k.slack[i] - k.lam[i] - k.lam[i]/k.slack[i]*d.df[i]
		}
	}
	return d
}

func (k *Kernel) affineDirection() *direction {
	if k.affine == nil {
		k.affine = k.solve(0, false)
	}
	return k.affine
}

func (k *Kernel) combinedDirection() *direction {
	if k.combined == nil {
		k.combined = k.solve(k.mu, true)
	}
	return k.combined
}

// InitializePrimalDual moves to the problem's starting point, the origin if
// none was given.
func (k *Kernel) InitializePrimalDual() {
	if k.prob.X0 != nil {
		copy(k.x, k.prob.X0)
	} else {
		floats.Scale(0, k.x)
	}
	floats.Scale(0, k.nu)
	for i := range k.lam {
		k.lam[i] = 1
	}
	k.refresh()
}

// InitializeEqualityDual resets ν to zero.
func (k *Kernel) InitializeEqualityDual() {
	floats.Scale(0, k.nu)
	k.refresh()
}

// InitializeInequalityDual places the multipliers on the central path,
// λ = μ/F, for the current barrier.
func (k *Kernel) InitializeInequalityDual() {
	for i, f := range k.slack {
		if f > 0 {
			k.lam[i] = k.mu / f
		} else {
			k.lam[i] = k.mu
		}
	}
	k.refresh()
}

func (k *Kernel) SetStepSize(alpha float64) { k.alpha = alpha }

func (k *Kernel) SetBarrier(mu float64) {
	if mu != k.mu {
		k.mu = mu
		k.combined = nil
	}
}

// EvaluateObjective returns the objective and the barrier objective.
func (k *Kernel) EvaluateObjective() (f, g float64) {
	f = floats.Dot(k.prob.C, k.x)
	if k.prob.P != nil {
		f += .5 * floats.Dot(k.x, mulVec(k.prob.P, false, k.x))
	}
	g = f
	for _, s := range k.slack {
		g -= k.mu * math.Log(s)
	}
	return f, g
}

func (k *Kernel) GradientInfNorm() float64 {
	if !k.factor() {
		return math.NaN()
	}
	return floats.Norm(k.stationarity(k.lam), math.Inf(1))
}

func (k *Kernel) EqualityInfNorm() float64 {
	if k.nG == 0 {
		return 0
	}
	r := mulVec(k.prob.A, false, k.x)
	floats.Sub(r, k.prob.B)
	return floats.Norm(r, math.Inf(1))
}

func (k *Kernel) GapAndFeasibility() (gap, minSlack, minDual float64) {
	if k.nF == 0 {
		return 0, math.Inf(1), math.Inf(1)
	}
	return floats.Dot(k.slack, k.lam), floats.Min(k.slack), floats.Min(k.lam)
}

// ratio returns the largest step keeping v + α·dv non-negative.
func ratio(v, dv []float64) float64 {
	a := math.Inf(1)
	for i := range v {
		if dv[i] < 0 {
			a = math.Min(a, -v[i]/dv[i])
		}
	}
	return a
}

func (k *Kernel) MaxStepAffine() (primal, dual float64) {
	d := k.affineDirection()
	return ratio(k.slack, d.df), ratio(k.lam, d.dlam)
}

func (k *Kernel) MaxStepCombined() (primal, dual float64) {
	d := k.combinedDirection()
	return ratio(k.slack, d.df), ratio(k.lam, d.dlam)
}

func (k *Kernel) margin(d *direction, alpha float64) float64 {
	m := math.Inf(1)
	for i, f := range k.slack {
		m = math.Min(m, f+alpha*d.df[i])
	}
	return m
}

func (k *Kernel) MinInequalityMarginAffine(alpha float64) float64 {
	return k.margin(k.affineDirection(), alpha)
}

func (k *Kernel) MinInequalityMarginCombined(alpha float64) float64 {
	return k.margin(k.combinedDirection(), alpha)
}

// CenteringRatio is the complementarity after the current affine step
// relative to the complementarity now.
func (k *Kernel) CenteringRatio() float64 {
	d := k.affineDirection()
	var num float64
	for i := range k.slack {
		num += (k.slack[i] + k.alpha*d.df[i]) * (k.lam[i] + k.alpha*d.dlam[i])
	}
	return num / floats.Dot(k.slack, k.lam)
}

func (k *Kernel) CommitCombinedStep() {
	d := k.combinedDirection()
	floats.AddScaled(k.x, k.alpha, d.dx)
	floats.AddScaled(k.nu, k.alpha, d.dnu)
	floats.AddScaled(k.lam, k.alpha, d.dlam)
	k.refresh()
}

// Iterate returns a copy of the current point.
func (k *Kernel) Iterate() ipm.Iterate {
	return ipm.Iterate{
		Z:      append([]float64(nil), k.x...),
		Nu:     append([]float64(nil), k.nu...),
		Lambda: append([]float64(nil), k.lam...),
	}
}

// Constraints returns the inequality slacks h − Gx and the equality
// residuals Ax − b.
func (k *Kernel) Constraints() (f, g []float64) {
	f = append([]float64(nil), k.slack...)
	g = make([]float64, k.nG)
	if k.nG > 0 {
		g = mulVec(k.prob.A, false, k.x)
		floats.Sub(g, k.prob.B)
	}
	return f, g
}

func (k *Kernel) CombinedDirection() (dz, dnu, dlambda []float64) {
	d := k.combinedDirection()
	return append([]float64(nil), d.dx...), append([]float64(nil), d.dnu...), append([]float64(nil), d.dlam...)
}

// DumpWorkingSet logs the assembled Newton matrix at debug level.
func (k *Kernel) DumpWorkingSet(name string) {
	k.factor()
	k.logger.Debug("working set",
		zap.String("name", name),
		zap.Bool("singular", k.singular),
		zap.String("matrix", fmt.Sprintf("%.6g", mat.Formatted(k.ws.kkt, mat.Squeeze()))),
	)
}

// DumpStepDirection logs the combined direction at debug level.
func (k *Kernel) DumpStepDirection(name string) {
	d := k.combinedDirection()
	k.logger.Debug("step direction",
		zap.String("name", name),
		zap.Float64s("dz", d.dx),
		zap.Float64s("dnu", d.dnu),
		zap.Float64s("dlambda", d.dlam),
	)
}

// DumpRHS logs the right-hand side of the combined system at debug level.
func (k *Kernel) DumpRHS(name string) {
	k.combinedDirection()
	k.logger.Debug("right-hand side",
		zap.String("name", name),
		zap.Float64s("b", k.ws.rhs.RawVector().Data),
	)
}
