package ipm

import "math"

// BarrierScheduler owns the barrier parameter of one solve and pushes every
// change to the kernel. Mu never drops below MuMin once the scheduler has
// touched it.
type BarrierScheduler struct {
	cfg    SolverConfig
	kernel NumericKernel
	mu     float64
	muMin  float64
}

// NewBarrierScheduler starts the schedule at mu0 and pushes it to k.
func NewBarrierScheduler(cfg SolverConfig, k NumericKernel, mu0 float64) *BarrierScheduler {
	b := &BarrierScheduler{cfg: cfg, kernel: k, mu: mu0, muMin: cfg.MuMin()}
	k.SetBarrier(mu0)
	return b
}

// Mu returns the current barrier parameter.
func (b *BarrierScheduler) Mu() float64 { return b.mu }

// MuMin returns the floor of the barrier parameter.
func (b *BarrierScheduler) MuMin() float64 { return b.muMin }

func (b *BarrierScheduler) set(mu float64) {
	if mu < b.muMin || math.IsNaN(mu) {
		mu = b.muMin
	}
	b.mu = mu
	b.kernel.SetBarrier(mu)
}

// Centering applies the predictor-based rule after the affine search. The
// update is only trusted after a long affine step with the equalities close
// to satisfied; otherwise mu is left alone and ok is false.
func (b *BarrierScheduler) Centering(alphaAffine, eqNorm, gap float64) (sigma float64, ok bool) {
	if !(alphaAffine > b.cfg.AlphaMax/2) {
		return 0, false
	}
	if b.cfg.NG > 0 && !(eqNorm < 100*b.cfg.EqualTolerance) {
		return 0, false
	}

	sigma = b.kernel.CenteringRatio()
	sigma = math.Max(0, math.Min(1, sigma))
	if b.cfg.Delta == 2 {
		sigma = sigma * sigma
	} else {
		sigma = sigma * sigma * sigma
	}
	b.set(sigma * gap / float64(b.cfg.NF))
	return sigma, true
}

// Heuristic applies the aggressive/conservative rule after the combined
// step. An iteration counts as good after a long step close to the central
// path; good reports which factor was used.
func (b *BarrierScheduler) Heuristic(alpha, gradNorm, eqNorm float64) (good bool) {
	nearGrad := gradNorm < math.Max(1e-1, 1e2*b.cfg.GradTolerance)
	nearEq := b.cfg.NG == 0 || eqNorm < math.Max(1e-3, 1e2*b.cfg.EqualTolerance)

	if alpha > .5 && nearGrad && nearEq {
		b.set(b.mu * b.cfg.MuFactorAggressive)
		return true
	}

	b.set(b.mu * b.cfg.MuFactorConservative)
	if alpha < b.cfg.DualResetThreshold {
		b.set(math.Min(1e2, 1.25*b.mu))
		b.kernel.InitializeInequalityDual()
	}
	return false
}

// StallCorrection raises mu after a step that did not move, undoing the
// conservative decrease twice over. It reports whether it fired.
func (b *BarrierScheduler) StallCorrection(alpha float64) bool {
	if !(alpha < b.cfg.AlphaMin) {
		return false
	}
	f := b.cfg.MuFactorConservative
	b.set(b.mu / (f * f))
	return true
}
