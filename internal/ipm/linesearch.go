package ipm

import "math"

const (
	// stepBack keeps combined steps strictly inside the feasible region.
	stepBack = .99
	// bisectStart scales the maximum step before the halving sequence.
	bisectStart = .95
)

// StepResult describes the outcome of one line search.
type StepResult struct {
	// Alpha is the accepted step, zero when no feasible progress was found
	// or when the committed step fell below alphaMin.
	Alpha float64
	// MaxStep is the bound the search started from.
	MaxStep float64
	// Primal and Dual are the kernel's maximum feasible steps.
	Primal, Dual float64
	// Committed is true when the step was applied to the iterate.
	Committed bool
	// Failed is true when the margin evaluated to NaN.
	Failed bool
}

// BacktrackingLineSearch finds the largest step along a kernel direction
// that keeps every inequality slack non-negative.
type BacktrackingLineSearch struct {
	cfg    SolverConfig
	kernel NumericKernel
}

// NewBacktrackingLineSearch returns a line search over k.
func NewBacktrackingLineSearch(cfg SolverConfig, k NumericKernel) *BacktrackingLineSearch {
	return &BacktrackingLineSearch{cfg: cfg, kernel: k}
}

// margin sets alpha in the kernel and evaluates fn there.
func (ls *BacktrackingLineSearch) margin(fn func(float64) float64, alpha float64) float64 {
	ls.kernel.SetStepSize(alpha)
	return fn(alpha)
}

func (ls *BacktrackingLineSearch) reject(r StepResult) StepResult {
	r.Alpha = 0
	ls.kernel.SetStepSize(0)
	return r
}

// Affine probes the affine predictor direction. The step is never committed;
// it only feeds the centering estimate.
func (ls *BacktrackingLineSearch) Affine() StepResult {
	var r StepResult
	r.Primal, r.Dual = ls.kernel.MaxStepAffine()
	r.MaxStep = math.Min(math.Min(r.Primal, r.Dual), ls.cfg.AlphaMax)
	if !(r.MaxStep >= ls.cfg.AlphaMin) {
		return ls.reject(r)
	}
	fn := ls.kernel.MinInequalityMarginAffine

	alpha := r.MaxStep
	ineq := ls.margin(fn, alpha)
	if math.IsNaN(ineq) {
		r.Failed = true
		return ls.reject(r)
	}
	if ineq >= 0 {
		r.Alpha = alpha
		return r
	}

	if ls.margin(fn, ls.cfg.AlphaMin) < 0 {
		return ls.reject(r)
	}
	for alpha = r.MaxStep * bisectStart; alpha >= ls.cfg.AlphaMin; alpha /= 2 {
		if ls.margin(fn, alpha) >= 0 {
			r.Alpha = alpha
			return r
		}
	}
	return ls.reject(r)
}

// Combined searches the corrector direction and commits the accepted step.
// A candidate is only committed after a second probe, one step-back closer,
// confirms the margin has not collapsed.
func (ls *BacktrackingLineSearch) Combined() StepResult {
	var r StepResult
	r.Primal, r.Dual = ls.kernel.MaxStepCombined()
	r.MaxStep = math.Min(stepBack*math.Min(r.Primal, r.Dual), ls.cfg.AlphaMax)
	if !(r.MaxStep >= ls.cfg.AlphaMin) {
		return ls.reject(r)
	}
	fn := ls.kernel.MinInequalityMarginCombined

	alpha := r.MaxStep / stepBack
	ineq := ls.margin(fn, alpha)
	if math.IsNaN(ineq) {
		r.Failed = true
		return ls.reject(r)
	}
	if ineq >= 0 && ls.confirm(fn, alpha*stepBack, ineq) {
		r.Alpha, r.Committed = alpha*stepBack, true
		return r
	}

	if ls.margin(fn, ls.cfg.AlphaMin/stepBack) < 0 {
		return ls.reject(r)
	}
	for alpha = r.MaxStep * bisectStart; alpha >= ls.cfg.AlphaMin; alpha /= 2 {
		ineq = ls.margin(fn, alpha)
		if ineq < 0 {
			continue
		}
		alpha *= stepBack
		if !ls.confirm(fn, alpha, ineq) {
			continue
		}
		r.Committed = true
		if alpha < ls.cfg.AlphaMin {
			// The step-back pushed a committed step under alphaMin; it is
			// applied but reported as no progress.
			ls.kernel.SetStepSize(0)
			return r
		}
		r.Alpha = alpha
		return r
	}
	return ls.reject(r)
}

// confirm re-probes at alpha and commits when the margin there stays above a
// tenth of the candidate margin.
func (ls *BacktrackingLineSearch) confirm(fn func(float64) float64, alpha, ineq float64) bool {
	if !(ls.margin(fn, alpha) > ineq/10) {
		return false
	}
	ls.kernel.CommitCombinedStep()
	return true
}
