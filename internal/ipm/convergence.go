package ipm

// Measurement is one reading of the exit criteria. EqNorm is ignored without
// equality constraints, Gap without inequality constraints.
type Measurement struct {
	GradNorm float64
	EqNorm   float64
	Gap      float64
}

// ConvergenceChecker compares measurements against the configured tolerances.
type ConvergenceChecker struct {
	cfg SolverConfig
}

// NewConvergenceChecker returns a checker for cfg.
func NewConvergenceChecker(cfg SolverConfig) ConvergenceChecker {
	return ConvergenceChecker{cfg: cfg}
}

// Unmet returns the tolerance bits (gradient, equality, gap) that m fails.
func (c ConvergenceChecker) Unmet(m Measurement) Status {
	var s Status
	if !(m.GradNorm <= c.cfg.GradTolerance) {
		s |= StatusGradientUnmet
	}
	if c.cfg.NG > 0 && !(m.EqNorm <= c.cfg.EqualTolerance) {
		s |= StatusEqualityUnmet
	}
	if c.cfg.NF > 0 && !(m.Gap <= c.cfg.DesiredDualityGap) {
		s |= StatusGapUnmet
	}
	return s
}

// Converged reports whether every applicable tolerance is met.
func (c ConvergenceChecker) Converged(m Measurement) bool {
	return c.Unmet(m) == 0
}

// Diagnose explains an exhausted iteration budget. It returns
// StatusExceededIterations together with the unmet tolerances, whether mu is
// still above its floor and how small the last step was.
func (c ConvergenceChecker) Diagnose(m Measurement, mu, alpha float64) Status {
	s := StatusExceededIterations | c.Unmet(m)
	if c.cfg.NF == 0 {
		return s
	}
	if mu > c.cfg.MuMin() {
		s |= StatusBarrierAboveMin
	}
	switch {
	case alpha <= c.cfg.AlphaMin:
		s |= StatusStepBelowAlphaMin
	case alpha <= .1:
		s |= StatusStepBelowTenth
	case alpha <= .5:
		s |= StatusStepBelowHalf
	}
	return s
}
