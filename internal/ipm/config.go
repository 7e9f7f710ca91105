package ipm

import "math"

// SolverConfig holds the problem-time constants of a solve. A driver keeps its
// own copy, so changing a SolverConfig after NewDriver has no effect.
type SolverConfig struct {
	// NZ is the number of primal variables.
	NZ int
	// NU, ND and NX optionally partition NZ into input, disturbance and state
	// blocks. They are only used for diagnostics.
	NU, ND, NX int
	// NNu is the number of equality multipliers.
	NNu int
	// NF is the number of inequality constraints (and inequality multipliers).
	NF int
	// NG is the number of equality constraints.
	NG int

	GradTolerance     float64
	EqualTolerance    float64
	DesiredDualityGap float64

	// AlphaMin and AlphaMax bound every step size.
	AlphaMin float64
	AlphaMax float64

	// MuFactorAggressive and MuFactorConservative scale mu under the
	// heuristic barrier rule.
	MuFactorAggressive   float64
	MuFactorConservative float64

	// Delta is the centering exponent, 2 or 3.
	Delta int

	// SkipAffine selects the heuristic barrier rule instead of the
	// centering rule driven by the affine predictor.
	SkipAffine bool
	// DebugConvergence enables per-iteration trace capture.
	DebugConvergence bool
	// VerboseLevel controls diagnostic emission only.
	VerboseLevel int

	// AllowSave enables kernel dumps on failure and at the save iteration.
	AllowSave bool
	// SaveNamePrefix prefixes the names passed to Dumper.
	SaveNamePrefix string

	// DualResetThreshold re-initializes the inequality multipliers under the
	// heuristic rule whenever the combined step falls below it. Zero disables
	// the reset.
	DualResetThreshold float64
}

// DefaultSolverConfig returns the tolerances and factors used when a caller
// only knows the problem dimensions.
func DefaultSolverConfig(nZ, nG, nF int) SolverConfig {
	return SolverConfig{
		NZ:                   nZ,
		NNu:                  nG,
		NG:                   nG,
		NF:                   nF,
		GradTolerance:        1e-9,
		EqualTolerance:       1e-9,
		DesiredDualityGap:    1e-9,
		AlphaMin:             1e-7,
		AlphaMax:             1,
		MuFactorAggressive:   1.0 / 3,
		MuFactorConservative: 0.75,
		Delta:                3,
		SaveNamePrefix:       "ipm",
	}
}

// MuMin is the standing floor for the barrier parameter. It is zero when
// there are no inequality constraints.
func (c SolverConfig) MuMin() float64 {
	if c.NF == 0 {
		return 0
	}
	return c.DesiredDualityGap / float64(c.NF) / 2
}

// Validate checks the configuration for internal consistency.
func (c SolverConfig) Validate() error {
	const op = "SolverConfig.Validate"

	if c.NZ < 0 || c.NNu < 0 || c.NF < 0 || c.NG < 0 || c.NU < 0 || c.ND < 0 || c.NX < 0 {
		return NewErrorf("dimensions must be non-negative, got nZ=%d nNu=%d nF=%d nG=%d", c.NZ, c.NNu, c.NF, c.NG).
			WithOperation(op)
	}
	if parts := c.NU + c.ND + c.NX; parts != 0 && parts != c.NZ {
		return NewErrorf("partition nU+nD+nX=%d does not match nZ=%d", parts, c.NZ).WithOperation(op)
	}
	for _, tol := range []struct {
		name string
		v    float64
	}{
		{"gradTolerance", c.GradTolerance},
		{"equalTolerance", c.EqualTolerance},
		{"desiredDualityGap", c.DesiredDualityGap},
	} {
		if math.IsNaN(tol.v) || tol.v < 0 {
			return NewErrorf("%s must be non-negative, got %v", tol.name, tol.v).WithOperation(op)
		}
	}
	if !(c.AlphaMin > 0) || !(c.AlphaMax >= c.AlphaMin) {
		return NewErrorf("step bounds must satisfy 0 < alphaMin <= alphaMax, got [%v, %v]", c.AlphaMin, c.AlphaMax).
			WithOperation(op)
	}
	if c.NF > 0 {
		if !(c.DesiredDualityGap > 0) {
			return NewErrorf("desiredDualityGap must be positive with inequality constraints").WithOperation(op)
		}
		if !(c.MuFactorAggressive > 0 && c.MuFactorAggressive < 1) ||
			!(c.MuFactorConservative > 0 && c.MuFactorConservative < 1) {
			return NewErrorf("mu factors must lie in (0,1), got aggressive=%v conservative=%v",
				c.MuFactorAggressive, c.MuFactorConservative).WithOperation(op)
		}
		if c.Delta != 2 && c.Delta != 3 {
			return NewErrorf("delta must be 2 or 3, got %d", c.Delta).WithOperation(op)
		}
	}
	if c.DualResetThreshold < 0 {
		return NewErrorf("dualResetThreshold must be non-negative, got %v", c.DualResetThreshold).WithOperation(op)
	}
	return nil
}
