package ipm

// NumericKernel owns the primal-dual iterate of one problem instance and
// performs every numeric operation the driver needs. Only CommitCombinedStep
// and the Initialize methods change the iterate; SetStepSize and SetBarrier
// only change the working values used by subsequent probes.
//
// A kernel is not safe for concurrent use. Concurrent solves need one kernel
// each.
type NumericKernel interface {
	InitializePrimalDual()
	InitializeEqualityDual()
	InitializeInequalityDual()

	SetStepSize(alpha float64)
	SetBarrier(mu float64)

	// EvaluateObjective returns two cost terms for diagnostics.
	EvaluateObjective() (f, g float64)

	// GradientInfNorm returns the infinity norm of the Newton residual. NaN
	// signals that the Newton system could not be factored.
	GradientInfNorm() float64
	// EqualityInfNorm is only called when there are equality constraints.
	EqualityInfNorm() float64
	// GapAndFeasibility is only called when there are inequality constraints.
	GapAndFeasibility() (gap, minSlack, minDual float64)

	MaxStepAffine() (primal, dual float64)
	MaxStepCombined() (primal, dual float64)

	// MinInequalityMarginAffine and MinInequalityMarginCombined evaluate the
	// smallest inequality slack at the given step along the respective
	// direction without committing it.
	MinInequalityMarginAffine(alpha float64) float64
	MinInequalityMarginCombined(alpha float64) float64

	// CenteringRatio returns sigma for the affine step currently set.
	CenteringRatio() float64

	// CommitCombinedStep applies the combined direction with the current step
	// size and barrier.
	CommitCombinedStep()
}

// Dumper is implemented by kernels able to persist their working state for
// offline inspection. Kernels that do not implement it are never asked to.
type Dumper interface {
	DumpWorkingSet(name string)
	DumpStepDirection(name string)
	DumpRHS(name string)
}

// Iterate is a copy of the primal-dual point.
type Iterate struct {
	Z      []float64 `json:"z"`
	Nu     []float64 `json:"nu"`
	Lambda []float64 `json:"lambda"`
}

// IterateReader is implemented by kernels that expose their iterate.
type IterateReader interface {
	Iterate() Iterate
}

// TraceSource is implemented by kernels that can feed a DiagnosticTrace.
type TraceSource interface {
	IterateReader
	// Constraints returns the inequality and equality function values.
	Constraints() (f, g []float64)
	// CombinedDirection returns the current combined search direction.
	CombinedDirection() (dz, dnu, dlambda []float64)
}
