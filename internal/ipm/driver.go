// Package ipm implements the iteration driver of a primal-dual interior-point
// method for convex problems with equality and inequality constraints.
//
// The driver owns the control loop: exit checks, the affine predictor probe,
// barrier scheduling, the feasibility-preserving backtracking search for the
// combined step and the final status classification. Everything numeric is
// delegated to a NumericKernel, so the loop can be run against any problem
// instance, including synthetic kernels in tests.
//
//	d, err := ipm.NewDriver(cfg, kernel, ipm.WithObserver(obs))
//	res, err := d.Solve(ctx, 1, 200, 0)
package ipm

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of a Solve call.
type Result struct {
	Status     Status
	Iterations int
	Elapsed    time.Duration
	// FinalStepSize is the last step size computed by the loop.
	FinalStepSize float64
	// Mu is the barrier parameter at exit, zero without inequalities.
	Mu float64
	// Iterate is the final point when the kernel implements IterateReader.
	Iterate *Iterate
}

// Converged reports a clean exit.
func (r *Result) Converged() bool {
	return r.Status == StatusConverged
}

// Option configures a Driver.
type Option func(*Driver)

// WithObserver sets the diagnostic sink. The default discards everything.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithClock replaces the wall clock used for timing.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithTrace sets the trace filled when DebugConvergence is enabled. The
// kernel must implement TraceSource for anything to be recorded.
func WithTrace(t *Trace) Option {
	return func(d *Driver) { d.trace = t }
}

// Driver runs the interior-point loop over one kernel. A Driver is not safe
// for concurrent use, and neither is its kernel.
type Driver struct {
	cfg      SolverConfig
	kernel   NumericKernel
	checker  ConvergenceChecker
	search   *BacktrackingLineSearch
	observer Observer
	clock    Clock
	trace    *Trace
}

// NewDriver validates cfg and binds it to k.
func NewDriver(cfg SolverConfig, k NumericKernel, opts ...Option) (*Driver, error) {
	const op = "NewDriver"

	if k == nil {
		return nil, NewErrorf("kernel must not be nil").WithOperation(op)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, "invalid solver configuration").WithOperation(op)
	}

	d := &Driver{
		cfg:      cfg,
		kernel:   k,
		checker:  NewConvergenceChecker(cfg),
		search:   NewBacktrackingLineSearch(cfg, k),
		observer: NoOpObserver{},
		clock:    SystemClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the driver's copy of the solver configuration.
func (d *Driver) Config() SolverConfig { return d.cfg }

// Solve runs the loop from a freshly initialized iterate. mu0 is the initial
// barrier, maxIter the iteration budget and saveIter the iteration at which
// the kernel is asked to dump its working state (zero dumps after a clean
// exit instead). Numerical failures are reported in Result.Status; the error
// is only non-nil for invalid arguments or a cancelled ctx.
func (d *Driver) Solve(ctx context.Context, mu0 float64, maxIter, saveIter int) (*Result, error) {
	const op = "Driver.Solve"

	cfg, k := d.cfg, d.kernel
	switch {
	case cfg.NF > 0 && !(mu0 > 0):
		return nil, NewErrorf("mu0 must be positive, got %v", mu0).WithOperation(op)
	case maxIter < 1:
		return nil, NewErrorf("maxIter must be at least 1, got %d", maxIter).WithOperation(op)
	case saveIter < 0:
		return nil, NewErrorf("saveIter must be non-negative, got %d", saveIter).WithOperation(op)
	}

	start := d.clock.Now()
	d.observer.SolveStarted(StartInfo{Config: cfg, Mu0: mu0, MuMin: cfg.MuMin(), MaxIter: maxIter})

	var trace *Trace
	src, traceable := k.(TraceSource)
	if cfg.DebugConvergence && traceable && d.trace != nil {
		trace = d.trace
	}

	k.InitializePrimalDual()
	var barrier *BarrierScheduler
	if cfg.NF > 0 {
		barrier = NewBarrierScheduler(cfg, k, mu0)
	}
	if cfg.NG > 0 {
		k.InitializeEqualityDual()
	}
	if cfg.NF > 0 {
		k.InitializeInequalityDual()
	}

	var (
		status   Status
		iter     int
		alpha    float64
		m        Measurement
		minSlack float64
		minDual  float64
	)

loop:
	for {
		if err := ctx.Err(); err != nil {
			return nil, WrapError(err, "solve cancelled").WithOperation(op)
		}
		iterStart := d.clock.Now()
		iter++
		rec := IterationRecord{Iteration: iter}
		exit := func(s Status) {
			status = s
			rec.Exit = &s
			rec.Elapsed = d.clock.Now().Sub(iterStart)
			d.observer.IterationCompleted(rec)
		}

		if iter > maxIter {
			exit(StatusExceededIterations)
			break
		}
		if trace != nil {
			trace.begin(iter, src)
		}

		// Exit conditions.
		if cfg.VerboseLevel >= 3 {
			rec.CostF, rec.CostG = k.EvaluateObjective()
		}
		m.GradNorm = k.GradientInfNorm()
		rec.GradNorm = m.GradNorm
		if math.IsNaN(m.GradNorm) {
			d.dump()
			exit(StatusHessianFailure)
			break
		}
		if cfg.NG > 0 {
			m.EqNorm = k.EqualityInfNorm()
			rec.EqNorm = m.EqNorm
		}
		if cfg.NF > 0 {
			m.Gap, minSlack, minDual = k.GapAndFeasibility()
			rec.Gap, rec.MinSlack, rec.MinDual = m.Gap, minSlack, minDual
			if minSlack <= 0 {
				exit(StatusPrimalInfeasible)
				break
			}
			if minDual <= 0 {
				exit(StatusDualInfeasible)
				break
			}
		}
		if d.checker.Converged(m) {
			exit(StatusConverged)
			break
		}

		if cfg.NF == 0 {
			// Nothing to protect: full Newton step bounded by alphaMax.
			alpha = cfg.AlphaMax
			k.SetStepSize(alpha)
			rec.AlphaCombined = alpha
			if iter == saveIter {
				d.dump()
			}
			k.CommitCombinedStep()
		} else {
			rec.Mu = barrier.Mu()

			if !cfg.SkipAffine {
				aff := d.search.Affine()
				if aff.Failed {
					d.dump()
					exit(StatusHessianFailure)
					break loop
				}
				rec.AlphaAffine = aff.Alpha
				rec.Sigma, rec.SigmaUsed = barrier.Centering(aff.Alpha, m.EqNorm, m.Gap)
			}

			if trace != nil {
				trace.direction(src)
			}
			if iter == saveIter {
				d.dump()
			}

			step := d.search.Combined()
			if trace != nil {
				trace.step(step)
			}
			if step.Failed {
				d.dump()
				exit(StatusHessianFailure)
				break loop
			}
			alpha = step.Alpha
			rec.AlphaCombined = alpha

			if cfg.SkipAffine {
				rec.Aggressive = barrier.Heuristic(alpha, m.GradNorm, m.EqNorm)
			}
			rec.Stalled = barrier.StallCorrection(alpha)
		}

		rec.Elapsed = d.clock.Now().Sub(iterStart)
		d.observer.IterationCompleted(rec)
	}

	if saveIter == 0 && status == StatusConverged {
		d.dump()
	}
	if trace != nil {
		trace.finish(src)
	}

	mu := 0.0
	if barrier != nil {
		mu = barrier.Mu()
	}
	if status == StatusExceededIterations {
		m.GradNorm = k.GradientInfNorm()
		if cfg.NG > 0 {
			m.EqNorm = k.EqualityInfNorm()
		}
		if cfg.NF > 0 {
			m.Gap, minSlack, minDual = k.GapAndFeasibility()
		}
		status = d.checker.Diagnose(m, mu, alpha)
	}

	res := &Result{
		Status:        status,
		Iterations:    iter,
		Elapsed:       d.clock.Now().Sub(start),
		FinalStepSize: alpha,
		Mu:            mu,
	}
	if r, ok := k.(IterateReader); ok {
		it := r.Iterate()
		res.Iterate = &it
	}

	sum := Summary{
		Status:        res.Status,
		Iterations:    res.Iterations,
		Elapsed:       res.Elapsed,
		FinalStepSize: res.FinalStepSize,
		Mu:            mu,
		GradNorm:      m.GradNorm,
		EqNorm:        m.EqNorm,
		Gap:           m.Gap,
		MinSlack:      minSlack,
		MinDual:       minDual,
	}
	if cfg.VerboseLevel >= 2 {
		sum.CostF, sum.CostG = k.EvaluateObjective()
	}
	d.observer.SolveFinished(sum)

	return res, nil
}

// dump asks the kernel to persist its working set, combined direction and
// right-hand side. It is a no-op unless saving is allowed and supported.
func (d *Driver) dump() {
	if !d.cfg.AllowSave {
		return
	}
	dumper, ok := d.kernel.(Dumper)
	if !ok {
		return
	}
	prefix := d.cfg.SaveNamePrefix
	dumper.DumpWorkingSet(prefix + "_WW.values")
	dumper.DumpStepDirection(prefix + "_dx_s.values")
	dumper.DumpRHS(prefix + "_B_s.values")
}
