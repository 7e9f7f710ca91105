package ipm

import (
	"time"

	"go.uber.org/zap"
)

// StartInfo is emitted once before the first iteration.
type StartInfo struct {
	Config  SolverConfig
	Mu0     float64
	MuMin   float64
	MaxIter int
}

// IterationRecord summarizes one pass of the loop. Fields that do not apply
// to the problem shape (for example EqNorm without equalities) are zero.
type IterationRecord struct {
	Iteration int
	// CostF and CostG are only filled when VerboseLevel is at least 3.
	CostF, CostG  float64
	GradNorm      float64
	EqNorm        float64
	Gap           float64
	MinSlack      float64
	MinDual       float64
	Mu            float64
	AlphaAffine   float64
	Sigma         float64
	// SigmaUsed is true when the centering rule updated mu.
	SigmaUsed     bool
	AlphaCombined float64
	// Aggressive is true when the heuristic rule used the aggressive factor.
	Aggressive bool
	// Stalled is true when the stall correction raised mu.
	Stalled bool
	// Exit is the status set during this iteration, if it ended the loop.
	Exit    *Status
	Elapsed time.Duration
}

// Summary is emitted once after the loop.
type Summary struct {
	Status        Status
	Iterations    int
	Elapsed       time.Duration
	FinalStepSize float64
	Mu            float64
	CostF, CostG  float64
	GradNorm      float64
	EqNorm        float64
	Gap           float64
	MinSlack      float64
	MinDual       float64
}

// Observer receives solver diagnostics. Implementations must not call back
// into the kernel.
type Observer interface {
	SolveStarted(info StartInfo)
	IterationCompleted(rec IterationRecord)
	SolveFinished(sum Summary)
}

// NoOpObserver discards all diagnostics.
type NoOpObserver struct{}

func (NoOpObserver) SolveStarted(StartInfo)             {}
func (NoOpObserver) IterationCompleted(IterationRecord) {}
func (NoOpObserver) SolveFinished(Summary)              {}

// MultiObserver fans diagnostics out to several observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver forwards to all non-nil observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

func (m *MultiObserver) SolveStarted(info StartInfo) {
	for _, obs := range m.observers {
		obs.SolveStarted(info)
	}
}

func (m *MultiObserver) IterationCompleted(rec IterationRecord) {
	for _, obs := range m.observers {
		obs.IterationCompleted(rec)
	}
}

func (m *MultiObserver) SolveFinished(sum Summary) {
	for _, obs := range m.observers {
		obs.SolveFinished(sum)
	}
}

// ZapObserver writes diagnostics to a zap logger. Level 2 logs the start and
// the final summary, level 3 adds one debug line per iteration.
type ZapObserver struct {
	logger *zap.Logger
	level  int
}

// NewZapObserver creates an observer emitting at the given verbose level.
func NewZapObserver(logger *zap.Logger, verboseLevel int) *ZapObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapObserver{logger: logger.Named("ipm"), level: verboseLevel}
}

func (o *ZapObserver) SolveStarted(info StartInfo) {
	if o.level < 2 {
		return
	}
	c := info.Config
	o.logger.Info("solve started",
		zap.Bool("skip_affine", c.SkipAffine),
		zap.Int("delta", c.Delta),
		zap.Bool("allow_save", c.AllowSave),
		zap.Int("n_z", c.NZ),
		zap.Ints("partition", []int{c.NU, c.ND, c.NX}),
		zap.Int("n_g", c.NG),
		zap.Int("n_f", c.NF),
		zap.Int("max_iter", info.MaxIter),
		zap.Float64("grad_tolerance", c.GradTolerance),
		zap.Float64("equal_tolerance", c.EqualTolerance),
		zap.Float64("desired_gap", c.DesiredDualityGap),
		zap.Float64("mu0", info.Mu0),
		zap.Float64("mu_min", info.MuMin),
	)
}

func (o *ZapObserver) IterationCompleted(rec IterationRecord) {
	if o.level < 3 {
		return
	}
	fields := []zap.Field{
		zap.Int("iter", rec.Iteration),
		zap.Float64("cost_f", rec.CostF),
		zap.Float64("cost_g", rec.CostG),
		zap.Float64("grad", rec.GradNorm),
		zap.Float64("eq", rec.EqNorm),
		zap.Float64("ineq", rec.MinSlack),
		zap.Float64("dual", rec.MinDual),
		zap.Float64("gap", rec.Gap),
		zap.Float64("mu", rec.Mu),
		zap.Float64("alpha_affine", rec.AlphaAffine),
		zap.Float64("alpha_combined", rec.AlphaCombined),
		zap.Duration("elapsed", rec.Elapsed),
	}
	if rec.SigmaUsed {
		fields = append(fields, zap.Float64("sigma", rec.Sigma))
	}
	if rec.Aggressive {
		fields = append(fields, zap.Bool("aggressive", true))
	}
	if rec.Stalled {
		fields = append(fields, zap.Bool("stalled", true))
	}
	if rec.Exit != nil {
		fields = append(fields, zap.Stringer("exit", *rec.Exit))
	}
	o.logger.Debug("iteration", fields...)
}

func (o *ZapObserver) SolveFinished(sum Summary) {
	if o.level < 2 {
		return
	}
	perIter := time.Duration(0)
	if sum.Iterations > 0 {
		perIter = sum.Elapsed / time.Duration(sum.Iterations)
	}
	o.logger.Info("solve finished",
		zap.Uint32("status", uint32(sum.Status)),
		zap.Stringer("status_name", sum.Status),
		zap.Int("iterations", sum.Iterations),
		zap.Float64("cost_f", sum.CostF),
		zap.Float64("cost_g", sum.CostG),
		zap.Float64("eq", sum.EqNorm),
		zap.Float64("ineq", sum.MinSlack),
		zap.Float64("dual", sum.MinDual),
		zap.Float64("gap", sum.Gap),
		zap.Float64("last_alpha", sum.FinalStepSize),
		zap.Float64("grad", sum.GradNorm),
		zap.Duration("elapsed", sum.Elapsed),
		zap.Duration("per_iteration", perIter),
	)
}
