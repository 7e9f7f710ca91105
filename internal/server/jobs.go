package server

import (
	"math"
	"time"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
	"github.com/copyleftdev/ipmdriver/internal/ipm/dense"
)

// JobState is the lifecycle state of a solve job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// SolveRequest is the body of a solve submission.
type SolveRequest struct {
	Problem dense.Spec    `json:"problem"`
	Options *SolveOptions `json:"options,omitempty"`
}

// SolveOptions override the configured solver defaults for one job. Nil
// fields keep the default.
type SolveOptions struct {
	Mu0              *float64 `json:"mu0,omitempty"`
	MaxIter          *int     `json:"max_iter,omitempty"`
	GradTolerance    *float64 `json:"grad_tolerance,omitempty"`
	EqualTolerance   *float64 `json:"equal_tolerance,omitempty"`
	DesiredGap       *float64 `json:"desired_gap,omitempty"`
	Delta            *int     `json:"delta,omitempty"`
	SkipAffine       *bool    `json:"skip_affine,omitempty"`
	VerboseLevel     *int     `json:"verbose_level,omitempty"`
	DebugConvergence bool     `json:"debug_convergence,omitempty"`
}

func (o *SolveOptions) apply(cfg *ipm.SolverConfig, mu0 *float64, maxIter *int) {
	if o == nil {
		return
	}
	if o.Mu0 != nil {
		*mu0 = *o.Mu0
	}
	if o.MaxIter != nil {
		*maxIter = *o.MaxIter
	}
	if o.GradTolerance != nil {
		cfg.GradTolerance = *o.GradTolerance
	}
	if o.EqualTolerance != nil {
		cfg.EqualTolerance = *o.EqualTolerance
	}
	if o.DesiredGap != nil {
		cfg.DesiredDualityGap = *o.DesiredGap
	}
	if o.Delta != nil {
		cfg.Delta = *o.Delta
	}
	if o.SkipAffine != nil {
		cfg.SkipAffine = *o.SkipAffine
	}
	if o.VerboseLevel != nil {
		cfg.VerboseLevel = *o.VerboseLevel
	}
	cfg.DebugConvergence = o.DebugConvergence
}

// Job tracks one submitted solve. Fields are guarded by Server.jobsMu.
type Job struct {
	ID         string
	State      JobState
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Iteration  int
	Err        string
	Result     *ipm.Result
	Trace      *ipm.Trace

	cancel func()
}

// JobStatus is the wire form of a Job.
type JobStatus struct {
	ID         string         `json:"id"`
	State      JobState       `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Iteration  int            `json:"iteration"`
	Error      string         `json:"error,omitempty"`
	Result     *ResultView    `json:"result,omitempty"`
	Trace      []SnapshotView `json:"trace,omitempty"`
}

// ResultView is the wire form of ipm.Result.
type ResultView struct {
	Status        uint32       `json:"status"`
	StatusNames   []string     `json:"status_names"`
	Converged     bool         `json:"converged"`
	Iterations    int          `json:"iterations"`
	ElapsedMS     float64      `json:"elapsed_ms"`
	FinalStepSize float64      `json:"final_step_size"`
	Mu            float64      `json:"mu"`
	Iterate       *ipm.Iterate `json:"iterate,omitempty"`
}

// SnapshotView is one trace entry. Unbounded step ratios are reported as
// null, and directions that could not be computed are omitted.
type SnapshotView struct {
	ipm.Snapshot
	PrimalAlpha *float64 `json:"primal_alpha"`
	DualAlpha   *float64 `json:"dual_alpha"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func allFinite(vs ...[]float64) bool {
	for _, v := range vs {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// status snapshots the job. The caller holds at least a read lock.
func (j *Job) status() JobStatus {
	st := JobStatus{
		ID:         j.ID,
		State:      j.State,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Iteration:  j.Iteration,
		Error:      j.Err,
	}
	if r := j.Result; r != nil {
		st.Result = &ResultView{
			Status:        uint32(r.Status),
			StatusNames:   r.Status.Names(),
			Converged:     r.Converged(),
			Iterations:    r.Iterations,
			ElapsedMS:     float64(r.Elapsed.Microseconds()) / 1000,
			FinalStepSize: r.FinalStepSize,
			Mu:            r.Mu,
			Iterate:       r.Iterate,
		}
	}
	if j.Trace != nil {
		st.Trace = make([]SnapshotView, 0, len(j.Trace.Snapshots))
		for _, s := range j.Trace.Snapshots {
			v := SnapshotView{Snapshot: s, PrimalAlpha: finite(s.PrimalAlpha), DualAlpha: finite(s.DualAlpha)}
			if !allFinite(s.DZ, s.DNu, s.DLambda) {
				v.DZ, v.DNu, v.DLambda = nil, nil, nil
				v.HasDirection = false
			}
			st.Trace = append(st.Trace, v)
		}
	}
	return st
}
