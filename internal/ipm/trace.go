package ipm

// Snapshot is the state captured at the start of one iteration, before the
// exit checks, plus the combined step computed during it.
type Snapshot struct {
	Iteration int       `json:"iteration"`
	Z         []float64 `json:"z"`
	Nu        []float64 `json:"nu"`
	Lambda    []float64 `json:"lambda"`
	F         []float64 `json:"f"`
	G         []float64 `json:"g"`

	// The fields below are only filled when the iteration reached the
	// combined search.
	DZ           []float64 `json:"dz,omitempty"`
	DNu          []float64 `json:"dnu,omitempty"`
	DLambda      []float64 `json:"dlambda,omitempty"`
	PrimalAlpha  float64   `json:"primal_alpha"`
	DualAlpha    float64   `json:"dual_alpha"`
	FinalAlpha   float64   `json:"final_alpha"`
	HasDirection bool      `json:"has_direction"`
}

// Trace collects per-iteration snapshots when DebugConvergence is enabled.
// The caller owns it; a driver only appends.
type Trace struct {
	Snapshots []Snapshot
	// Final is the iterate after the loop exited.
	Final *Iterate
}

func (t *Trace) begin(iter int, src TraceSource) {
	it := src.Iterate()
	f, g := src.Constraints()
	t.Snapshots = append(t.Snapshots, Snapshot{
		Iteration: iter,
		Z:         it.Z,
		Nu:        it.Nu,
		Lambda:    it.Lambda,
		F:         f,
		G:         g,
	})
}

func (t *Trace) direction(src TraceSource) {
	if len(t.Snapshots) == 0 {
		return
	}
	s := &t.Snapshots[len(t.Snapshots)-1]
	s.DZ, s.DNu, s.DLambda = src.CombinedDirection()
	s.HasDirection = true
}

func (t *Trace) step(r StepResult) {
	if len(t.Snapshots) == 0 {
		return
	}
	s := &t.Snapshots[len(t.Snapshots)-1]
	s.PrimalAlpha, s.DualAlpha, s.FinalAlpha = r.Primal, r.Dual, r.Alpha
}

func (t *Trace) finish(src TraceSource) {
	it := src.Iterate()
	t.Final = &it
}
