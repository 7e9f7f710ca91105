package ipm

import "strings"

// Status is the termination code of a solve. It is a bitmask whose numeric
// values are part of the external contract: zero means a clean exit, the low
// bits name fatal conditions and the remaining bits refine an exhausted
// iteration budget.
type Status uint32

const (
	// StatusConverged reports that every applicable tolerance was met.
	StatusConverged Status = 0
	// StatusPrimalInfeasible reports primal variables violating the inequalities.
	StatusPrimalInfeasible Status = 1
	// StatusDualInfeasible reports a non-positive inequality multiplier.
	StatusDualInfeasible Status = 2
	// StatusHessianFailure reports a singular Newton system (NaN gradient or margin).
	StatusHessianFailure Status = 4
	// StatusExceededIterations reports that maxIter was reached.
	StatusExceededIterations Status = 8

	// The following bits only appear together with StatusExceededIterations.

	StatusGradientUnmet     Status = 16
	StatusEqualityUnmet     Status = 32
	StatusGapUnmet          Status = 64
	StatusBarrierAboveMin   Status = 128
	StatusStepBelowHalf     Status = 1024
	StatusStepBelowTenth    Status = 512 | StatusStepBelowHalf
	StatusStepBelowAlphaMin Status = 256 | StatusStepBelowTenth
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusPrimalInfeasible, "primal_infeasible"},
	{StatusDualInfeasible, "dual_infeasible"},
	{StatusHessianFailure, "hessian_failure"},
	{StatusExceededIterations, "exceeded_iterations"},
	{StatusGradientUnmet, "gradient_unmet"},
	{StatusEqualityUnmet, "equality_unmet"},
	{StatusGapUnmet, "gap_unmet"},
	{StatusBarrierAboveMin, "barrier_above_min"},
	{256, "step_below_alpha_min"},
	{512, "step_below_tenth"},
	{1024, "step_below_half"},
}

// Has reports whether every bit of flag is set in s.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// Fatal reports whether the solve was aborted by an unrecoverable condition.
func (s Status) Fatal() bool {
	return s&(StatusPrimalInfeasible|StatusDualInfeasible|StatusHessianFailure) != 0
}

// Names returns the individual flag names set in s, lowest bit first.
func (s Status) Names() []string {
	if s == StatusConverged {
		return []string{"converged"}
	}
	names := make([]string, 0, 4)
	for _, sn := range statusNames {
		if s&sn.bit != 0 {
			names = append(names, sn.name)
		}
	}
	return names
}

func (s Status) String() string {
	return strings.Join(s.Names(), "|")
}
