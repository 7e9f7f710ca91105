// Package dense provides a reference NumericKernel for small convex quadratic
// programs
//
//	minimize    ½ xᵀPx + cᵀx
//	subject to  Ax = b
//	            F(x) = h − Gx ≥ 0
//
// using dense gonum matrices and an LU factorization of the reduced KKT
// system. It is meant for services, examples and tests, not for large sparse
// problems.
package dense

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

const component = "dense"

// Spec is the row-major JSON form of a Problem.
type Spec struct {
	P  [][]float64 `json:"p,omitempty"`
	C  []float64   `json:"c"`
	A  [][]float64 `json:"a,omitempty"`
	B  []float64   `json:"b,omitempty"`
	G  [][]float64 `json:"g,omitempty"`
	H  []float64   `json:"h,omitempty"`
	X0 []float64   `json:"x0,omitempty"`
}

// Problem is a validated quadratic program. P, A and G may be nil.
type Problem struct {
	P  *mat.SymDense
	C  []float64
	A  *mat.Dense
	B  []float64
	G  *mat.Dense
	H  []float64
	X0 []float64
}

// Problem converts s into gonum matrices, checking every dimension.
func (s Spec) Problem() (*Problem, error) {
	const op = "Spec.Problem"

	n := len(s.C)
	if n == 0 {
		return nil, ipm.NewErrorf("objective vector c must not be empty").WithOperation(op).WithComponent(component)
	}
	p := &Problem{C: append([]float64(nil), s.C...)}

	if len(s.P) > 0 {
		if len(s.P) != n {
			return nil, ipm.NewErrorf("p has %d rows, want %d", len(s.P), n).WithOperation(op).WithComponent(component)
		}
		data := make([]float64, 0, n*n)
		for i, row := range s.P {
			if len(row) != n {
				return nil, ipm.NewErrorf("p row %d has %d columns, want %d", i, len(row), n).
					WithOperation(op).WithComponent(component)
			}
			for j := range row {
				if math.Abs(row[j]-s.P[j][i]) > 1e-12*(1+math.Abs(row[j])) {
					return nil, ipm.NewErrorf("p is not symmetric at (%d,%d)", i, j).WithOperation(op).WithComponent(component)
				}
			}
			data = append(data, row...)
		}
		p.P = mat.NewSymDense(n, data)
	}

	var err error
	if p.A, p.B, err = rows("a", s.A, s.B, n); err != nil {
		return nil, err
	}
	if p.G, p.H, err = rows("g", s.G, s.H, n); err != nil {
		return nil, err
	}

	if len(s.X0) > 0 {
		if len(s.X0) != n {
			return nil, ipm.NewErrorf("x0 has length %d, want %d", len(s.X0), n).WithOperation(op).WithComponent(component)
		}
		p.X0 = append([]float64(nil), s.X0...)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func rows(name string, m [][]float64, rhs []float64, n int) (*mat.Dense, []float64, error) {
	const op = "Spec.Problem"

	if len(m) != len(rhs) {
		return nil, nil, ipm.NewErrorf("%s has %d rows but its right-hand side has %d", name, len(m), len(rhs)).
			WithOperation(op).WithComponent(component)
	}
	if len(m) == 0 {
		return nil, nil, nil
	}
	data := make([]float64, 0, len(m)*n)
	for i, row := range m {
		if len(row) != n {
			return nil, nil, ipm.NewErrorf("%s row %d has %d columns, want %d", name, i, len(row), n).
				WithOperation(op).WithComponent(component)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(m), n, data), append([]float64(nil), rhs...), nil
}

// Dims returns the number of variables, equality rows and inequality rows.
func (p *Problem) Dims() (nZ, nG, nF int) {
	nZ = len(p.C)
	if p.A != nil {
		nG, _ = p.A.Dims()
	}
	if p.G != nil {
		nF, _ = p.G.Dims()
	}
	return nZ, nG, nF
}

// Validate checks that the matrices agree with c and their right-hand sides.
func (p *Problem) Validate() error {
	const op = "Problem.Validate"

	nZ, nG, nF := p.Dims()
	if nZ == 0 {
		return ipm.NewErrorf("problem has no variables").WithOperation(op).WithComponent(component)
	}
	if p.P != nil && p.P.SymmetricDim() != nZ {
		return ipm.NewErrorf("p is %dx%d, want %dx%d", p.P.SymmetricDim(), p.P.SymmetricDim(), nZ, nZ).
			WithOperation(op).WithComponent(component)
	}
	if p.A != nil {
		if _, c := p.A.Dims(); c != nZ || len(p.B) != nG {
			return ipm.NewErrorf("a is %dx%d with %d right-hand sides, want %d columns", nG, c, len(p.B), nZ).
				WithOperation(op).WithComponent(component)
		}
	}
	if p.G != nil {
		if _, c := p.G.Dims(); c != nZ || len(p.H) != nF {
			return ipm.NewErrorf("g is %dx%d with %d right-hand sides, want %d columns", nF, c, len(p.H), nZ).
				WithOperation(op).WithComponent(component)
		}
	}
	if p.X0 != nil && len(p.X0) != nZ {
		return ipm.NewErrorf("x0 has length %d, want %d", len(p.X0), nZ).WithOperation(op).WithComponent(component)
	}
	return nil
}

// SolverConfig returns base with the problem dimensions filled in.
func (p *Problem) SolverConfig(base ipm.SolverConfig) ipm.SolverConfig {
	nZ, nG, nF := p.Dims()
	base.NZ, base.NNu, base.NG, base.NF = nZ, nG, nG, nF
	base.NU, base.ND, base.NX = 0, 0, 0
	return base
}
