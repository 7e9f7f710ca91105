package dense

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

func TestSpecProblem(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{"empty objective", Spec{}, "objective vector c must not be empty"},
		{"p rows", Spec{C: []float64{1, 2}, P: [][]float64{{1, 0}}}, "p has 1 rows, want 2"},
		{"p columns", Spec{C: []float64{1, 2}, P: [][]float64{{1, 0}, {0}}}, "p row 1 has 1 columns, want 2"},
		{"p asymmetric", Spec{C: []float64{1, 2}, P: [][]float64{{1, 1}, {0, 1}}}, "p is not symmetric at (0,1)"},
		{"a rhs", Spec{C: []float64{1}, A: [][]float64{{1}}, B: []float64{1, 2}}, "a has 1 rows but its right-hand side has 2"},
		{"g columns", Spec{C: []float64{1}, G: [][]float64{{1, 2}}, H: []float64{0}}, "g row 0 has 2 columns, want 1"},
		{"x0 length", Spec{C: []float64{1}, X0: []float64{1, 2}}, "x0 has length 2, want 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Problem()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var ipmErr *ipm.Error
			assert.ErrorAs(t, err, &ipmErr)
		})
	}
}

func TestProblemDims(t *testing.T) {
	p, err := Spec{
		P: [][]float64{{2, 1}, {1, 2}},
		C: []float64{1, 1},
		A: [][]float64{{1, 1}},
		B: []float64{1},
		G: [][]float64{{-1, 0}, {0, -1}, {1, 1}},
		H: []float64{0, 0, 4},
	}.Problem()
	require.NoError(t, err)

	nZ, nG, nF := p.Dims()
	assert.Equal(t, []int{2, 1, 3}, []int{nZ, nG, nF})
	assert.Nil(t, p.X0)

	base := ipm.DefaultSolverConfig(0, 0, 0)
	base.NU, base.NX = 1, 1
	cfg := p.SolverConfig(base)
	assert.Equal(t, 2, cfg.NZ)
	assert.Equal(t, 1, cfg.NNu)
	assert.Equal(t, 1, cfg.NG)
	assert.Equal(t, 3, cfg.NF)
	assert.Zero(t, cfg.NU+cfg.ND+cfg.NX)
	assert.NoError(t, cfg.Validate())
}

func TestProblemCopiesInput(t *testing.T) {
	spec := Spec{C: []float64{1, 2}, X0: []float64{3, 4}}
	p, err := spec.Problem()
	require.NoError(t, err)

	spec.C[0], spec.X0[0] = 10, 30
	assert.Equal(t, []float64{1, 2}, p.C)
	assert.Equal(t, []float64{3, 4}, p.X0)
}
