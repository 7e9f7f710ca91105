package dense

import (
	"context"
	"fmt"
	"testing"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

// boxQP is min ½ xᵀPx + cᵀx over 0 ≤ x ≤ 1 with a tridiagonal P.
func boxQP(n int) Spec {
	s := Spec{
		P: make([][]float64, n),
		C: make([]float64, n),
		G: make([][]float64, 2*n),
		H: make([]float64, 2*n),
	}
	x0 := make([]float64, n)
	for i := 0; i < n; i++ {
		s.P[i] = make([]float64, n)
		s.P[i][i] = 4
		if i > 0 {
			s.P[i][i-1], s.P[i-1][i] = -1, -1
		}
		s.C[i] = float64(i%3) - 1
		x0[i] = .5

		lo, hi := make([]float64, n), make([]float64, n)
		lo[i], hi[i] = -1, 1
		s.G[2*i], s.G[2*i+1] = lo, hi
		s.H[2*i], s.H[2*i+1] = 0, 1
	}
	s.X0 = x0
	return s
}

func BenchmarkSolve(b *testing.B) {
	for _, n := range []int{5, 20, 50} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			p, err := boxQP(n).Problem()
			if err != nil {
				b.Fatal(err)
			}
			cfg := p.SolverConfig(ipm.DefaultSolverConfig(0, 0, 0))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				k, err := NewKernel(p)
				if err != nil {
					b.Fatal(err)
				}
				d, err := ipm.NewDriver(cfg, k)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := d.Solve(context.Background(), 1, 200, 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
