package dense

import "gonum.org/v1/gonum/mat"

// workspace keeps the scratch matrices of KKT assembly so repeated
// factorizations of the same problem do not allocate.
type workspace struct {
	dense []*mat.Dense
	vecs  []*mat.VecDense

	// kkt holds the last assembled Newton matrix, rhs and sol the last
	// combined right-hand side and solution.
	kkt *mat.Dense
	rhs *mat.VecDense
	sol *mat.VecDense
}

func newWorkspace(n int) *workspace {
	return &workspace{
		dense: make([]*mat.Dense, 0, 4),
		vecs:  make([]*mat.VecDense, 0, 4),
		kkt:   mat.NewDense(n, n, nil),
		rhs:   mat.NewVecDense(n, nil),
		sol:   mat.NewVecDense(n, nil),
	}
}

// getDense returns a zeroed r×c matrix, reusing a pooled one of the same
// shape when available.
func (w *workspace) getDense(r, c int) *mat.Dense {
	for i, m := range w.dense {
		if mr, mc := m.Dims(); mr == r && mc == c {
			w.dense = append(w.dense[:i], w.dense[i+1:]...)
			m.Zero()
			return m
		}
	}
	return mat.NewDense(r, c, nil)
}

func (w *workspace) putDense(m *mat.Dense) {
	w.dense = append(w.dense, m)
}

// getVec returns a zeroed vector of length n.
func (w *workspace) getVec(n int) *mat.VecDense {
	for i, v := range w.vecs {
		if v.Len() == n {
			w.vecs = append(w.vecs[:i], w.vecs[i+1:]...)
			v.Zero()
			return v
		}
	}
	return mat.NewVecDense(n, nil)
}

func (w *workspace) putVec(v *mat.VecDense) {
	w.vecs = append(w.vecs, v)
}
