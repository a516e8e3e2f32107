// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// SparseVector holds parallel index/value slices.
// Indices are expected in strictly increasing order.
type SparseVector struct {
	Index []int
	Value []float64
}

// Reset truncates v without releasing storage.
func (v *SparseVector) Reset() {
	v.Index = v.Index[:0]
	v.Value = v.Value[:0]
}

// Append adds the entry (i, x).
func (v *SparseVector) Append(i int, x float64) {
	v.Index = append(v.Index, i)
	v.Value = append(v.Value, x)
}

// Len returns the number of stored entries.
func (v *SparseVector) Len() int { return len(v.Index) }

// CopyFrom makes v an independent copy of src.
func (v *SparseVector) CopyFrom(src *SparseVector) {
	v.Index = append(v.Index[:0], src.Index...)
	v.Value = append(v.Value[:0], src.Value...)
}

// Dot returns ⟨v,x⟩ for dense x.
func (v *SparseVector) Dot(x []float64) float64 {
	var s float64
	for k, i := range v.Index {
		s += v.Value[k] * x[i]
	}
	return s
}

// AddTo accumulates dst += scale·v.
func (v *SparseVector) AddTo(dst []float64, scale float64) {
	for k, i := range v.Index {
		dst[i] += scale * v.Value[k]
	}
}

// Matrix is a row-sparse matrix with a fixed column count.
type Matrix struct {
	N    int
	Rows []SparseVector
}

// Reset reshapes m to r rows and n columns, reusing row storage.
func (m *Matrix) Reset(r, n int) {
	m.N = n
	if cap(m.Rows) < r {
		m.Rows = append(m.Rows[:cap(m.Rows)], make([]SparseVector, r-cap(m.Rows))...)
	}
	m.Rows = m.Rows[:r]
	for i := range m.Rows {
		m.Rows[i].Reset()
	}
}

// Row returns row j for in-place assembly.
func (m *Matrix) Row(j int) *SparseVector { return &m.Rows[j] }

// CopyFrom makes m an independent copy of src.
func (m *Matrix) CopyFrom(src *Matrix) {
	m.Reset(len(src.Rows), src.N)
	for i := range src.Rows {
		m.Rows[i].CopyFrom(&src.Rows[i])
	}
}

// MulVecTo computes dst = m·x for dense x. len(dst) = len(m.Rows).
func (m *Matrix) MulVecTo(dst []float64, x []float64) {
	for j := range m.Rows {
		dst[j] = m.Rows[j].Dot(x)
	}
}

// TransMulAddTo accumulates dst += scale·mᵀy.
func (m *Matrix) TransMulAddTo(dst []float64, scale float64, y []float64) {
	for j := range m.Rows {
		if w := scale * y[j]; w != 0 {
			m.Rows[j].AddTo(dst, w)
		}
	}
}

// SymMatrix holds the lower triangle of a symmetric matrix in
// coordinate form. Duplicate entries accumulate.
type SymMatrix struct {
	N int
	I []int // row, I[k] ≥ J[k]
	J []int // column
	V []float64
}

// Reset empties the triple lists and fixes the order to n.
func (s *SymMatrix) Reset(n int) {
	s.N = n
	s.I = s.I[:0]
	s.J = s.J[:0]
	s.V = s.V[:0]
}

// Append adds the entry (i, j, v). Entries above the diagonal are
// mirrored into the lower triangle.
func (s *SymMatrix) Append(i, j int, v float64) {
	if i < j {
		i, j = j, i
	}
	s.I = append(s.I, i)
	s.J = append(s.J, j)
	s.V = append(s.V, v)
}

// NNZ returns the number of stored entries.
func (s *SymMatrix) NNZ() int { return len(s.V) }

// CopyFrom makes s an independent copy of src.
func (s *SymMatrix) CopyFrom(src *SymMatrix) {
	s.N = src.N
	s.I = append(s.I[:0], src.I...)
	s.J = append(s.J[:0], src.J...)
	s.V = append(s.V[:0], src.V...)
}

// QuadForm returns ⟨x,Sx⟩ with off-diagonal entries counted twice.
func (s *SymMatrix) QuadForm(x []float64) float64 {
	var q float64
	for k, v := range s.V {
		i, j := s.I[k], s.J[k]
		if i == j {
			q += v * x[i] * x[i]
		} else {
			q += 2 * v * x[i] * x[j]
		}
	}
	return q
}

// AddToPacked accumulates dst += scale·S where dst stores a lower
// triangle packed by columns: column j occupies n−j consecutive
// entries starting at its diagonal.
func (s *SymMatrix) AddToPacked(dst []float64, scale float64) {
	n := s.N
	for k, v := range s.V {
		i, j := s.I[k], s.J[k]
		dst[j*n-j*(j-1)/2+(i-j)] += scale * v
	}
}
