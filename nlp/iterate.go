// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// Multipliers bundles the dual estimate of an iterate: one multiplier
// per constraint and one per bound side. Following the Lagrangian
// sign convention, LowerBounds entries are nonnegative and
// UpperBounds entries nonpositive.
type Multipliers struct {
	Constraints []float64
	LowerBounds []float64
	UpperBounds []float64
}

// NewMultipliers returns zero multipliers for n variables and m
// constraints.
func NewMultipliers(n, m int) Multipliers {
	return Multipliers{
		Constraints: make([]float64, m),
		LowerBounds: make([]float64, n),
		UpperBounds: make([]float64, n),
	}
}

// Reset zeroes all multipliers.
func (m *Multipliers) Reset() {
	for i := range m.Constraints {
		m.Constraints[i] = 0
	}
	for i := range m.LowerBounds {
		m.LowerBounds[i] = 0
		m.UpperBounds[i] = 0
	}
}

// CopyFrom overwrites m with src.
func (m *Multipliers) CopyFrom(src *Multipliers) {
	copy(m.Constraints, src.Constraints)
	copy(m.LowerBounds, src.LowerBounds)
	copy(m.UpperBounds, src.UpperBounds)
}

// Norm1 returns ‖λ‖₁ + ‖zˡ‖₁ + ‖zᵘ‖₁.
func (m *Multipliers) Norm1() float64 {
	var s float64
	for _, v := range m.Constraints {
		s += math.Abs(v)
	}
	for i := range m.LowerBounds {
		s += math.Abs(m.LowerBounds[i]) + math.Abs(m.UpperBounds[i])
	}
	return s
}

// Progress holds the three measures the globalization strategies
// compare: constraint infeasibility, the objective of the current
// problem view, and the view's auxiliary terms (barrier terms, zero
// for the active-set methods).
type Progress struct {
	Infeasibility float64
	Objective     float64
	Auxiliary     float64
}

// Total returns the merit-style sum of all three measures.
func (p Progress) Total() float64 { return p.Infeasibility + p.Objective + p.Auxiliary }

// Iterate is a primal-dual point together with cached evaluations.
// The caches are filled through a Problem view and hold model-level
// values; the validity flags guarantee at most one model evaluation
// of each quantity per point.
//
// X may be longer than the model dimension: reformulations that
// append slack or elastic variables store them past the model block.
type Iterate struct {
	X     []float64
	Duals Multipliers

	F           float64
	Gradient    SparseVector
	Constraints []float64
	Jacobian    Matrix

	Progress Progress

	fOK, gradOK, consOK, jacOK bool
}

// NewIterate returns a zero iterate with n primal entries and m
// constraints.
func NewIterate(n, m int) *Iterate {
	return &Iterate{
		X:           make([]float64, n),
		Duals:       NewMultipliers(n, m),
		Constraints: make([]float64, m),
	}
}

// Invalidate drops all cached evaluations.
func (it *Iterate) Invalidate() {
	it.fOK, it.gradOK, it.consOK, it.jacOK = false, false, false, false
}

// SetX overwrites the primal point and invalidates the caches.
func (it *Iterate) SetX(x []float64) {
	copy(it.X, x)
	it.Invalidate()
}

// Displace sets it to from.X + α·dx and invalidates the caches.
// The duals are not touched.
func (it *Iterate) Displace(from *Iterate, alpha float64, dx []float64) {
	for i := range it.X {
		it.X[i] = from.X[i] + alpha*dx[i]
	}
	it.Invalidate()
}

// CopyFrom overwrites it with src, caches and flags included.
func (it *Iterate) CopyFrom(src *Iterate) {
	copy(it.X, src.X)
	it.Duals.CopyFrom(&src.Duals)
	it.F = src.F
	it.Gradient.CopyFrom(&src.Gradient)
	copy(it.Constraints, src.Constraints)
	it.Jacobian.CopyFrom(&src.Jacobian)
	it.Progress = src.Progress
	it.fOK, it.gradOK, it.consOK, it.jacOK = src.fOK, src.gradOK, src.consOK, src.jacOK
}
