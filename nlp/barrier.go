// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// Barrier augments an inner view with the damped logarithmic barrier
//
//	φ_μ(x) = σ·f(x) − μ·Σ log(d_i) + ξ·μ·Σ' d_i
//
// where d_i are the distances to the finite variable bounds and Σ'
// runs over the variables bounded on exactly one side. The barrier
// terms are reported through the auxiliary progress measure; the
// Problem methods delegate to the inner view, so the globalization
// keeps seeing the inner objective and infeasibility.
type Barrier struct {
	inner   Problem
	mu      float64
	damping float64 // ξ, zero disables damping
}

// NewBarrier wraps inner with barrier parameter μ and damping ξ.
func NewBarrier(inner Problem, mu, damping float64) *Barrier {
	return &Barrier{inner: inner, mu: mu, damping: damping}
}

// Mu returns the current barrier parameter.
func (p *Barrier) Mu() float64 { return p.mu }

// SetMu replaces the barrier parameter.
func (p *Barrier) SetMu(mu float64) { p.mu = mu }

// Inner returns the wrapped view.
func (p *Barrier) Inner() Problem { return p.inner }

func (p *Barrier) Model() Model                 { return p.inner.Model() }
func (p *Barrier) NumVariables() int            { return p.inner.NumVariables() }
func (p *Barrier) NumConstraints() int          { return p.inner.NumConstraints() }
func (p *Barrier) VariableBounds() Bounds       { return p.inner.VariableBounds() }
func (p *Barrier) ConstraintBounds() Bounds     { return p.inner.ConstraintBounds() }
func (p *Barrier) VariableSets() *IndexSets     { return p.inner.VariableSets() }
func (p *Barrier) EqualityConstraints() []int   { return p.inner.EqualityConstraints() }
func (p *Barrier) InequalityConstraints() []int { return p.inner.InequalityConstraints() }
func (p *Barrier) ObjectiveMultiplier() float64 { return p.inner.ObjectiveMultiplier() }
func (p *Barrier) Elastics() *ElasticVariables  { return p.inner.Elastics() }

func (p *Barrier) Objective(it *Iterate) (float64, error) { return p.inner.Objective(it) }

func (p *Barrier) Gradient(it *Iterate, g *SparseVector) error {
	return p.inner.Gradient(it, g)
}

func (p *Barrier) Constraints(it *Iterate, c []float64) error {
	return p.inner.Constraints(it, c)
}

func (p *Barrier) Jacobian(it *Iterate, jac *Matrix) error {
	return p.inner.Jacobian(it, jac)
}

func (p *Barrier) Hessian(it *Iterate, lambda []float64, h *SymMatrix) error {
	return p.inner.Hessian(it, lambda, h)
}

func (p *Barrier) Infeasibility(it *Iterate) (float64, error) {
	return p.inner.Infeasibility(it)
}

// AuxiliaryMeasure returns the barrier terms at it. A point on or
// outside a bound yields +Inf, which every acceptance test rejects.
func (p *Barrier) AuxiliaryMeasure(it *Iterate) float64 {
	b := p.VariableBounds()
	sets := p.VariableSets()
	var logs float64
	for _, i := range sets.LowerBounded {
		d := it.X[i] - b.Lower[i]
		if d <= 0 {
			return math.Inf(1)
		}
		logs -= math.Log(d)
	}
	for _, i := range sets.UpperBounded {
		d := b.Upper[i] - it.X[i]
		if d <= 0 {
			return math.Inf(1)
		}
		logs -= math.Log(d)
	}
	if p.damping != 0 {
		for _, i := range sets.SingleLower {
			logs += p.damping * (it.X[i] - b.Lower[i])
		}
		for _, i := range sets.SingleUpper {
			logs += p.damping * (b.Upper[i] - it.X[i])
		}
	}
	return p.mu * logs
}

// AuxiliaryDerivative returns ⟨∇A, dx⟩ where A is the auxiliary
// measure above.
func (p *Barrier) AuxiliaryDerivative(it *Iterate, dx []float64) float64 {
	b := p.VariableBounds()
	sets := p.VariableSets()
	var d float64
	for _, i := range sets.LowerBounded {
		d -= p.mu / (it.X[i] - b.Lower[i]) * dx[i]
	}
	for _, i := range sets.UpperBounded {
		d -= p.mu / (it.X[i] - b.Upper[i]) * dx[i]
	}
	if p.damping != 0 {
		for _, i := range sets.SingleLower {
			d += p.damping * p.mu * dx[i]
		}
		for _, i := range sets.SingleUpper {
			d -= p.damping * p.mu * dx[i]
		}
	}
	return d
}

// GradientTo accumulates the barrier objective gradient ∇φ_μ into the
// dense vector dst: the inner gradient plus −μ/(x−xˡ) and −μ/(x−xᵘ)
// terms and the damping contributions. dst is overwritten.
func (p *Barrier) GradientTo(it *Iterate, g *SparseVector, dst []float64) error {
	if err := p.inner.Gradient(it, g); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = 0
	}
	g.AddTo(dst, 1)
	b := p.VariableBounds()
	sets := p.VariableSets()
	for _, i := range sets.LowerBounded {
		dst[i] -= p.mu / (it.X[i] - b.Lower[i])
	}
	for _, i := range sets.UpperBounded {
		dst[i] -= p.mu / (it.X[i] - b.Upper[i])
	}
	if p.damping != 0 {
		for _, i := range sets.SingleLower {
			dst[i] += p.damping * p.mu
		}
		for _, i := range sets.SingleUpper {
			dst[i] -= p.damping * p.mu
		}
	}
	return nil
}
