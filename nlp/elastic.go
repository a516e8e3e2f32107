// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// ElasticPair ties an elastic variable to the constraint it relaxes.
type ElasticPair struct {
	Constraint int
	Variable   int
}

// ElasticVariables lays out the nonnegative relaxation variables of
// an ℓ₁ view: constraint j becomes cˡ ≤ c_j(x) + p_j − n_j ≤ cᵘ, so a
// positive elastic p exists for every finite lower bound and a
// negative elastic n for every finite upper bound.
type ElasticVariables struct {
	Positive []ElasticPair // p, entering with +1
	Negative []ElasticPair // n, entering with −1
}

// GenerateElastics assigns elastic variable indices starting at
// firstVar: all positive elastics in constraint order, then all
// negative ones.
func GenerateElastics(cb Bounds, firstVar int) *ElasticVariables {
	e := &ElasticVariables{}
	next := firstVar
	for j := range cb.Lower {
		if !math.IsInf(cb.Lower[j], -1) {
			e.Positive = append(e.Positive, ElasticPair{Constraint: j, Variable: next})
			next++
		}
	}
	for j := range cb.Upper {
		if !math.IsInf(cb.Upper[j], 1) {
			e.Negative = append(e.Negative, ElasticPair{Constraint: j, Variable: next})
			next++
		}
	}
	return e
}

// Count returns the total number of elastic variables.
func (e *ElasticVariables) Count() int { return len(e.Positive) + len(e.Negative) }

// L1Relaxed is the ℓ₁ penalty view
//
//	min σ·f(x) + ρ·Σ(p+n)  s.t.  cˡ ≤ c(x) + p − n ≤ cᵘ,  p,n ≥ 0
//
// over the model bounds. With σ = 0 it is the pure feasibility
// problem of the restoration phase.
type L1Relaxed struct {
	model    Model
	sigma    float64
	rho      float64
	elastics *ElasticVariables
	nBase    int
	vb, cb   Bounds
	sets     IndexSets
	eq       []int
	ineq     []int
	// posOf/negOf map a constraint to its elastic variable, −1 when
	// absent.
	posOf, negOf []int
}

// NewL1Relaxed wraps model with objective multiplier σ and elastic
// penalty ρ.
func NewL1Relaxed(model Model, sigma, rho float64) *L1Relaxed {
	n := model.NumVariables()
	cb := model.ConstraintBounds()
	e := GenerateElastics(cb, n)

	mvb := model.VariableBounds()
	vb := NewBounds(n + e.Count())
	copy(vb.Lower, mvb.Lower)
	copy(vb.Upper, mvb.Upper)
	for i := n; i < vb.Len(); i++ {
		vb.Lower[i] = 0
	}

	p := &L1Relaxed{
		model:    model,
		sigma:    sigma,
		rho:      rho,
		elastics: e,
		nBase:    n,
		vb:       vb,
		cb:       cb,
	}
	p.sets = vb.Sets()
	p.eq, p.ineq = cb.SplitEqualities()
	m := cb.Len()
	p.posOf, p.negOf = make([]int, m), make([]int, m)
	for j := 0; j < m; j++ {
		p.posOf[j], p.negOf[j] = -1, -1
	}
	for _, pair := range e.Positive {
		p.posOf[pair.Constraint] = pair.Variable
	}
	for _, pair := range e.Negative {
		p.negOf[pair.Constraint] = pair.Variable
	}
	return p
}

func (p *L1Relaxed) Model() Model                 { return p.model }
func (p *L1Relaxed) NumVariables() int            { return p.nBase + p.elastics.Count() }
func (p *L1Relaxed) NumConstraints() int          { return p.model.NumConstraints() }
func (p *L1Relaxed) VariableBounds() Bounds       { return p.vb }
func (p *L1Relaxed) ConstraintBounds() Bounds     { return p.cb }
func (p *L1Relaxed) VariableSets() *IndexSets     { return &p.sets }
func (p *L1Relaxed) EqualityConstraints() []int   { return p.eq }
func (p *L1Relaxed) InequalityConstraints() []int { return p.ineq }
func (p *L1Relaxed) ObjectiveMultiplier() float64 { return p.sigma }
func (p *L1Relaxed) Elastics() *ElasticVariables  { return p.elastics }

// Penalty returns the elastic penalty ρ.
func (p *L1Relaxed) Penalty() float64 { return p.rho }

// SetPenalty replaces ρ.
func (p *L1Relaxed) SetPenalty(rho float64) { p.rho = rho }

// SetObjectiveMultiplier replaces σ. The feasibility problem of the
// restoration phase uses σ = 0.
func (p *L1Relaxed) SetObjectiveMultiplier(sigma float64) { p.sigma = sigma }

// elasticSum returns Σ(p+n) at the iterate.
func (p *L1Relaxed) elasticSum(it *Iterate) float64 {
	var s float64
	for _, pair := range p.elastics.Positive {
		s += it.X[pair.Variable]
	}
	for _, pair := range p.elastics.Negative {
		s += it.X[pair.Variable]
	}
	return s
}

func (p *L1Relaxed) Objective(it *Iterate) (float64, error) {
	f := 0.0
	if p.sigma != 0 {
		if err := ensureObjective(p.model, it); err != nil {
			return 0, err
		}
		f = p.sigma * it.F
	}
	return f + p.rho*p.elasticSum(it), nil
}

func (p *L1Relaxed) Gradient(it *Iterate, g *SparseVector) error {
	g.Reset()
	if p.sigma != 0 {
		if err := ensureGradient(p.model, it); err != nil {
			return err
		}
		for k, i := range it.Gradient.Index {
			g.Append(i, p.sigma*it.Gradient.Value[k])
		}
	}
	for _, pair := range p.elastics.Positive {
		g.Append(pair.Variable, p.rho)
	}
	for _, pair := range p.elastics.Negative {
		g.Append(pair.Variable, p.rho)
	}
	return nil
}

// relax adds the elastic contributions to the raw constraint values.
func (p *L1Relaxed) relax(it *Iterate, c []float64) {
	for _, pair := range p.elastics.Positive {
		c[pair.Constraint] += it.X[pair.Variable]
	}
	for _, pair := range p.elastics.Negative {
		c[pair.Constraint] -= it.X[pair.Variable]
	}
}

func (p *L1Relaxed) Constraints(it *Iterate, c []float64) error {
	if err := ensureConstraints(p.model, it); err != nil {
		return err
	}
	copy(c, it.Constraints)
	p.relax(it, c)
	return nil
}

func (p *L1Relaxed) Jacobian(it *Iterate, jac *Matrix) error {
	if err := ensureJacobian(p.model, it); err != nil {
		return err
	}
	jac.CopyFrom(&it.Jacobian)
	jac.N = p.NumVariables()
	for _, pair := range p.elastics.Positive {
		jac.Row(pair.Constraint).Append(pair.Variable, 1)
	}
	for _, pair := range p.elastics.Negative {
		jac.Row(pair.Constraint).Append(pair.Variable, -1)
	}
	return nil
}

func (p *L1Relaxed) Hessian(it *Iterate, lambda []float64, h *SymMatrix) error {
	if err := p.model.LagrangianHessian(it.X, p.sigma, lambda, h); err != nil {
		return err
	}
	h.N = p.NumVariables()
	return nil
}

func (p *L1Relaxed) Infeasibility(it *Iterate) (float64, error) {
	if err := ensureConstraints(p.model, it); err != nil {
		return 0, err
	}
	var s float64
	for j, v := range it.Constraints {
		if i := p.posOf[j]; i >= 0 {
			v += it.X[i]
		}
		if i := p.negOf[j]; i >= 0 {
			v -= it.X[i]
		}
		if d := p.cb.Lower[j] - v; d > 0 {
			s += d
		} else if d := v - p.cb.Upper[j]; d > 0 {
			s += d
		}
	}
	return s, nil
}

// ResetElastics sets the elastic entries of it.X to the smallest
// values that make the relaxed constraints hold:
// p_j = max(0, cˡ−c_j) and n_j = max(0, c_j−cᵘ).
func (p *L1Relaxed) ResetElastics(it *Iterate) error {
	if err := ensureConstraints(p.model, it); err != nil {
		return err
	}
	for _, pair := range p.elastics.Positive {
		it.X[pair.Variable] = math.Max(0, p.cb.Lower[pair.Constraint]-it.Constraints[pair.Constraint])
	}
	for _, pair := range p.elastics.Negative {
		it.X[pair.Variable] = math.Max(0, it.Constraints[pair.Constraint]-p.cb.Upper[pair.Constraint])
	}
	return nil
}
