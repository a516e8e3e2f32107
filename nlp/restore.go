// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// Restoration is the phase-1 view used by the active-set restoration
// phase. Given a partition of the constraints at a reference point,
// it minimizes the total violation of the infeasible set
//
//	min Σ_{j below} (cˡ_j − c_j(x))  +  Σ_{j above} (c_j(x) − cᵘ_j)
//
// while the violated side of each infeasible constraint is dropped
// from the constraint bounds and all other sides stay enforced.
// The partition is refreshed at every restoration iteration.
type Restoration struct {
	model     Model
	partition *ConstraintPartition
	vb        Bounds
	cb        Bounds // enforced sides only
	modelCB   Bounds
	sets      IndexSets
	eq, ineq  []int
	grad      []float64 // dense scratch for the violation gradient
	lam       []float64 // scratch for the ℓ₁ multipliers
}

// NewRestoration wraps model; the view is unusable until Refresh ran.
func NewRestoration(model Model) *Restoration {
	m := model.NumConstraints()
	p := &Restoration{
		model:     model,
		partition: NewConstraintPartition(m),
		vb:        model.VariableBounds(),
		cb:        NewBounds(m),
		modelCB:   model.ConstraintBounds(),
		grad:      make([]float64, model.NumVariables()),
		lam:       make([]float64, m),
	}
	p.sets = p.vb.Sets()
	return p
}

// Refresh reclassifies the constraints at it and rebuilds the
// enforced bounds. Violations up to tol count as feasible.
func (p *Restoration) Refresh(it *Iterate, tol float64) error {
	if err := ensureConstraints(p.model, it); err != nil {
		return err
	}
	p.partition.Partition(it.Constraints, p.modelCB, tol)
	for j := range p.cb.Lower {
		switch p.partition.Status[j] {
		case ConstraintBelowLower:
			p.cb.Lower[j] = math.Inf(-1)
			p.cb.Upper[j] = p.modelCB.Upper[j]
		case ConstraintAboveUpper:
			p.cb.Lower[j] = p.modelCB.Lower[j]
			p.cb.Upper[j] = math.Inf(1)
		default:
			p.cb.Lower[j] = p.modelCB.Lower[j]
			p.cb.Upper[j] = p.modelCB.Upper[j]
		}
	}
	p.eq, p.ineq = p.cb.SplitEqualities()
	return nil
}

// Partition exposes the classification of the last Refresh.
func (p *Restoration) Partition() *ConstraintPartition { return p.partition }

func (p *Restoration) Model() Model                 { return p.model }
func (p *Restoration) NumVariables() int            { return p.model.NumVariables() }
func (p *Restoration) NumConstraints() int          { return p.model.NumConstraints() }
func (p *Restoration) VariableBounds() Bounds       { return p.vb }
func (p *Restoration) ConstraintBounds() Bounds     { return p.cb }
func (p *Restoration) VariableSets() *IndexSets     { return &p.sets }
func (p *Restoration) EqualityConstraints() []int   { return p.eq }
func (p *Restoration) InequalityConstraints() []int { return p.ineq }
func (p *Restoration) ObjectiveMultiplier() float64 { return 0 }
func (p *Restoration) Elastics() *ElasticVariables  { return nil }

// Objective returns the violation of the infeasible set at it.
// The set is the one fixed by the last Refresh, so trial points are
// measured against the same partition.
func (p *Restoration) Objective(it *Iterate) (float64, error) {
	if err := ensureConstraints(p.model, it); err != nil {
		return 0, err
	}
	var s float64
	for _, j := range p.partition.Infeasible {
		switch p.partition.Status[j] {
		case ConstraintBelowLower:
			s += math.Max(0, p.modelCB.Lower[j]-it.Constraints[j])
		case ConstraintAboveUpper:
			s += math.Max(0, it.Constraints[j]-p.modelCB.Upper[j])
		}
	}
	return s, nil
}

// Gradient returns Σ ∓∇c_j over the infeasible set: −∇c_j for
// constraints below their lower bound and +∇c_j above their upper.
func (p *Restoration) Gradient(it *Iterate, g *SparseVector) error {
	if err := ensureJacobian(p.model, it); err != nil {
		return err
	}
	for i := range p.grad {
		p.grad[i] = 0
	}
	for _, j := range p.partition.Infeasible {
		sign := 1.0
		if p.partition.Status[j] == ConstraintBelowLower {
			sign = -1.0
		}
		it.Jacobian.Rows[j].AddTo(p.grad, sign)
	}
	g.Reset()
	if cap(g.Value) < len(p.grad) {
		g.Value = make([]float64, len(p.grad))
	}
	g.Value = g.Value[:len(p.grad)]
	copy(g.Value, p.grad)
	return compact(g, g.Value)
}

func (p *Restoration) Constraints(it *Iterate, c []float64) error {
	if err := ensureConstraints(p.model, it); err != nil {
		return err
	}
	copy(c, it.Constraints)
	return nil
}

func (p *Restoration) Jacobian(it *Iterate, jac *Matrix) error {
	if err := ensureJacobian(p.model, it); err != nil {
		return err
	}
	jac.CopyFrom(&it.Jacobian)
	return nil
}

// Hessian evaluates the Lagrangian of the violation objective: the
// infeasible constraints carry ℓ₁ multipliers ±1, the enforced ones
// their current estimates.
func (p *Restoration) Hessian(it *Iterate, lambda []float64, h *SymMatrix) error {
	eff := p.lam
	copy(eff, lambda)
	for _, j := range p.partition.Infeasible {
		if p.partition.Status[j] == ConstraintBelowLower {
			eff[j] = 1
		} else {
			eff[j] = -1
		}
	}
	return p.model.LagrangianHessian(it.X, 0, eff, h)
}

// Infeasibility measures only the enforced sides.
func (p *Restoration) Infeasibility(it *Iterate) (float64, error) {
	if err := ensureConstraints(p.model, it); err != nil {
		return 0, err
	}
	return p.cb.Violation(it.Constraints), nil
}
