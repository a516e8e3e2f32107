// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// Problem is a reformulated view of a model. Views fix the objective
// multiplier σ, may extend the variable space with slack or elastic
// entries, and may reshape bounds.
//
// The evaluation methods route through the iterate caches: the model
// is asked for a quantity at most once per point, every further call
// only replays the view transformation. The dst arguments therefore
// never alias the iterate caches.
type Problem interface {
	Model() Model

	// NumVariables counts the view's variables, elastics included.
	NumVariables() int
	NumConstraints() int
	VariableBounds() Bounds
	ConstraintBounds() Bounds

	// VariableSets classifies the view's variable bounds.
	VariableSets() *IndexSets
	EqualityConstraints() []int
	InequalityConstraints() []int

	// ObjectiveMultiplier returns σ; zero means a pure feasibility
	// problem.
	ObjectiveMultiplier() float64

	// Objective returns the view objective, σ and penalty terms
	// included.
	Objective(it *Iterate) (float64, error)
	// Gradient overwrites g with the view objective gradient.
	Gradient(it *Iterate, g *SparseVector) error
	// Constraints overwrites c with the view constraint values.
	Constraints(it *Iterate, c []float64) error
	// Jacobian overwrites jac with the view constraint Jacobian.
	Jacobian(it *Iterate, jac *Matrix) error
	// Hessian overwrites h with ∇²ₓₓ[σ·f − ⟨λ,c⟩] using the given
	// constraint multipliers.
	Hessian(it *Iterate, lambda []float64, h *SymMatrix) error

	// Infeasibility returns the 1-norm violation of the view
	// constraints at the iterate.
	Infeasibility(it *Iterate) (float64, error)

	// Elastics returns the elastic layout, or nil if the view has
	// none.
	Elastics() *ElasticVariables
}

// ensureObjective fills the iterate objective cache.
func ensureObjective(m Model, it *Iterate) error {
	if it.fOK {
		return nil
	}
	f, err := m.Objective(it.X)
	if err != nil {
		return err
	}
	it.F, it.fOK = f, true
	return nil
}

// ensureGradient fills the iterate gradient cache.
func ensureGradient(m Model, it *Iterate) error {
	if it.gradOK {
		return nil
	}
	if err := m.ObjectiveGradient(it.X, &it.Gradient); err != nil {
		return err
	}
	it.gradOK = true
	return nil
}

// ensureConstraints fills the iterate constraint cache.
func ensureConstraints(m Model, it *Iterate) error {
	if it.consOK {
		return nil
	}
	if err := m.Constraints(it.X, it.Constraints); err != nil {
		return err
	}
	it.consOK = true
	return nil
}

// ensureJacobian fills the iterate Jacobian cache.
func ensureJacobian(m Model, it *Iterate) error {
	if it.jacOK {
		return nil
	}
	if err := m.ConstraintJacobian(it.X, &it.Jacobian); err != nil {
		return err
	}
	it.jacOK = true
	return nil
}

// Original is the identity view: the model itself with a fixed
// objective multiplier.
type Original struct {
	model  Model
	sigma  float64
	vb, cb Bounds
	sets   IndexSets
	eq     []int
	ineq   []int
}

// NewOriginal wraps model with objective multiplier σ.
func NewOriginal(model Model, sigma float64) *Original {
	p := &Original{
		model: model,
		sigma: sigma,
		vb:    model.VariableBounds(),
		cb:    model.ConstraintBounds(),
	}
	p.sets = p.vb.Sets()
	p.eq, p.ineq = p.cb.SplitEqualities()
	return p
}

func (p *Original) Model() Model                { return p.model }
func (p *Original) NumVariables() int           { return p.model.NumVariables() }
func (p *Original) NumConstraints() int         { return p.model.NumConstraints() }
func (p *Original) VariableBounds() Bounds      { return p.vb }
func (p *Original) ConstraintBounds() Bounds    { return p.cb }
func (p *Original) VariableSets() *IndexSets    { return &p.sets }
func (p *Original) EqualityConstraints() []int  { return p.eq }
func (p *Original) InequalityConstraints() []int { return p.ineq }
func (p *Original) ObjectiveMultiplier() float64 { return p.sigma }
func (p *Original) Elastics() *ElasticVariables  { return nil }

func (p *Original) Objective(it *Iterate) (float64, error) {
	if err := ensureObjective(p.model, it); err != nil {
		return 0, err
	}
	return p.sigma * it.F, nil
}

func (p *Original) Gradient(it *Iterate, g *SparseVector) error {
	if err := ensureGradient(p.model, it); err != nil {
		return err
	}
	g.Reset()
	for k, i := range it.Gradient.Index {
		g.Append(i, p.sigma*it.Gradient.Value[k])
	}
	return nil
}

func (p *Original) Constraints(it *Iterate, c []float64) error {
	if err := ensureConstraints(p.model, it); err != nil {
		return err
	}
	copy(c, it.Constraints)
	return nil
}

func (p *Original) Jacobian(it *Iterate, jac *Matrix) error {
	if err := ensureJacobian(p.model, it); err != nil {
		return err
	}
	jac.CopyFrom(&it.Jacobian)
	return nil
}

func (p *Original) Hessian(it *Iterate, lambda []float64, h *SymMatrix) error {
	return p.model.LagrangianHessian(it.X, p.sigma, lambda, h)
}

func (p *Original) Infeasibility(it *Iterate) (float64, error) {
	if err := ensureConstraints(p.model, it); err != nil {
		return 0, err
	}
	return p.cb.Violation(it.Constraints), nil
}
