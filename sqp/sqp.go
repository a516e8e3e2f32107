// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqp implements the active-set subproblems: around the
// current iterate it assembles the trust-region local model
//
//	min ½ Δxᵀ𝐇Δx + ⟨∇f,Δx⟩  s.t.  cˡ−c ≤ ∇c·Δx ≤ cᵘ−c,
//	                              max(−Δ, xˡ−x) ≤ Δx ≤ min(Δ, xᵘ−x)
//
// and delegates to a qp backend. The quadratic model gives SQP, the
// gradient-only model gives SLP, and either model on an ℓ₁-relaxed
// view gives the Sℓ₁QP and restoration methods: elastic variables are
// detected through the view, exempted from the trust region, and
// scrubbed from the reported active set.
package sqp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/nlsolve/nlp"
	"github.com/curioloop/nlsolve/qp"
)

// assembler builds the shared parts of the local model and maps the
// backend solution into a Direction. SQP and SLP embed it.
type assembler struct {
	n, m  int
	nBase int
	elastic []bool

	varLower, varUpper []float64
	conLower, conUpper []float64
	c, g               []float64
	gs                 nlp.SparseVector
	jac                nlp.Matrix
	x0                 []float64

	prob  qp.Problem
	first bool
}

func (a *assembler) init(p nlp.Problem) {
	n, m := p.NumVariables(), p.NumConstraints()
	a.n, a.m = n, m
	a.varLower = grow(a.varLower, n)
	a.varUpper = grow(a.varUpper, n)
	a.conLower = grow(a.conLower, m)
	a.conUpper = grow(a.conUpper, m)
	a.c = grow(a.c, m)
	a.g = grow(a.g, n)
	a.x0 = grow(a.x0, n)

	a.elastic = append(a.elastic[:0], make([]bool, n)...)
	a.nBase = n
	if e := p.Elastics(); e != nil {
		a.nBase = n - e.Count()
		for _, pair := range e.Positive {
			a.elastic[pair.Variable] = true
		}
		for _, pair := range e.Negative {
			a.elastic[pair.Variable] = true
		}
	}
	a.first = true
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

// build fills the displacement bounds, linearized constraint bounds,
// gradient and Jacobian of the local model at it.
func (a *assembler) build(p nlp.Problem, it *nlp.Iterate, radius float64) error {
	vb := p.VariableBounds()
	for i := 0; i < a.n; i++ {
		if a.elastic[i] {
			// elastics stay nonnegative but never hit the trust region
			a.varLower[i] = -it.X[i]
			a.varUpper[i] = math.Inf(1)
			continue
		}
		a.varLower[i] = math.Max(-radius, vb.Lower[i]-it.X[i])
		a.varUpper[i] = math.Min(radius, vb.Upper[i]-it.X[i])
	}

	if err := p.Constraints(it, a.c); err != nil {
		return err
	}
	cb := p.ConstraintBounds()
	for j := 0; j < a.m; j++ {
		a.conLower[j] = cb.Lower[j] - a.c[j]
		a.conUpper[j] = cb.Upper[j] - a.c[j]
	}

	if err := p.Gradient(it, &a.gs); err != nil {
		return err
	}
	for i := range a.g {
		a.g[i] = 0
	}
	a.gs.AddTo(a.g, 1)

	if err := p.Jacobian(it, &a.jac); err != nil {
		return err
	}

	a.prob = qp.Problem{
		N: a.n, M: a.m,
		VarLower: a.varLower, VarUpper: a.varUpper,
		ConLower: a.conLower, ConUpper: a.conUpper,
		G: a.g, A: &a.jac,
		X0: a.x0,
	}
	return nil
}

// warm returns the warm-start flags for the coming solve, nil on the
// first call after init.
func (a *assembler) warm(hessChanged bool) *qp.Warmstart {
	if a.first {
		return nil
	}
	return &qp.Warmstart{
		Objective: true, Constraints: true,
		VariableBounds: true, ConstraintBounds: true,
		Hessian: hessChanged,
	}
}

// direction maps a backend solution into dir. dir.Duals receives the
// new multiplier values; ComputeDualDisplacements turns them into
// displacements later.
func (a *assembler) direction(p nlp.Problem, it *nlp.Iterate, sol *qp.Solution, dir *nlp.Direction) {
	switch sol.Status {
	case qp.Optimal:
		dir.Status = nlp.SubproblemOptimal
	case qp.Infeasible:
		dir.Status = nlp.SubproblemInfeasible
		return
	case qp.Unbounded:
		dir.Status = nlp.SubproblemUnbounded
		return
	default:
		dir.Status = nlp.SubproblemError
		return
	}

	copy(dir.Primal[:a.n], sol.X)
	copy(dir.Duals.Constraints[:a.m], sol.ConstraintDuals)
	copy(dir.Duals.LowerBounds[:a.n], sol.LowerDuals)
	copy(dir.Duals.UpperBounds[:a.n], sol.UpperDuals)
	dir.Objective = sol.Objective

	act := &dir.Active
	act.Reset()
	act.LowerVariables = append(act.LowerVariables, sol.Active.VarLower...)
	act.UpperVariables = append(act.UpperVariables, sol.Active.VarUpper...)
	act.LowerConstraints = append(act.LowerConstraints, sol.Active.ConLower...)
	act.UpperConstraints = append(act.UpperConstraints, sol.Active.ConUpper...)
	a.recoverElastics(p, it, dir)

	dir.UpdateNorm(a.nBase)
}

// recoverElastics scrubs the active set of an ℓ₁-relaxed view: no
// elastic index is reported, and a constraint whose relaxation is
// active at the step (p_j + n_j > 0) is not marked active either.
func (a *assembler) recoverElastics(p nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) {
	e := p.Elastics()
	if e == nil {
		return
	}
	act := &dir.Active
	act.LowerVariables = dropIf(act.LowerVariables, func(i int) bool { return a.elastic[i] })
	act.UpperVariables = dropIf(act.UpperVariables, func(i int) bool { return a.elastic[i] })

	sum := make(map[int]float64, len(e.Positive)+len(e.Negative))
	for _, pair := range e.Positive {
		sum[pair.Constraint] += it.X[pair.Variable] + dir.Primal[pair.Variable]
	}
	for _, pair := range e.Negative {
		sum[pair.Constraint] += it.X[pair.Variable] + dir.Primal[pair.Variable]
	}
	relaxed := func(j int) bool { return sum[j] > 0 }
	act.LowerConstraints = dropIf(act.LowerConstraints, relaxed)
	act.UpperConstraints = dropIf(act.UpperConstraints, relaxed)
}

func dropIf(set []int, drop func(int) bool) []int {
	k := 0
	for _, i := range set {
		if !drop(i) {
			set[k] = i
			k++
		}
	}
	return set[:k]
}

// The assembler carries the Subproblem methods shared by both
// variants.

func (a *assembler) EvaluateFunctions(p nlp.Problem, it *nlp.Iterate) error {
	f, err := p.Objective(it)
	if err != nil {
		return err
	}
	h, err := p.Infeasibility(it)
	if err != nil {
		return err
	}
	it.Progress.Objective = f
	it.Progress.Infeasibility = h
	return nil
}

func (a *assembler) SetInitialPoint(x []float64) {
	copy(a.x0, x)
}

func (a *assembler) ComputeDualDisplacements(it *nlp.Iterate, dir *nlp.Direction) {
	floats.Sub(dir.Duals.Constraints[:a.m], it.Duals.Constraints[:a.m])
	floats.Sub(dir.Duals.LowerBounds[:a.n], it.Duals.LowerBounds[:a.n])
	floats.Sub(dir.Duals.UpperBounds[:a.n], it.Duals.UpperBounds[:a.n])
}

// SetAuxiliaryMeasure is trivial for the active-set methods: no
// barrier terms.
func (a *assembler) SetAuxiliaryMeasure(p nlp.Problem, it *nlp.Iterate) {
	it.Progress.Auxiliary = 0
}

func (a *assembler) PredictedAuxiliaryReduction(p nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) nlp.Reduction {
	return nlp.Reduction{}
}

// PostprocessIterate clips roundoff excursions back into the bounds.
func (a *assembler) PostprocessIterate(p nlp.Problem, it *nlp.Iterate) {
	p.VariableBounds().Project(it.X[:a.n])
}

// SQP is the quadratic active-set subproblem. On an ℓ₁-relaxed view
// it is the Sℓ₁QP method; on a restoration view the ℓ₁QP method.
type SQP struct {
	assembler
	solver  qp.Solver
	hess    HessianModel
	h       nlp.SymMatrix
	hasDiag []bool
}

// NewSQP pairs a QP backend with a Hessian model.
func NewSQP(solver qp.Solver, hess HessianModel) *SQP {
	return &SQP{solver: solver, hess: hess}
}

// NewSl1QP is NewSQP named for its use on an ℓ₁-relaxed view.
func NewSl1QP(solver qp.Solver, hess HessianModel) *SQP {
	return NewSQP(solver, hess)
}

func (s *SQP) Initialize(p nlp.Problem, it *nlp.Iterate) error {
	s.init(p)
	s.hess.Initialize(s.n)
	s.h.Reset(s.n)
	return nil
}

func (s *SQP) Solve(p nlp.Problem, it *nlp.Iterate, radius float64, dir *nlp.Direction) error {
	dir.Reset()
	if err := s.build(p, it, radius); err != nil {
		return err
	}
	changed, err := s.hess.Refresh(p, it, &s.h)
	if err != nil {
		return err
	}
	if changed {
		s.elasticCurvature()
	}
	s.prob.H = &s.h

	ws := s.warm(changed)
	sol, err := s.solver.SolveQP(&s.prob, ws)
	for errors.Is(err, qp.ErrNotConvex) {
		if !s.hess.Regularize(&s.h) {
			dir.Status = nlp.SubproblemError
			return nil
		}
		s.elasticCurvature()
		if ws == nil {
			ws = qp.All()
		}
		ws.Hessian = true
		sol, err = s.solver.SolveQP(&s.prob, ws)
	}
	if err != nil {
		return err
	}
	s.first = false

	s.direction(p, it, sol, dir)
	if dir.Status != nlp.SubproblemOptimal {
		return nil
	}
	dir.Predicted = nlp.Reduction{
		Linear:    -floats.Dot(s.g, sol.X),
		Quadratic: -s.h.QuadForm(sol.X) / 2,
	}
	return nil
}

// elasticCurvature gives every elastic variable without a diagonal
// entry a unit one, so the factorization stays definite when the
// model Hessian does not cover the elastic block.
func (s *SQP) elasticCurvature() {
	if s.nBase == s.n {
		return
	}
	ne := s.n - s.nBase
	s.hasDiag = append(s.hasDiag[:0], make([]bool, ne)...)
	for k := range s.h.V {
		if i := s.h.I[k]; i == s.h.J[k] && i >= s.nBase {
			s.hasDiag[i-s.nBase] = true
		}
	}
	for i, ok := range s.hasDiag {
		if !ok {
			s.h.Append(s.nBase+i, s.nBase+i, 1)
		}
	}
}

func (s *SQP) HessianEvaluations() int { return s.hess.Evaluations() }

// SLP is the gradient-only active-set subproblem. On a restoration
// view it is the ℓ₁LP method.
type SLP struct {
	assembler
	solver qp.LPSolver
}

// NewSLP wraps an LP backend.
func NewSLP(solver qp.LPSolver) *SLP {
	return &SLP{solver: solver}
}

func (s *SLP) Initialize(p nlp.Problem, it *nlp.Iterate) error {
	s.init(p)
	return nil
}

func (s *SLP) Solve(p nlp.Problem, it *nlp.Iterate, radius float64, dir *nlp.Direction) error {
	dir.Reset()
	if err := s.build(p, it, radius); err != nil {
		return err
	}
	sol, err := s.solver.SolveLP(&s.prob, s.warm(false))
	if err != nil {
		return err
	}
	s.first = false

	s.direction(p, it, sol, dir)
	if dir.Status != nlp.SubproblemOptimal {
		return nil
	}
	dir.Predicted = nlp.Reduction{Linear: -floats.Dot(s.g, sol.X)}
	return nil
}

func (s *SLP) HessianEvaluations() int { return 0 }
