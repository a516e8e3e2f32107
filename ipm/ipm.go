// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ipm implements the primal-dual interior-point subproblem.
// On a view whose general constraints are all equalities it takes
// Newton steps on the perturbed KKT conditions of the damped barrier
// problem
//
//	𝚖𝚒𝚗 σf(x) − μ·Σ log(dᵢ) + ξμ·Σ' dᵢ  s.t.  c(x) = 0
//
// where dᵢ are the distances to the finite variable bounds: the bound
// multipliers are eliminated into the Hessian diagonal, the augmented
// system is factored as 𝐋𝐃𝐋ᵀ and regularized until its inertia is
// (n, m, 0), and the step fractions from the fraction-to-boundary rule
// keep the next iterate strictly interior.
package ipm

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlsolve/ldl"
	"github.com/curioloop/nlsolve/nlp"
)

const (
	// primal regularization schedule
	deltaInitial    = 1e-4
	deltaMin        = 1e-20
	deltaGrowth     = 100
	maxInertiaTries = 30
)

var macheps = math.Nextafter(1, 2) - 1

// IPM is the interior-point direction computation. The exported
// fields are options; NewIPM fills them with the usual defaults and
// they may be overridden before Initialize.
type IPM struct {
	// InitialMu is the starting barrier parameter.
	InitialMu float64
	// Damping is the ξ factor on variables bounded on one side only.
	Damping float64
	// TauMin floors the fraction-to-boundary factor τ = max(TauMin, 1−μ).
	TauMin float64
	// DefaultMultiplier seeds the bound duals at initialization.
	DefaultMultiplier float64
	// KappaSigma bounds how far a bound dual may drift from μ/(x−b)
	// before the post-acceptance reset clamps it.
	KappaSigma float64
	// RegularizationExponent sets the dual regularization δ_c = μ^κ
	// applied on rank-deficient constraint Jacobians.
	RegularizationExponent float64
	// SmallStepFactor scales the machine-precision small-step test.
	SmallStepFactor float64
	// PushFactor and PushRangeFactor control how far the starting
	// point is pushed inside its bounds.
	PushFactor, PushRangeFactor float64
	// LeastSquareMaxNorm caps the multiplier estimate at restoration
	// exit; a larger estimate falls back to zeros.
	LeastSquareMaxNorm float64

	solver ldl.Solver
	update BarrierUpdate

	mu      float64
	n, m    int
	barrier *nlp.Barrier
	kkt     *nlp.KKTError

	kbase, ktry *mat.SymDense
	rhs, sol    []float64
	g, c        []float64
	comp        []float64
	gs          nlp.SparseVector
	jac         nlp.Matrix
	hess        nlp.SymMatrix

	lastDeltaX float64
	savedMu    float64
	smallStep  bool
	evals      int
}

// NewIPM pairs a factorization backend with a barrier update strategy.
func NewIPM(solver ldl.Solver, update BarrierUpdate) *IPM {
	return &IPM{
		InitialMu:              0.1,
		Damping:                1e-5,
		TauMin:                 0.99,
		DefaultMultiplier:      1,
		KappaSigma:             1e10,
		RegularizationExponent: 1.25,
		SmallStepFactor:        100,
		PushFactor:             0.01,
		PushRangeFactor:        0.01,
		LeastSquareMaxNorm:     1e3,
		solver:                 solver,
		update:                 update,
	}
}

// Mu returns the current barrier parameter.
func (q *IPM) Mu() float64 { return q.mu }

// SmallStep reports whether the last direction was negligible
// relative to the iterate scale, which the driver may read as
// convergence at an interior point.
func (q *IPM) SmallStep() bool { return q.smallStep }

func (q *IPM) Initialize(p nlp.Problem, it *nlp.Iterate) error {
	cb := p.ConstraintBounds()
	for j := 0; j < cb.Len(); j++ {
		if !cb.IsEquality(j) {
			return errors.New("ipm: general inequalities must be reformulated as equalities with slacks")
		}
	}
	q.mu = q.InitialMu
	q.lastDeltaX = 0
	q.smallStep = false
	q.evals = 0
	q.resize(p)
	q.pushInterior(p, it)

	sets := p.VariableSets()
	for i := 0; i < q.n; i++ {
		it.Duals.LowerBounds[i] = 0
		it.Duals.UpperBounds[i] = 0
	}
	for _, i := range sets.LowerBounded {
		it.Duals.LowerBounds[i] = q.DefaultMultiplier
	}
	for _, i := range sets.UpperBounded {
		it.Duals.UpperBounds[i] = -q.DefaultMultiplier
	}
	it.Invalidate()
	return nil
}

func (q *IPM) resize(p nlp.Problem) {
	n, m := p.NumVariables(), p.NumConstraints()
	q.n, q.m = n, m
	dim := n + m
	if q.kbase == nil || q.kbase.SymmetricDim() != dim {
		q.kbase = mat.NewSymDense(dim, nil)
		q.ktry = mat.NewSymDense(dim, nil)
	}
	q.rhs = grow(q.rhs, dim)
	q.sol = grow(q.sol, dim)
	q.g = grow(q.g, n)
	q.c = grow(q.c, m)
	q.solver.Analyze(dim, n*(n+1)/2+m*n)
	q.barrier = nlp.NewBarrier(p, q.mu, q.Damping)
	q.kkt = nlp.NewKKTError(n, m)
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

// view returns the barrier overlay synced to p and the current μ.
func (q *IPM) view(p nlp.Problem) *nlp.Barrier {
	if q.barrier == nil || q.barrier.Inner() != p {
		q.barrier = nlp.NewBarrier(p, q.mu, q.Damping)
	}
	q.barrier.SetMu(q.mu)
	return q.barrier
}

// pushInterior moves the starting point strictly inside its bounds:
// the perturbation per side is min(k₁·max(1,|bound|), k₂·range).
func (q *IPM) pushInterior(p nlp.Problem, it *nlp.Iterate) {
	b := p.VariableBounds()
	for i := 0; i < q.n; i++ {
		l, u := b.Lower[i], b.Upper[i]
		fl := !math.IsInf(l, -1)
		fu := !math.IsInf(u, 1)
		switch {
		case fl && fu:
			r := u - l
			pl := math.Min(q.PushFactor*math.Max(1, math.Abs(l)), q.PushRangeFactor*r)
			pu := math.Min(q.PushFactor*math.Max(1, math.Abs(u)), q.PushRangeFactor*r)
			if l+pl > u-pu {
				it.X[i] = (l + u) / 2
			} else {
				it.X[i] = math.Min(math.Max(it.X[i], l+pl), u-pu)
			}
		case fl:
			it.X[i] = math.Max(it.X[i], l+q.PushFactor*math.Max(1, math.Abs(l)))
		case fu:
			it.X[i] = math.Min(it.X[i], u-q.PushFactor*math.Max(1, math.Abs(u)))
		}
	}
}

// relaxBounds nudges a finite bound away from an iterate that came
// closer than the evaluation noise floor, so the barrier distances
// stay representable.
func (q *IPM) relaxBounds(p nlp.Problem, it *nlp.Iterate) {
	b := p.VariableBounds()
	sets := p.VariableSets()
	shift := math.Pow(macheps, 0.75)
	for _, i := range sets.LowerBounded {
		if it.X[i]-b.Lower[i] < macheps*q.mu {
			b.Lower[i] -= shift * math.Max(1, math.Abs(b.Lower[i]))
		}
	}
	for _, i := range sets.UpperBounded {
		if b.Upper[i]-it.X[i] < macheps*q.mu {
			b.Upper[i] += shift * math.Max(1, math.Abs(b.Upper[i]))
		}
	}
}

func (q *IPM) EvaluateFunctions(p nlp.Problem, it *nlp.Iterate) error {
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

// Solve computes the Newton direction at it. The trust-region radius
// is ignored: the interior-point method is globalized by line search.
func (q *IPM) Solve(p nlp.Problem, it *nlp.Iterate, _ float64, dir *nlp.Direction) error {
	dir.Reset()
	q.relaxBounds(p, it)

	bar := q.view(p)
	if err := bar.GradientTo(it, &q.gs, q.g[:q.n]); err != nil {
		return err
	}
	if err := p.Constraints(it, q.c[:q.m]); err != nil {
		return err
	}
	if err := p.Jacobian(it, &q.jac); err != nil {
		return err
	}
	if err := p.Hessian(it, it.Duals.Constraints[:q.m], &q.hess); err != nil {
		return err
	}
	q.evals++

	q.assemble(p, it)
	if !q.correctInertia(dir) {
		return nil
	}

	// rhs = [−∇φ_μ + ∇cᵀλ; −c]
	rhs := q.rhs[:q.n+q.m]
	for i := 0; i < q.n; i++ {
		rhs[i] = -q.g[i]
	}
	q.jac.TransMulAddTo(rhs[:q.n], 1, it.Duals.Constraints[:q.m])
	for j := 0; j < q.m; j++ {
		rhs[q.n+j] = -q.c[j]
	}

	if err := q.solver.Solve(rhs, q.sol[:q.n+q.m]); err != nil {
		dir.Status = nlp.SubproblemError
		return nil
	}
	q.extract(p, it, dir)
	return nil
}

// assemble builds the augmented system
//
//	𝐊 = ⎡𝐇 + Σ z/(x−b)   ∇cᵀ⎤
//	    ⎣∇c                0 ⎦
//
// into kbase; regularization diagonals are added per factorization try.
func (q *IPM) assemble(p nlp.Problem, it *nlp.Iterate) {
	n, m := q.n, q.m
	k := q.kbase
	for i := 0; i < n+m; i++ {
		for j := 0; j <= i; j++ {
			k.SetSym(i, j, 0)
		}
	}
	for t, v := range q.hess.V {
		i, j := q.hess.I[t], q.hess.J[t]
		k.SetSym(i, j, k.At(i, j)+v)
	}
	b := p.VariableBounds()
	sets := p.VariableSets()
	for _, i := range sets.LowerBounded {
		k.SetSym(i, i, k.At(i, i)+it.Duals.LowerBounds[i]/(it.X[i]-b.Lower[i]))
	}
	for _, i := range sets.UpperBounded {
		k.SetSym(i, i, k.At(i, i)+it.Duals.UpperBounds[i]/(it.X[i]-b.Upper[i]))
	}
	for j := 0; j < m; j++ {
		row := &q.jac.Rows[j]
		for t, i := range row.Index {
			k.SetSym(n+j, i, k.At(n+j, i)+row.Value[t])
		}
	}
}

// correctInertia factors the augmented system, adding δ_x·I to the
// variable block and −δ_c·I to the constraint block until the inertia
// is (n, m, 0). δ_x grows geometrically from the last successful
// value; δ_c = μ^κ enters only when zero eigenvalues show up.
func (q *IPM) correctInertia(dir *nlp.Direction) bool {
	ok, err := q.tryFactorize(0, 0)
	if err != nil {
		dir.Status = nlp.SubproblemError
		return false
	}
	if ok {
		return true
	}
	_, _, zero := q.solver.Inertia()
	deltaC := 0.0
	if zero > 0 {
		deltaC = math.Pow(q.mu, q.RegularizationExponent)
	}
	deltaX := deltaInitial
	if q.lastDeltaX > 0 {
		deltaX = math.Max(deltaMin, q.lastDeltaX/deltaGrowth)
	}
	for try := 0; try < maxInertiaTries; try++ {
		ok, err = q.tryFactorize(deltaX, deltaC)
		if err != nil {
			break
		}
		if ok {
			q.lastDeltaX = deltaX
			return true
		}
		deltaX *= deltaGrowth
	}
	dir.Status = nlp.SubproblemError
	return false
}

func (q *IPM) tryFactorize(deltaX, deltaC float64) (bool, error) {
	k := q.ktry
	k.CopySym(q.kbase)
	if deltaX != 0 {
		for i := 0; i < q.n; i++ {
			k.SetSym(i, i, k.At(i, i)+deltaX)
		}
	}
	if deltaC != 0 {
		for j := 0; j < q.m; j++ {
			jj := q.n + j
			k.SetSym(jj, jj, k.At(jj, jj)-deltaC)
		}
	}
	if err := q.solver.Factorize(k); err != nil {
		return false, err
	}
	pos, neg, zero := q.solver.Inertia()
	return pos == q.n && neg == q.m && zero == 0, nil
}

// extract turns the solved system into a Direction: the constraint
// block of the solution is −Δλ, the bound duals follow in closed form
// and the fraction-to-boundary rule caps both step fractions.
func (q *IPM) extract(p nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) {
	n, m := q.n, q.m
	dx := q.sol[:n]
	copy(dir.Primal[:n], dx)
	for j := 0; j < m; j++ {
		dir.Duals.Constraints[j] = it.Duals.Constraints[j] - q.sol[n+j]
	}

	b := p.VariableBounds()
	sets := p.VariableSets()
	for _, i := range sets.LowerBounded {
		d := it.X[i] - b.Lower[i]
		z := it.Duals.LowerBounds[i]
		// z + Δz collapses to (μ − Δx·z)/(x−b)
		dir.Duals.LowerBounds[i] = (q.mu - dx[i]*z) / d
	}
	for _, i := range sets.UpperBounded {
		d := it.X[i] - b.Upper[i]
		z := it.Duals.UpperBounds[i]
		dir.Duals.UpperBounds[i] = (q.mu - dx[i]*z) / d
	}

	tau := math.Max(q.TauMin, 1-q.mu)
	alphaP, alphaD := 1.0, 1.0
	for _, i := range sets.LowerBounded {
		if dx[i] < 0 {
			alphaP = math.Min(alphaP, -tau*(it.X[i]-b.Lower[i])/dx[i])
		}
		z := it.Duals.LowerBounds[i]
		if dz := dir.Duals.LowerBounds[i] - z; dz < 0 && z > 0 {
			alphaD = math.Min(alphaD, -tau*z/dz)
		}
	}
	for _, i := range sets.UpperBounded {
		if dx[i] > 0 {
			alphaP = math.Min(alphaP, -tau*(it.X[i]-b.Upper[i])/dx[i])
		}
		z := it.Duals.UpperBounds[i]
		if dz := dir.Duals.UpperBounds[i] - z; dz > 0 && z < 0 {
			alphaD = math.Min(alphaD, -tau*z/dz)
		}
	}
	dir.PrimalStep, dir.DualStep = alphaP, alphaD

	var rel float64
	for i := 0; i < n; i++ {
		if r := math.Abs(dx[i]) / (1 + math.Abs(it.X[i])); r > rel {
			rel = r
		}
	}
	q.smallStep = rel < q.SmallStepFactor*macheps

	dir.Status = nlp.SubproblemOptimal
	dir.Objective = floats.Dot(q.g[:n], dx)
	dir.Predicted = nlp.Reduction{Linear: -q.gs.Dot(dx)}
	dir.UpdateNorm(n)
}

// SecondOrderCorrection reuses the last factorization: the primal
// block of the right-hand side is scaled by the failed step fraction
// α, the constraint block replaced by −c at the rejected trial point,
// and the direction regenerated from the new solution.
func (q *IPM) SecondOrderCorrection(p nlp.Problem, it, trial *nlp.Iterate, alpha float64, dir *nlp.Direction) error {
	if err := p.Constraints(trial, q.c[:q.m]); err != nil {
		return err
	}
	dir.Reset()
	rhs := q.rhs[:q.n+q.m]
	for i := 0; i < q.n; i++ {
		rhs[i] *= alpha
	}
	for j := 0; j < q.m; j++ {
		rhs[q.n+j] = -q.c[j]
	}
	if err := q.solver.Solve(rhs, q.sol[:q.n+q.m]); err != nil {
		dir.Status = nlp.SubproblemError
		return nil
	}
	q.extract(p, it, dir)
	return nil
}

// SetInitialPoint is a no-op: interior-point solves are never
// warm-started from the other phase.
func (q *IPM) SetInitialPoint(x []float64) {}

func (q *IPM) ComputeDualDisplacements(it *nlp.Iterate, dir *nlp.Direction) {
	floats.Sub(dir.Duals.Constraints[:q.m], it.Duals.Constraints[:q.m])
	floats.Sub(dir.Duals.LowerBounds[:q.n], it.Duals.LowerBounds[:q.n])
	floats.Sub(dir.Duals.UpperBounds[:q.n], it.Duals.UpperBounds[:q.n])
}

func (q *IPM) SetAuxiliaryMeasure(p nlp.Problem, it *nlp.Iterate) {
	it.Progress.Auxiliary = q.view(p).AuxiliaryMeasure(it)
}

func (q *IPM) PredictedAuxiliaryReduction(p nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) nlp.Reduction {
	return nlp.Reduction{Linear: -q.view(p).AuxiliaryDerivative(it, dir.Primal[:q.n])}
}

// PostprocessIterate clamps the bound duals of an accepted iterate to
//
//	[μ/(κ_σ·(x−b)), κ_σ·μ/(x−b)]
//
// so they cannot drift arbitrarily far from the barrier trajectory.
func (q *IPM) PostprocessIterate(p nlp.Problem, it *nlp.Iterate) {
	b := p.VariableBounds()
	sets := p.VariableSets()
	for _, i := range sets.LowerBounded {
		d := it.X[i] - b.Lower[i]
		if d <= 0 {
			continue
		}
		lo, hi := q.mu/(q.KappaSigma*d), q.KappaSigma*q.mu/d
		it.Duals.LowerBounds[i] = math.Min(math.Max(it.Duals.LowerBounds[i], lo), hi)
	}
	for _, i := range sets.UpperBounded {
		d := it.X[i] - b.Upper[i]
		if d >= 0 {
			continue
		}
		lo, hi := q.KappaSigma*q.mu/d, q.mu/(q.KappaSigma*d)
		it.Duals.UpperBounds[i] = math.Min(math.Max(it.Duals.UpperBounds[i], lo), hi)
	}
}

func (q *IPM) HessianEvaluations() int { return q.evals }

// UpdateBarrier applies the configured update strategy at an accepted
// iterate and returns the (possibly unchanged) barrier parameter.
func (q *IPM) UpdateBarrier(p nlp.Problem, it *nlp.Iterate, tol float64) float64 {
	comp := q.complementarity(p, it)
	errorAt := func(mu float64) float64 {
		res, err := q.kkt.Compute(p, it, mu)
		if err != nil {
			return math.Inf(1)
		}
		return res.Max()
	}
	q.mu = q.update.NextMu(q.mu, comp, errorAt, tol)
	return q.mu
}

// complementarity collects the products (x−b)·z of every finite bound
// side; both sides yield nonnegative products at an interior point.
func (q *IPM) complementarity(p nlp.Problem, it *nlp.Iterate) []float64 {
	b := p.VariableBounds()
	sets := p.VariableSets()
	q.comp = q.comp[:0]
	for _, i := range sets.LowerBounded {
		q.comp = append(q.comp, (it.X[i]-b.Lower[i])*it.Duals.LowerBounds[i])
	}
	for _, i := range sets.UpperBounded {
		q.comp = append(q.comp, (it.X[i]-b.Upper[i])*it.Duals.UpperBounds[i])
	}
	return q.comp
}

// EnterRestoration switches the subproblem onto an ℓ₁ feasibility
// view: μ is raised to the infeasibility scale and the elastic
// variables receive the closed-form interior values
//
//	p_j = (μ/ρ − c_j + √(c_j² + (μ/ρ)²)) / 2
//
// (mirrored with +c_j for n_j) together with the duals μ/p_j.
// ExitRestoration restores the previous μ.
func (q *IPM) EnterRestoration(p nlp.Problem, it *nlp.Iterate) error {
	e := p.Elastics()
	if e == nil {
		return errors.New("ipm: restoration view has no elastic variables")
	}
	model := p.Model()
	nm, mm := model.NumVariables(), model.NumConstraints()
	q.savedMu = q.mu
	q.resize(p)
	if err := model.Constraints(it.X[:nm], q.c[:mm]); err != nil {
		return err
	}
	for _, v := range q.c[:mm] {
		if a := math.Abs(v); a > q.mu {
			q.mu = a
		}
	}
	const rho = 1.0
	r := q.mu / rho
	for _, pair := range e.Positive {
		cj := q.c[pair.Constraint]
		pv := (r - cj + math.Hypot(cj, r)) / 2
		it.X[pair.Variable] = pv
		it.Duals.LowerBounds[pair.Variable] = q.mu / pv
	}
	for _, pair := range e.Negative {
		cj := q.c[pair.Constraint]
		nv := (r + cj + math.Hypot(cj, r)) / 2
		it.X[pair.Variable] = nv
		it.Duals.LowerBounds[pair.Variable] = q.mu / nv
	}
	it.Invalidate()
	return nil
}

// ExitRestoration returns to the optimality view: the saved μ comes
// back and the constraint multipliers are re-estimated by least
// squares, falling back to zeros beyond the norm cap.
func (q *IPM) ExitRestoration(p nlp.Problem, it *nlp.Iterate) error {
	q.mu = q.savedMu
	q.resize(p)
	return nlp.EstimateMultipliers(p, it, q.LeastSquareMaxNorm, it.Duals.Constraints[:q.m])
}
