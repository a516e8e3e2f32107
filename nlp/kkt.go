// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Residuals are the scaled first-order optimality residuals
//
//	stationarity     ‖σ∇f − ∇cᵀλ − z‖∞ / s_d
//	feasibility      ‖max(cˡ−c, 0) + max(c−cᵘ, 0)‖∞
//	complementarity  ‖(x−b)·z − μ‖∞ / s_c
//
// where the scalings s_d, s_c ≥ 1 grow with the average multiplier
// magnitude so that huge multipliers do not stall termination.
type Residuals struct {
	Stationarity    float64
	Feasibility     float64
	Complementarity float64
}

// Max returns the largest of the three residuals.
func (r Residuals) Max() float64 {
	return math.Max(r.Stationarity, math.Max(r.Feasibility, r.Complementarity))
}

// residual scaling threshold
const sMax = 100.0

// KKTError computes Residuals without allocating per call.
type KKTError struct {
	g    SparseVector
	c    []float64
	jac  Matrix
	stat []float64
}

// NewKKTError sizes a workspace for n variables and m constraints.
func NewKKTError(n, m int) *KKTError {
	return &KKTError{c: make([]float64, m), stat: make([]float64, n)}
}

// Compute evaluates the residuals of the view p at it. A positive μ
// shifts the bound complementarity products, matching the barrier
// subproblem's optimality conditions.
func (k *KKTError) Compute(p Problem, it *Iterate, mu float64) (Residuals, error) {
	var res Residuals
	n, m := p.NumVariables(), p.NumConstraints()

	if err := p.Gradient(it, &k.g); err != nil {
		return res, err
	}
	if err := p.Constraints(it, k.c[:m]); err != nil {
		return res, err
	}
	if err := p.Jacobian(it, &k.jac); err != nil {
		return res, err
	}

	lam := it.Duals.Constraints[:m]
	zl := it.Duals.LowerBounds[:n]
	zu := it.Duals.UpperBounds[:n]

	stat := k.stat[:n]
	for i := range stat {
		stat[i] = -zl[i] - zu[i]
	}
	k.g.AddTo(stat, 1)
	k.jac.TransMulAddTo(stat, -1, lam)

	b := p.VariableBounds()
	sets := p.VariableSets()
	cb := p.ConstraintBounds()

	numBounded := len(sets.LowerBounded) + len(sets.UpperBounded)
	var lamNorm, zNorm float64
	for _, v := range lam {
		lamNorm += math.Abs(v)
	}
	for i := 0; i < n; i++ {
		zNorm += math.Abs(zl[i]) + math.Abs(zu[i])
	}
	sd, sc := 1.0, 1.0
	if m+numBounded > 0 {
		sd = math.Max(sMax, (lamNorm+zNorm)/float64(m+numBounded)) / sMax
	}
	if numBounded > 0 {
		sc = math.Max(sMax, zNorm/float64(numBounded)) / sMax
	}

	res.Stationarity = floats.Norm(stat, math.Inf(1)) / sd
	res.Feasibility = cb.MaxViolation(k.c[:m])

	var comp float64
	for _, i := range sets.LowerBounded {
		comp = math.Max(comp, math.Abs((it.X[i]-b.Lower[i])*zl[i]-mu))
	}
	for _, i := range sets.UpperBounded {
		comp = math.Max(comp, math.Abs((it.X[i]-b.Upper[i])*zu[i]-mu))
	}
	for _, j := range p.InequalityConstraints() {
		switch {
		case lam[j] > 0 && !math.IsInf(cb.Lower[j], -1):
			comp = math.Max(comp, math.Abs(lam[j]*(k.c[j]-cb.Lower[j])))
		case lam[j] < 0 && !math.IsInf(cb.Upper[j], 1):
			comp = math.Max(comp, math.Abs(lam[j]*(k.c[j]-cb.Upper[j])))
		}
	}
	res.Complementarity = comp / sc
	return res, nil
}

// LinearizedInfeasibility returns the 1-norm violation of the
// linearized constraints c + α·(jac·dx) against cb. work has length
// len(c).
func LinearizedInfeasibility(cb Bounds, c []float64, jac *Matrix, dx []float64, alpha float64, work []float64) float64 {
	for j := range c {
		work[j] = c[j] + alpha*jac.Rows[j].Dot(dx)
	}
	return cb.Violation(work[:len(c)])
}

// EstimateMultipliers solves the least-squares problem
//
//	min‖∇cᵀλ − (σ∇f − z)‖₂
//
// at it and stores λ into dst. When the system is singular or the
// solution exceeds maxNorm in the ∞-norm, dst is zeroed instead.
func EstimateMultipliers(p Problem, it *Iterate, maxNorm float64, dst []float64) error {
	n, m := p.NumVariables(), p.NumConstraints()
	for j := range dst[:m] {
		dst[j] = 0
	}
	if m == 0 {
		return nil
	}

	var g SparseVector
	var jac Matrix
	if err := p.Gradient(it, &g); err != nil {
		return err
	}
	if err := p.Jacobian(it, &jac); err != nil {
		return err
	}

	a := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		row := &jac.Rows[j]
		for k, i := range row.Index {
			a.Set(i, j, row.Value[k])
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, -it.Duals.LowerBounds[i]-it.Duals.UpperBounds[i])
	}
	for k, i := range g.Index {
		rhs.SetVec(i, rhs.AtVec(i)+g.Value[k])
	}

	var lam mat.VecDense
	if err := lam.SolveVec(a, rhs); err != nil {
		return nil // keep zeros on a rank-deficient Jacobian
	}
	for j := 0; j < m; j++ {
		if math.Abs(lam.AtVec(j)) > maxNorm {
			return nil
		}
	}
	for j := 0; j < m; j++ {
		dst[j] = lam.AtVec(j)
	}
	return nil
}
