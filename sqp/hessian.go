// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/nlsolve/nlp"
)

// HessianModel supplies the curvature matrix of the quadratic local
// model. Refresh evaluates or updates the model at the iterate;
// Regularize reacts to a convexity rejection from the QP backend by
// shifting the matrix and reports whether another attempt is worth it.
type HessianModel interface {
	Initialize(n int)
	Refresh(p nlp.Problem, it *nlp.Iterate, h *nlp.SymMatrix) (changed bool, err error)
	Regularize(h *nlp.SymMatrix) bool
	Evaluations() int
}

const (
	// regularization schedule of the exact model
	tauFactor  = 10.0
	maxTauTries = 30

	// Powell damping threshold and the reset budget
	bfgsDamping = 0.2
	bfgsMaxDamped = 5
)

// ExactHessian evaluates ∇²ₓₓL through the problem view. When the QP
// backend rejects the matrix as not convex, Regularize adds τ𝐈 with τ
// growing geometrically until a positive definite shift is found or
// the budget runs out.
type ExactHessian struct {
	evals int
	tau   float64
	tries int
	base  nlp.SymMatrix
}

// NewExactHessian returns an empty exact model.
func NewExactHessian() *ExactHessian { return &ExactHessian{} }

func (e *ExactHessian) Initialize(n int) {
	e.evals = 0
	e.tau, e.tries = 0, 0
	e.base.Reset(n)
}

func (e *ExactHessian) Refresh(p nlp.Problem, it *nlp.Iterate, h *nlp.SymMatrix) (bool, error) {
	if err := p.Hessian(it, it.Duals.Constraints, h); err != nil {
		return false, err
	}
	e.evals++
	e.tau, e.tries = 0, 0
	e.base.CopyFrom(h)
	return true, nil
}

func (e *ExactHessian) Regularize(h *nlp.SymMatrix) bool {
	e.tries++
	if e.tries > maxTauTries {
		return false
	}
	if e.tau == 0 {
		// first shift scaled to the largest diagonal magnitude
		scale := 1.0
		for k, v := range e.base.V {
			if e.base.I[k] == e.base.J[k] {
				scale = math.Max(scale, math.Abs(v))
			}
		}
		e.tau = 1e-4 * scale
	} else {
		e.tau *= tauFactor
	}
	h.CopyFrom(&e.base)
	for i := 0; i < h.N; i++ {
		h.Append(i, i, e.tau)
	}
	return true
}

func (e *ExactHessian) Evaluations() int { return e.evals }

// DampedBFGS maintains a dense positive definite quasi-Newton matrix
// with Powell's damped update
//
//	𝐁 ← 𝐁 − 𝐁𝐬𝐬ᵀ𝐁/⟨𝐬,𝐁𝐬⟩ + 𝐫𝐫ᵀ/⟨𝐬,𝐫⟩,  𝐫 = θ𝐲 + (1−θ)𝐁𝐬
//
// where 𝐬 is the primal displacement and 𝐲 the Lagrangian gradient
// difference taken at the new multipliers. θ < 1 whenever the raw
// curvature ⟨𝐬,𝐲⟩ falls below a fifth of ⟨𝐬,𝐁𝐬⟩; after five damped or
// skipped updates in a row the matrix is reset to the identity.
type DampedBFGS struct {
	n int
	// lower triangle packed by columns, D on nothing: a plain dense
	// symmetric store in the same layout the QP factorization uses.
	b []float64

	prevX   []float64
	prevG   []float64 // σ∇f at the previous point, dense
	prevJac nlp.Matrix
	hasPrev bool
	damped  int

	g          nlp.SparseVector
	jac        nlp.Matrix
	lag, s, y  []float64
	bs         []float64
}

// NewDampedBFGS returns an empty quasi-Newton model.
func NewDampedBFGS() *DampedBFGS { return &DampedBFGS{} }

func (q *DampedBFGS) Initialize(n int) {
	q.n = n
	nl := n * (n + 1) / 2
	if cap(q.b) < nl {
		q.b = make([]float64, nl)
		q.prevX = make([]float64, n)
		q.prevG = make([]float64, n)
		q.lag = make([]float64, n)
		q.s = make([]float64, n)
		q.y = make([]float64, n)
		q.bs = make([]float64, n)
	}
	q.b = q.b[:nl]
	q.prevX = q.prevX[:n]
	q.prevG = q.prevG[:n]
	q.lag = q.lag[:n]
	q.s = q.s[:n]
	q.y = q.y[:n]
	q.bs = q.bs[:n]
	q.reset()
	q.hasPrev = false
}

func (q *DampedBFGS) reset() {
	for i := range q.b {
		q.b[i] = 0
	}
	for i := 0; i < q.n; i++ {
		q.b[pidx(q.n, i, i)] = 1
	}
	q.damped = 0
}

func pidx(n, i, j int) int { return j*n - j*(j-1)/2 + (i - j) }

// mulVec computes dst = 𝐁x from the packed lower triangle.
func (q *DampedBFGS) mulVec(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for j := 0; j < q.n; j++ {
		base := pidx(q.n, j, j)
		dst[j] += q.b[base] * x[j]
		for i := j + 1; i < q.n; i++ {
			v := q.b[base+(i-j)]
			dst[i] += v * x[j]
			dst[j] += v * x[i]
		}
	}
}

// lagGrad writes σ∇f − ∇cᵀλ into q.lag using the given gradient and
// Jacobian, dense.
func lagGrad(dst []float64, g []float64, jac *nlp.Matrix, lambda []float64) {
	copy(dst, g)
	jac.TransMulAddTo(dst, -1, lambda)
}

func (q *DampedBFGS) Refresh(p nlp.Problem, it *nlp.Iterate, h *nlp.SymMatrix) (bool, error) {
	if err := p.Gradient(it, &q.g); err != nil {
		return false, err
	}
	if err := p.Jacobian(it, &q.jac); err != nil {
		return false, err
	}
	gDense := q.s // reuse scratch for the dense gradient
	for i := range gDense {
		gDense[i] = 0
	}
	q.g.AddTo(gDense, 1)

	changed := false
	if q.hasPrev {
		lam := it.Duals.Constraints
		lagGrad(q.lag, gDense, &q.jac, lam)
		lagGrad(q.y, q.prevG, &q.prevJac, lam)
		floats.Sub(q.y, q.lag) // −(∇L_new − ∇L_prev)
		for i := range q.y {
			q.y[i] = -q.y[i]
		}
		copy(q.prevG, gDense) // gDense aliases q.s, save it before the update
		for i := 0; i < q.n; i++ {
			q.s[i] = it.X[i] - q.prevX[i]
		}
		changed = q.update()
	} else {
		copy(q.prevG, gDense)
	}

	copy(q.prevX, it.X[:q.n])
	q.prevJac.CopyFrom(&q.jac)
	q.hasPrev = true

	if changed || h.NNZ() == 0 {
		q.emit(h)
		return true, nil
	}
	return false, nil
}

// update applies the damped BFGS formula; returns whether 𝐁 changed.
func (q *DampedBFGS) update() bool {
	sNorm := floats.Norm(q.s, math.Inf(1))
	if sNorm == 0 {
		q.damped++
		return q.resetIfStale()
	}
	q.mulVec(q.bs, q.s)
	sBs := floats.Dot(q.s, q.bs)
	sy := floats.Dot(q.s, q.y)
	if sBs <= 0 {
		// numerically broken matrix, start over
		q.reset()
		return true
	}

	theta := 1.0
	if sy < bfgsDamping*sBs {
		theta = (1 - bfgsDamping) * sBs / (sBs - sy)
		q.damped++
	} else {
		q.damped = 0
	}
	// r = θy + (1−θ)Bs, so ⟨s,r⟩ ≥ 0.2⟨s,Bs⟩ > 0
	sr := 0.0
	for i := range q.y {
		q.y[i] = theta*q.y[i] + (1-theta)*q.bs[i]
		sr += q.s[i] * q.y[i]
	}
	if sr <= 0 {
		q.damped++
		return q.resetIfStale()
	}

	for j := 0; j < q.n; j++ {
		base := pidx(q.n, j, j)
		for i := j; i < q.n; i++ {
			q.b[base+(i-j)] += q.y[i]*q.y[j]/sr - q.bs[i]*q.bs[j]/sBs
		}
	}
	if q.damped >= bfgsMaxDamped {
		q.reset()
	}
	return true
}

func (q *DampedBFGS) resetIfStale() bool {
	if q.damped >= bfgsMaxDamped {
		q.reset()
		return true
	}
	return false
}

// emit copies the packed matrix into the sparse triple form.
func (q *DampedBFGS) emit(h *nlp.SymMatrix) {
	h.Reset(q.n)
	for j := 0; j < q.n; j++ {
		base := pidx(q.n, j, j)
		for i := j; i < q.n; i++ {
			if v := q.b[base+(i-j)]; v != 0 {
				h.Append(i, j, v)
			}
		}
	}
}

// Regularize is a no-op: the damped update keeps 𝐁 positive definite.
func (q *DampedBFGS) Regularize(h *nlp.SymMatrix) bool {
	// A rejection here means roundoff broke definiteness; resetting to
	// the identity is the only sound recovery.
	if q.damped == -1 {
		return false
	}
	q.reset()
	q.damped = -1 // one reset per solve
	q.emit(h)
	return true
}

func (q *DampedBFGS) Evaluations() int { return 0 }
