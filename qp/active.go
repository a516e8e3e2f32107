// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"errors"
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

// ErrNotConvex is returned by SolveQP when the Hessian admits no
// LDLᵀ factorization with positive 𝐃. Callers regularize and retry.
var ErrNotConvex = errors.New("qp: hessian is not positive definite")

// row tags for mapping lsei inequality multipliers back to the
// two-sided form.
const (
	rowConLower int8 = iota
	rowConUpper
	rowVarLower
	rowVarUpper
)

// ActiveSetSolver solves a strictly convex QP by reduction to least
// squares: factor 𝐇 = 𝐋𝐃𝐋ᵀ so that with 𝐄 = 𝐃¹ᐟ²𝐋ᵀ and
// 𝐟 = -𝐃⁻¹ᐟ²𝐋⁻¹𝐠
//
//	½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 = ½‖ 𝐄𝐱 - 𝐟 ‖₂² - ½‖ 𝐟 ‖₂²
//
// and hand 𝚖𝚒𝚗‖ 𝐄𝐱 - 𝐟 ‖₂ with the converted constraints to lsei.
// The two-sided rows map as
//   - cˡⱼ = cᵘⱼ          →  𝐂ⱼ = 𝐀ⱼ,  𝐝ⱼ = cˡⱼ
//   - cˡⱼ finite         →  𝐆 row  𝐀ⱼ𝐱 ≥ cˡⱼ
//   - cᵘⱼ finite         →  𝐆 row -𝐀ⱼ𝐱 ≥ -cᵘⱼ
//   - xˡᵢ, xᵘᵢ finite    →  𝐆 rows ±𝐈ᵢ𝐱 ≥ ±bound
//
// The lsei multipliers translate directly into the nlp sign
// convention: an active lower row contributes +𝛌̂ and an active upper
// row -𝛌̂, so constraint duals are free, lower-bound duals ≥ 0 and
// upper-bound duals ≤ 0.
//
// A solver is reusable: templates for 𝐄, 𝐟, 𝐂 and 𝐆 survive between
// calls and are rebuilt only for the parts the Warmstart marks
// changed. X0 is ignored; the least-squares chain needs no seed.
type ActiveSetSolver struct {
	// MaxIter caps the nnls iterations, 3×(problem size) when zero.
	MaxIter int

	n, m int

	ldl  []float64 // 𝐋𝐃𝐋ᵀ of 𝐇, lower triangle packed by columns with 𝐃 on the diagonal
	et   []float64 // 𝐄, n × n column-major
	ft   []float64 // 𝐟
	fsq  float64   // ‖ 𝐟 ‖₂²
	ct   []float64 // 𝐂, mc × n column-major
	dt   []float64 // 𝐝
	gt   []float64 // 𝐆, mg × n column-major
	ht   []float64 // 𝐡
	eqs  []int     // constraint index per 𝐂 row
	kind []int8    // row tag per 𝐆 row
	ridx []int     // constraint or variable index per 𝐆 row

	// working copies destroyed by each lsei call
	ec, fc, cc, dc, gc, hc []float64
	w                      []float64
	jw                     []int

	sol *Solution
}

// NewActiveSet returns an empty solver.
func NewActiveSet() *ActiveSetSolver { return &ActiveSetSolver{} }

// SolveQP implements Solver.
func (s *ActiveSetSolver) SolveQP(p *Problem, ws *Warmstart) (*Solution, error) {
	if err := p.Check(true); err != nil {
		return nil, err
	}
	if ws == nil || p.N != s.n || p.M != s.m {
		ws = All()
	}
	if s.sol == nil || p.N != s.n || p.M != s.m {
		s.n, s.m = p.N, p.M
		s.sol = newSolution(p.N, p.M)
	}

	if ws.Hessian {
		if !s.factorize(p.H) {
			return nil, ErrNotConvex
		}
		s.recoverE()
	}
	if ws.Hessian || ws.Objective {
		s.recoverF(p.G)
	}
	if ws.Constraints || ws.ConstraintBounds || ws.VariableBounds {
		s.convertRows(p)
	}

	return s.solve(p)
}

// factorize computes 𝐇 = 𝐋𝐃𝐋ᵀ in packed column-major lower-triangle
// storage, unit 𝐋 with 𝐃 on the diagonal. Returns false when some
// pivot is not safely positive.
func (s *ActiveSetSolver) factorize(h *nlp.SymMatrix) bool {
	n := s.n
	nl := n * (n + 1) / 2
	if cap(s.ldl) < nl {
		s.ldl = make([]float64, nl)
	}
	l := s.ldl[:nl]
	dzero(l)
	h.AddToPacked(l, one)

	for j := 0; j < n; j++ {
		bj := j*n - j*(j-1)/2
		for k := 0; k < j; k++ {
			bk := k*n - k*(k-1)/2
			ljk := l[bk+(j-k)]
			if ljk == zero {
				continue
			}
			w := ljk * l[bk] // 𝐋ⱼₖ𝐃ₖ
			for i := j; i < n; i++ {
				l[bj+(i-j)] -= w * l[bk+(i-k)]
			}
		}
		d := l[bj]
		if d <= eps || math.IsNaN(d) {
			return false
		}
		inv := one / d
		for i := j + 1; i < n; i++ {
			l[bj+(i-j)] *= inv
		}
	}
	return true
}

// recoverE builds the upper triangular 𝐄 = 𝐃¹ᐟ²𝐋ᵀ from the packed
// factorization.
func (s *ActiveSetSolver) recoverE() {
	n := s.n
	if cap(s.et) < n*n {
		s.et = make([]float64, n*n)
	}
	e := s.et[:n*n]
	dzero(e)
	for i := 0; i < n; i++ {
		bi := i*n - i*(i-1)/2
		diag := math.Sqrt(s.ldl[bi])
		e[i+n*i] = diag
		for j := i + 1; j < n; j++ {
			e[i+n*j] = diag * s.ldl[bi+(j-i)] // 𝐄ᵢⱼ = 𝐃¹ᐟ²ᵢᵢ𝐋ⱼᵢ
		}
	}
}

// recoverF builds 𝐟 = -𝐃⁻¹ᐟ²𝐋⁻¹𝐠 by forward substitution against the
// columns of 𝐄 and records ‖ 𝐟 ‖₂².
func (s *ActiveSetSolver) recoverF(g []float64) {
	n := s.n
	if cap(s.ft) < n {
		s.ft = make([]float64, n)
	}
	f := s.ft[:n]
	for j := 0; j < n; j++ {
		// 𝐋ⱼⱼ = 1  →  (𝐋⁻¹𝐠)ⱼ = 𝐠ⱼ - ∑ᵢ𝐋ⱼᵢ(𝐋⁻¹𝐠)ᵢ
		f[j] = (g[j] - ddot(j, s.et[n*j:], 1, f, 1)) / s.et[j+n*j]
	}
	dscal(n, -one, f, 1)
	s.fsq = ddot(n, f, 1, f, 1)
}

// convertRows splits the two-sided constraints and bounds into the
// equality block (𝐂,𝐝) and inequality block (𝐆,𝐡) templates.
func (s *ActiveSetSolver) convertRows(p *Problem) {
	n, m := s.n, s.m

	s.eqs = s.eqs[:0]
	s.kind = s.kind[:0]
	s.ridx = s.ridx[:0]
	for j := 0; j < m; j++ {
		cl, cu := p.ConLower[j], p.ConUpper[j]
		if cl == cu {
			s.eqs = append(s.eqs, j)
			continue
		}
		if isFiniteLower(cl) {
			s.kind = append(s.kind, rowConLower)
			s.ridx = append(s.ridx, j)
		}
		if isFiniteUpper(cu) {
			s.kind = append(s.kind, rowConUpper)
			s.ridx = append(s.ridx, j)
		}
	}
	for i := 0; i < n; i++ {
		if isFiniteLower(p.VarLower[i]) {
			s.kind = append(s.kind, rowVarLower)
			s.ridx = append(s.ridx, i)
		}
		if isFiniteUpper(p.VarUpper[i]) {
			s.kind = append(s.kind, rowVarUpper)
			s.ridx = append(s.ridx, i)
		}
	}

	mc, mg := len(s.eqs), len(s.kind)
	lc, lg := max(mc, 1), max(mg, 1)
	if cap(s.ct) < lc*n {
		s.ct = make([]float64, lc*n)
	}
	if cap(s.dt) < lc {
		s.dt = make([]float64, lc)
	}
	if cap(s.gt) < lg*n {
		s.gt = make([]float64, lg*n)
	}
	if cap(s.ht) < lg {
		s.ht = make([]float64, lg)
	}
	c, d := s.ct[:lc*n], s.dt[:lc]
	g, h := s.gt[:lg*n], s.ht[:lg]
	dzero(c)
	dzero(g)

	for r, j := range s.eqs {
		row := p.A.Row(j)
		for k, col := range row.Index {
			c[r+lc*col] = row.Value[k]
		}
		d[r] = p.ConLower[j]
	}
	for r, kind := range s.kind {
		j := s.ridx[r]
		switch kind {
		case rowConLower:
			row := p.A.Row(j)
			for k, col := range row.Index {
				g[r+lg*col] = row.Value[k]
			}
			h[r] = p.ConLower[j]
		case rowConUpper:
			row := p.A.Row(j)
			for k, col := range row.Index {
				g[r+lg*col] = -row.Value[k]
			}
			h[r] = -p.ConUpper[j]
		case rowVarLower:
			g[r+lg*j] = one
			h[r] = p.VarLower[j]
		case rowVarUpper:
			g[r+lg*j] = -one
			h[r] = -p.VarUpper[j]
		}
	}
}

// solve copies the templates into scratch, runs lsei and translates
// the result.
func (s *ActiveSetSolver) solve(p *Problem) (*Solution, error) {
	n := s.n
	mc, mg := len(s.eqs), len(s.kind)
	lc, lg := max(mc, 1), max(mg, 1)

	if mc > n {
		// More independent equalities than variables cannot hold.
		s.sol.reset()
		s.sol.Status = Infeasible
		return s.sol, nil
	}

	l := n - mc
	nw := 2*mc + n + (n+mg)*l + (l+1)*(mg+2) + 2*mg
	nj := max(max(mg, min(n, l)), 1)
	s.ec = grow(s.ec, n*n)
	s.fc = grow(s.fc, n)
	s.cc = grow(s.cc, lc*n)
	s.dc = grow(s.dc, lc)
	s.gc = grow(s.gc, lg*n)
	s.hc = grow(s.hc, lg)
	s.w = grow(s.w, nw)
	if cap(s.jw) < nj {
		s.jw = make([]int, nj)
	}

	copy(s.ec, s.et[:n*n])
	copy(s.fc, s.ft[:n])
	copy(s.cc, s.ct[:lc*n])
	copy(s.dc, s.dt[:lc])
	copy(s.gc, s.gt[:lg*n])
	copy(s.hc, s.ht[:lg])

	sol := s.sol
	sol.reset()

	norm, mode := lsei(s.cc, s.dc, s.ec, s.fc, s.gc, s.hc,
		lc, mc, n, n, lg, mg, n, sol.X, s.w, s.jw[:nj], s.MaxIter)

	switch mode {
	case lsSolved:
	case lsIncompatible:
		sol.Status = Infeasible
		return sol, nil
	case lsBadArgument:
		return nil, errors.New("qp: malformed least-squares reduction")
	default:
		sol.Status = Err
		return sol, nil
	}

	// ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 = ½‖ 𝐄𝐱 - 𝐟 ‖₂² - ½‖ 𝐟 ‖₂²
	sol.Objective = (norm*norm - s.fsq) / two

	// Clamp round-off violations of the simple bounds.
	for i := 0; i < n; i++ {
		if xl := p.VarLower[i]; sol.X[i] < xl {
			sol.X[i] = xl
		}
		if xu := p.VarUpper[i]; sol.X[i] > xu {
			sol.X[i] = xu
		}
	}

	// Translate the multipliers 𝛍 = w[:mc], 𝛌̂ = w[mc:mc+mg].
	for r, j := range s.eqs {
		sol.ConstraintDuals[j] = s.w[r]
	}
	for r, kind := range s.kind {
		lam := s.w[mc+r]
		j := s.ridx[r]
		switch kind {
		case rowConLower:
			sol.ConstraintDuals[j] += lam
		case rowConUpper:
			sol.ConstraintDuals[j] -= lam
		case rowVarLower:
			sol.LowerDuals[j] = lam
		case rowVarUpper:
			sol.UpperDuals[j] = -lam
		}
	}

	markActive(p, sol)
	return sol, nil
}

// markActive records the rows satisfied to within a residual
// tolerance, so weakly active rows (zero multiplier) are reported too.
func markActive(p *Problem, sol *Solution) {
	act := &sol.Active
	for j := 0; j < p.M; j++ {
		v := p.A.Row(j).Dot(sol.X)
		cl, cu := p.ConLower[j], p.ConUpper[j]
		if isFiniteLower(cl) && v-cl <= atBoundTol(cl) {
			act.ConLower = append(act.ConLower, j)
		}
		if cl != cu && isFiniteUpper(cu) && cu-v <= atBoundTol(cu) {
			act.ConUpper = append(act.ConUpper, j)
		}
	}
	for i := 0; i < p.N; i++ {
		xl, xu := p.VarLower[i], p.VarUpper[i]
		if isFiniteLower(xl) && sol.X[i]-xl <= atBoundTol(xl) {
			act.VarLower = append(act.VarLower, i)
		}
		if xl != xu && isFiniteUpper(xu) && xu-sol.X[i] <= atBoundTol(xu) {
			act.VarUpper = append(act.VarUpper, i)
		}
	}
}

func atBoundTol(bound float64) float64 {
	return sqrtEps * (one + math.Abs(bound))
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
