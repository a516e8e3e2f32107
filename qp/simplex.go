// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// SimplexSolver solves the two-sided LP
//
//	𝚖𝚒𝚗 𝐠ᵀ𝐱  s.t.  cˡ ≤ 𝐀𝐱 ≤ cᵘ,  xˡ ≤ x ≤ xᵘ
//
// by conversion to standard form 𝚖𝚒𝚗 𝐜ᵀ𝐱′ s.t. 𝐀′𝐱′ = 𝐛, 𝐱′ ≥ 0:
// lower-bounded variables are shifted, upper-only variables reflected,
// free variables split, and each one-sided row gets a slack while
// ranged rows and ranged variables get an extra range row bounding the
// slack. The standard form runs through lp.Simplex.
//
// Duals are recovered afterwards by a least-squares solve of the
// stationarity condition 𝐠 = 𝐀ᵀ𝛌 + 𝐳 restricted to the columns of the
// tight rows, which also covers degenerate vertices where more rows
// are tight than there are variables (minimum-norm solution).
type SimplexSolver struct {
	// Tol is passed through to lp.Simplex; zero selects its default.
	Tol float64

	sol *Solution

	vcol   []int // first standard-form column per variable, -1 when fixed
	vsign  []float64
	vshift []float64
	vfree  []bool
	tmp    []float64
}

// NewSimplex returns an empty solver.
func NewSimplex() *SimplexSolver { return &SimplexSolver{} }

// SolveLP implements LPSolver. The Warmstart is ignored: the
// conversion is cheap relative to the simplex iterations.
func (s *SimplexSolver) SolveLP(p *Problem, _ *Warmstart) (*Solution, error) {
	if err := p.Check(false); err != nil {
		return nil, err
	}
	n, m := p.N, p.M
	if s.sol == nil || len(s.sol.X) != n || len(s.sol.ConstraintDuals) != m {
		s.sol = newSolution(n, m)
	}
	sol := s.sol
	sol.reset()

	// Classify the variables.
	s.vcol = append(s.vcol[:0], make([]int, n)...)
	s.vsign = append(s.vsign[:0], make([]float64, n)...)
	s.vshift = append(s.vshift[:0], make([]float64, n)...)
	s.vfree = append(s.vfree[:0], make([]bool, n)...)

	nv := 0
	rangedVars := 0
	for i := 0; i < n; i++ {
		xl, xu := p.VarLower[i], p.VarUpper[i]
		switch {
		case xl == xu:
			s.vcol[i] = -1
			s.vshift[i] = xl
		case isFiniteLower(xl):
			s.vcol[i], s.vsign[i], s.vshift[i] = nv, one, xl
			nv++
			if isFiniteUpper(xu) {
				rangedVars++
			}
		case isFiniteUpper(xu):
			s.vcol[i], s.vsign[i], s.vshift[i] = nv, -one, xu
			nv++
		default:
			s.vcol[i], s.vsign[i], s.vfree[i] = nv, one, true
			nv += 2
		}
	}

	// Count rows and slacks.
	rows, slacks := 0, 0
	for j := 0; j < m; j++ {
		cl, cu := p.ConLower[j], p.ConUpper[j]
		switch {
		case cl == cu:
			rows++
		case isFiniteLower(cl) && isFiniteUpper(cu):
			rows += 2
			slacks += 2
		case isFiniteLower(cl) || isFiniteUpper(cu):
			rows++
			slacks++
		}
	}
	rows += rangedVars
	slacks += rangedVars

	if rows == 0 {
		// No rows at all: the LP separates per variable.
		return s.solveSeparable(p)
	}

	cols := nv + slacks
	c := make([]float64, cols)
	b := make([]float64, rows)
	a := mat.NewDense(rows, cols, nil)

	for i := 0; i < n; i++ {
		if col := s.vcol[i]; col >= 0 {
			c[col] = p.G[i] * s.vsign[i]
			if s.vfree[i] {
				c[col+1] = -p.G[i]
			}
		}
	}

	if cap(s.tmp) < nv {
		s.tmp = make([]float64, nv)
	}
	row, slack := 0, nv
	setRow := func(rhs float64, slackSign float64) {
		a.SetRow(row, append(s.tmp[:nv:nv], make([]float64, slacks)...))
		if slackSign != zero {
			a.Set(row, slack, slackSign)
		}
		b[row] = rhs
		row++
	}

	for j := 0; j < m; j++ {
		cl, cu := p.ConLower[j], p.ConUpper[j]
		if !isFiniteLower(cl) && !isFiniteUpper(cu) {
			continue
		}
		dzero(s.tmp[:nv])
		shift := zero
		r := p.A.Row(j)
		for k, i := range r.Index {
			v := r.Value[k]
			shift += v * s.vshift[i]
			if col := s.vcol[i]; col >= 0 {
				s.tmp[col] += v * s.vsign[i]
				if s.vfree[i] {
					s.tmp[col+1] -= v
				}
			}
		}
		switch {
		case cl == cu:
			setRow(cl-shift, zero)
		case isFiniteLower(cl) && isFiniteUpper(cu):
			// 𝐀ⱼ𝐱′ - s = cl̃ with the range row s + t = cᵘ - cˡ.
			setRow(cl-shift, -one)
			dzero(s.tmp[:nv])
			a.SetRow(row, append(s.tmp[:nv:nv], make([]float64, slacks)...))
			a.Set(row, slack, one)
			a.Set(row, slack+1, one)
			b[row] = cu - cl
			row++
			slack += 2
		case isFiniteLower(cl):
			setRow(cl-shift, -one)
			slack++
		default:
			setRow(cu-shift, one)
			slack++
		}
	}
	for i := 0; i < n; i++ {
		xl, xu := p.VarLower[i], p.VarUpper[i]
		if s.vcol[i] < 0 || xl == xu || !isFiniteLower(xl) || !isFiniteUpper(xu) {
			continue
		}
		// Shifted variable with a range: x′ + s = xᵘ - xˡ.
		dzero(s.tmp[:nv])
		s.tmp[s.vcol[i]] = one
		setRow(xu-xl, one)
		slack++
	}

	_, xs, err := lp.Simplex(c, a, b, s.Tol, nil)
	switch {
	case err == nil:
	case errors.Is(err, lp.ErrInfeasible):
		sol.Status = Infeasible
		return sol, nil
	case errors.Is(err, lp.ErrUnbounded):
		sol.Status = Unbounded
		return sol, nil
	default:
		sol.Status = Err
		return sol, nil
	}

	// Recover the original variables.
	for i := 0; i < n; i++ {
		x := s.vshift[i]
		if col := s.vcol[i]; col >= 0 {
			x += s.vsign[i] * xs[col]
			if s.vfree[i] {
				x -= xs[col+1]
			}
		}
		if xl := p.VarLower[i]; x < xl {
			x = xl
		}
		if xu := p.VarUpper[i]; x > xu {
			x = xu
		}
		sol.X[i] = x
	}
	sol.Objective = ddot(n, p.G, 1, sol.X, 1)

	markActive(p, sol)
	s.recoverDuals(p, sol)
	return sol, nil
}

// solveSeparable handles the degenerate case without any general row
// or range row: each variable moves to the bound its cost points at.
func (s *SimplexSolver) solveSeparable(p *Problem) (*Solution, error) {
	sol := s.sol
	for i := 0; i < p.N; i++ {
		g := p.G[i]
		xl, xu := p.VarLower[i], p.VarUpper[i]
		switch {
		case g > zero:
			if !isFiniteLower(xl) {
				sol.Status = Unbounded
				return sol, nil
			}
			sol.X[i] = xl
		case g < zero:
			if !isFiniteUpper(xu) {
				sol.Status = Unbounded
				return sol, nil
			}
			sol.X[i] = xu
		default:
			switch {
			case isFiniteLower(xl):
				sol.X[i] = xl
			case isFiniteUpper(xu):
				sol.X[i] = xu
			}
		}
	}
	sol.Objective = ddot(p.N, p.G, 1, sol.X, 1)
	markActive(p, sol)
	s.recoverDuals(p, sol)
	return sol, nil
}

// recoverDuals solves 𝐠 ≅ 𝐀ᵀ𝛌 + 𝐳 in the least-squares sense over
// the tight rows recorded in sol.Active and distributes the result by
// the nlp sign convention.
func (s *SimplexSolver) recoverDuals(p *Problem, sol *Solution) {
	n := p.N
	act := &sol.Active

	type col struct {
		kind int8
		idx  int
	}
	var cols []col
	for _, j := range act.ConLower {
		cols = append(cols, col{rowConLower, j})
	}
	for _, j := range act.ConUpper {
		if !Contains(act.ConLower, j) { // ranged row tight on one side only
			cols = append(cols, col{rowConUpper, j})
		}
	}
	for _, i := range act.VarLower {
		cols = append(cols, col{rowVarLower, i})
	}
	for _, i := range act.VarUpper {
		if !Contains(act.VarLower, i) {
			cols = append(cols, col{rowVarUpper, i})
		}
	}
	if len(cols) == 0 {
		return
	}

	mtx := mat.NewDense(n, len(cols), nil)
	for k, c := range cols {
		switch c.kind {
		case rowConLower, rowConUpper:
			r := p.A.Row(c.idx)
			for e, i := range r.Index {
				mtx.Set(i, k, r.Value[e])
			}
		case rowVarLower, rowVarUpper:
			mtx.Set(c.idx, k, one)
		}
	}

	var y mat.VecDense
	if err := y.SolveVec(mtx, mat.NewVecDense(n, p.G)); err != nil {
		return
	}

	for k, c := range cols {
		v := y.AtVec(k)
		switch c.kind {
		case rowConLower, rowConUpper:
			sol.ConstraintDuals[c.idx] = v
		case rowVarLower:
			if v >= zero {
				sol.LowerDuals[c.idx] = v
			} else if p.VarLower[c.idx] == p.VarUpper[c.idx] {
				// fixed variable: the single column carries either sign
				sol.UpperDuals[c.idx] = v
			}
		case rowVarUpper:
			sol.UpperDuals[c.idx] = math.Min(v, zero)
		}
	}
}
