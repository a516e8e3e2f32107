// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qp solves the dense quadratic and linear programs that arise
// as local models inside the nonlinear methods:
//
//	min ½ xᵀ𝐇x + 𝐠ᵀx  s.t.  cˡ ≤ 𝐀x ≤ cᵘ,  xˡ ≤ x ≤ xᵘ
//
// with ±Inf for absent bounds and cˡⱼ = cᵘⱼ marking equalities.
// The QP path reduces the program to a least-squares chain
// (LSEI → LSI → LDP → NNLS) after an LDLᵀ factorization of 𝐇; the LP
// path converts to standard form and runs a simplex method.
// Both return multipliers split by constraint kind and the active set,
// which the nonlinear layers need for warm starts and convergence
// tests.
package qp

import (
	"fmt"
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

var sqrtEps = math.Sqrt(eps)

// Status reports the outcome of a subproblem solve.
type Status int8

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	Err
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case Err:
		return "error"
	}
	return "unknown"
}

// Warmstart tells a solver which parts of the problem changed since
// the previous call on the same receiver, so unchanged factorizations
// and conversions can be reused.
type Warmstart struct {
	Objective        bool
	Constraints      bool
	VariableBounds   bool
	ConstraintBounds bool
	Hessian          bool
}

// All marks every part changed, forcing a cold solve.
func All() *Warmstart {
	return &Warmstart{Objective: true, Constraints: true, VariableBounds: true, ConstraintBounds: true, Hessian: true}
}

// Problem is a dense QP or LP in two-sided form. H is nil for an LP.
// X0 optionally seeds the solve; solvers may ignore it.
type Problem struct {
	N, M int

	VarLower, VarUpper []float64
	ConLower, ConUpper []float64

	G []float64
	H *nlp.SymMatrix
	A *nlp.Matrix

	X0 []float64
}

// Check validates the problem dimensions.
func (p *Problem) Check(quadratic bool) error {
	switch {
	case p.N <= 0:
		return fmt.Errorf("qp: problem has %d variables", p.N)
	case p.M < 0:
		return fmt.Errorf("qp: problem has %d constraints", p.M)
	case len(p.G) != p.N:
		return fmt.Errorf("qp: gradient length %d != %d", len(p.G), p.N)
	case len(p.VarLower) != p.N || len(p.VarUpper) != p.N:
		return fmt.Errorf("qp: variable bound length != %d", p.N)
	case len(p.ConLower) != p.M || len(p.ConUpper) != p.M:
		return fmt.Errorf("qp: constraint bound length != %d", p.M)
	case p.M > 0 && (p.A == nil || len(p.A.Rows) != p.M):
		return fmt.Errorf("qp: constraint matrix has wrong row count")
	case quadratic && (p.H == nil || p.H.N != p.N):
		return fmt.Errorf("qp: hessian is missing or has wrong order")
	case !quadratic && p.H != nil:
		return fmt.Errorf("qp: linear problem carries a hessian")
	}
	return nil
}

// ActiveSet lists the indices at a bound in the solution, split by
// kind and side.
type ActiveSet struct {
	VarLower []int
	VarUpper []int
	ConLower []int
	ConUpper []int
}

// Reset truncates all four lists.
func (a *ActiveSet) Reset() {
	a.VarLower = a.VarLower[:0]
	a.VarUpper = a.VarUpper[:0]
	a.ConLower = a.ConLower[:0]
	a.ConUpper = a.ConUpper[:0]
}

// Contains reports whether set holds idx. The sets are small enough
// that a scan beats keeping a parallel bitmap in sync.
func Contains(set []int, idx int) bool {
	for _, i := range set {
		if i == idx {
			return true
		}
	}
	return false
}

// Solution is the result of a successful solve. The dual sign
// convention matches nlp: ConstraintDuals are free, LowerDuals ≥ 0 and
// UpperDuals ≤ 0.
type Solution struct {
	Status Status

	X         []float64
	Objective float64

	ConstraintDuals []float64
	LowerDuals      []float64
	UpperDuals      []float64

	Active ActiveSet
}

func newSolution(n, m int) *Solution {
	return &Solution{
		X:               make([]float64, n),
		ConstraintDuals: make([]float64, m),
		LowerDuals:      make([]float64, n),
		UpperDuals:      make([]float64, n),
	}
}

func (s *Solution) reset() {
	s.Status = Optimal
	s.Objective = 0
	dzero(s.X)
	dzero(s.ConstraintDuals)
	dzero(s.LowerDuals)
	dzero(s.UpperDuals)
	s.Active.Reset()
}

// Solver solves quadratic programs.
type Solver interface {
	// SolveQP solves p, reusing previous state as permitted by ws.
	// The returned Solution is owned by the solver and valid until the
	// next call.
	SolveQP(p *Problem, ws *Warmstart) (*Solution, error)
}

// LPSolver solves linear programs.
type LPSolver interface {
	SolveLP(p *Problem, ws *Warmstart) (*Solution, error)
}

func isFiniteLower(v float64) bool { return !math.IsInf(v, -1) }
func isFiniteUpper(v float64) bool { return !math.IsInf(v, 1) }
