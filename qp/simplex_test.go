// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"math"
	"testing"
)

func TestSimplexDegenerateVertex(t *testing.T) {
	// 𝚖𝚒𝚗 -x-y  s.t.  x+y ≤ 2, x ≤ 1, y ≤ 1, x,y ≥ 0.
	// Three rows are tight at the unique optimum (1,1); the duals are
	// the minimum-norm stationarity solution.
	p := &Problem{
		N: 2, M: 3,
		VarLower: []float64{0, 0},
		VarUpper: []float64{math.Inf(1), math.Inf(1)},
		ConLower: []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
		ConUpper: []float64{2, 1, 1},
		G:        []float64{-1, -1},
		A:        denseRows(2, []float64{1, 1}, []float64{1, 0}, []float64{0, 1}),
	}

	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	switch {
	case sol.Status != Optimal:
		t.Fatalf("status = %v", sol.Status)
	case !almostEqual(sol.X, []float64{1, 1}, 1e-10):
		t.Fatalf("x = %v", sol.X)
	case !almostEqual(sol.Objective, -2.0, 1e-10):
		t.Fatalf("objective = %v", sol.Objective)
	case len(sol.Active.ConUpper) != 3:
		t.Fatalf("active = %+v", sol.Active)
	case !almostEqual(sol.ConstraintDuals, []float64{-2.0 / 3, -1.0 / 3, -1.0 / 3}, 1e-10):
		t.Fatalf("duals = %v", sol.ConstraintDuals)
	}
	for _, lam := range sol.ConstraintDuals {
		if lam > 0 {
			t.Fatalf("upper-active dual must be ≤ 0: %v", sol.ConstraintDuals)
		}
	}
}

func TestSimplexRangedRow(t *testing.T) {
	// 𝚖𝚒𝚗 x  s.t.  1 ≤ x ≤ 2 with x free: exercises the free split
	// and the range row on the slack.
	p := &Problem{
		N: 1, M: 1,
		VarLower: []float64{math.Inf(-1)},
		VarUpper: []float64{math.Inf(1)},
		ConLower: []float64{1},
		ConUpper: []float64{2},
		G:        []float64{1},
		A:        denseRows(1, []float64{1}),
	}

	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	switch {
	case sol.Status != Optimal:
		t.Fatalf("status = %v", sol.Status)
	case !almostEqual(sol.X, []float64{1}, 1e-10):
		t.Fatalf("x = %v", sol.X)
	case !almostEqual(sol.ConstraintDuals, []float64{1}, 1e-10):
		t.Fatalf("duals = %v", sol.ConstraintDuals)
	case len(sol.Active.ConLower) != 1:
		t.Fatalf("active = %+v", sol.Active)
	}
}

func TestSimplexEqualityRow(t *testing.T) {
	// 𝚖𝚒𝚗 x + 2y  s.t.  x + y = 1, x,y ≥ 0.
	p := &Problem{
		N: 2, M: 1,
		VarLower: []float64{0, 0},
		VarUpper: []float64{math.Inf(1), math.Inf(1)},
		ConLower: []float64{1},
		ConUpper: []float64{1},
		G:        []float64{1, 2},
		A:        denseRows(2, []float64{1, 1}),
	}

	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	switch {
	case sol.Status != Optimal:
		t.Fatalf("status = %v", sol.Status)
	case !almostEqual(sol.X, []float64{1, 0}, 1e-10):
		t.Fatalf("x = %v", sol.X)
	case !almostEqual(sol.Objective, 1.0, 1e-10):
		t.Fatalf("objective = %v", sol.Objective)
	case !almostEqual(sol.ConstraintDuals, []float64{1}, 1e-10):
		t.Fatalf("duals = %v", sol.ConstraintDuals)
	case !almostEqual(sol.LowerDuals, []float64{0, 1}, 1e-10):
		t.Fatalf("lower duals = %v", sol.LowerDuals)
	}
}

func TestSimplexBoundsOnly(t *testing.T) {
	// No general rows: each variable moves to the bound its cost
	// points at.
	p := &Problem{
		N: 2, M: 0,
		VarLower: []float64{-1, -1},
		VarUpper: []float64{2, 2},
		ConLower: []float64{},
		ConUpper: []float64{},
		G:        []float64{2, -3},
		A:        denseRows(2),
	}

	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	switch {
	case sol.Status != Optimal:
		t.Fatalf("status = %v", sol.Status)
	case !almostEqual(sol.X, []float64{-1, 2}, 1e-12):
		t.Fatalf("x = %v", sol.X)
	case !almostEqual(sol.Objective, -8.0, 1e-12):
		t.Fatalf("objective = %v", sol.Objective)
	case !almostEqual(sol.LowerDuals, []float64{2, 0}, 1e-12):
		t.Fatalf("lower duals = %v", sol.LowerDuals)
	case !almostEqual(sol.UpperDuals, []float64{0, -3}, 1e-12):
		t.Fatalf("upper duals = %v", sol.UpperDuals)
	}
}

func TestSimplexInfeasible(t *testing.T) {
	// x ≥ 1 and x ≤ 0 as general rows.
	p := &Problem{
		N: 1, M: 2,
		VarLower: []float64{math.Inf(-1)},
		VarUpper: []float64{math.Inf(1)},
		ConLower: []float64{1, math.Inf(-1)},
		ConUpper: []float64{math.Inf(1), 0},
		G:        []float64{1},
		A:        denseRows(1, []float64{1}, []float64{1}),
	}

	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sol.Status != Infeasible {
		t.Fatalf("status = %v, want infeasible", sol.Status)
	}
}

func TestSimplexUnbounded(t *testing.T) {
	// Separable case first, then a general-row case.
	p := &Problem{
		N: 1, M: 0,
		VarLower: []float64{0},
		VarUpper: []float64{math.Inf(1)},
		ConLower: []float64{},
		ConUpper: []float64{},
		G:        []float64{-1},
		A:        denseRows(1),
	}
	sol, err := NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sol.Status != Unbounded {
		t.Fatalf("status = %v, want unbounded", sol.Status)
	}

	p = &Problem{
		N: 1, M: 1,
		VarLower: []float64{math.Inf(-1)},
		VarUpper: []float64{math.Inf(1)},
		ConLower: []float64{0},
		ConUpper: []float64{math.Inf(1)},
		G:        []float64{-1},
		A:        denseRows(1, []float64{1}),
	}
	sol, err = NewSimplex().SolveLP(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sol.Status != Unbounded {
		t.Fatalf("status = %v, want unbounded", sol.Status)
	}
}
