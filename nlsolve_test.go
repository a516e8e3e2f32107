// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

import (
	"math"
	"reflect"
	"testing"

	"github.com/curioloop/nlsolve/nlp"
)

// hs071 is the classic Hock-Schittkowski problem 71:
//
//	𝚖𝚒𝚗 x₁x₄(x₁+x₂+x₃) + x₃
//	s.t. x₁x₂x₃x₄ ≥ 25,  ‖x‖² = 40,  1 ≤ x ≤ 5
func hs071() *nlp.FuncModel {
	return &nlp.FuncModel{
		N: 4, M: 2,
		Lower:           []float64{1, 1, 1, 1},
		Upper:           []float64{5, 5, 5, 5},
		ConstraintLower: []float64{25, 40},
		ConstraintUpper: []float64{math.Inf(1), 40},
		Func: func(x []float64) float64 {
			return x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2]
		},
		Grad: func(x, g []float64) {
			g[0] = x[3] * (2*x[0] + x[1] + x[2])
			g[1] = x[0] * x[3]
			g[2] = x[0]*x[3] + 1
			g[3] = x[0] * (x[0] + x[1] + x[2])
		},
		Cons: func(x, c []float64) {
			c[0] = x[0] * x[1] * x[2] * x[3]
			c[1] = x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3]
		},
		Jac: func(x, jac []float64) {
			jac[0], jac[1], jac[2], jac[3] = x[1]*x[2]*x[3], x[0]*x[2]*x[3], x[0]*x[1]*x[3], x[0]*x[1]*x[2]
			jac[4], jac[5], jac[6], jac[7] = 2*x[0], 2*x[1], 2*x[2], 2*x[3]
		},
		Hess: func(x []float64, sigma float64, lambda, h []float64) {
			add := func(i, j int, v float64) {
				h[i*4+j] += v
				if i != j {
					h[j*4+i] += v
				}
			}
			add(0, 0, sigma*2*x[3])
			add(1, 0, sigma*x[3])
			add(2, 0, sigma*x[3])
			add(3, 0, sigma*(2*x[0]+x[1]+x[2]))
			add(3, 1, sigma*x[0])
			add(3, 2, sigma*x[0])
			l := -lambda[0]
			add(1, 0, l*x[2]*x[3])
			add(2, 0, l*x[1]*x[3])
			add(3, 0, l*x[1]*x[2])
			add(2, 1, l*x[0]*x[3])
			add(3, 1, l*x[0]*x[2])
			add(3, 2, l*x[0]*x[1])
			for i := 0; i < 4; i++ {
				add(i, i, -2*lambda[1])
			}
		},
	}
}

var (
	hs071X0 = []float64{1, 5, 5, 1}
	hs071X  = []float64{1, 4.7429994, 3.8211503, 1.3794082}
	hs071F  = 17.0140173
)

func rosenbrock() *nlp.FuncModel {
	return &nlp.FuncModel{
		N: 2,
		Func: func(x []float64) float64 {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			return a*a + 100*b*b
		},
		Grad: func(x, g []float64) {
			b := x[1] - x[0]*x[0]
			g[0] = -2*(1-x[0]) - 400*x[0]*b
			g[1] = 200 * b
		},
		Hess: func(x []float64, sigma float64, lambda, h []float64) {
			h[0] = sigma * (2 + 1200*x[0]*x[0] - 400*x[1])
			h[1] = sigma * -400 * x[0]
			h[2] = h[1]
			h[3] = sigma * 200
		},
	}
}

func fit(t *testing.T, model nlp.Model, opts Options, x0 []float64) *Result {
	t.Helper()
	if opts.MaxIterations == 0 {
		opts.MaxIterations = 200
	}
	s, err := (&Problem{Model: model, Opts: opts}).New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return s.Fit(x0, s.Init())
}

func TestSQPMeritHS071(t *testing.T) {
	res := fit(t, hs071(), Options{
		Subproblem:    "QP",
		Globalization: "merit",
	}, hs071X0)
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !res.OK:
		t.Fatal("not converged")
	case !almostEqual(res.X, hs071X, 1e-4):
		t.Fatalf("x = %v", res.X)
	case !almostEqual(res.F, hs071F, 1e-4):
		t.Fatalf("f = %v", res.F)
	case res.Residuals.Max() > 1e-6:
		t.Fatalf("residuals = %+v", res.Residuals)
	}
}

func TestIPMFilterHS071(t *testing.T) {
	res := fit(t, hs071(), Options{
		Subproblem:    "primal_dual_interior_point",
		Globalization: "filter",
	}, hs071X0)
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !almostEqual(res.X, hs071X, 1e-4):
		t.Fatalf("x = %v", res.X)
	case !almostEqual(res.F, hs071F, 1e-4):
		t.Fatalf("f = %v", res.F)
	}
}

func TestSl1QPFunnelEquality(t *testing.T) {
	// 𝚖𝚒𝚗 ½‖x‖²  s.t.  x₁ + x₂ = 1, started far outside the constraint.
	model := &nlp.FuncModel{
		N: 2, M: 1,
		ConstraintLower: []float64{1}, ConstraintUpper: []float64{1},
		Func: func(x []float64) float64 { return (x[0]*x[0] + x[1]*x[1]) / 2 },
		Grad: func(x, g []float64) { g[0], g[1] = x[0], x[1] },
		Cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		Jac:  func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
		Hess: func(x []float64, sigma float64, lambda, h []float64) {
			h[0], h[3] = sigma, sigma
		},
	}
	res := fit(t, model, Options{
		Subproblem:           "QP",
		Globalization:        "funnel",
		ConstraintRelaxation: "l1_relaxation",
	}, []float64{2, -3})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !almostEqual(res.X, []float64{0.5, 0.5}, 1e-6):
		t.Fatalf("x = %v", res.X)
	case !almostEqual(res.Duals.Constraints[0], 0.5, 1e-6):
		t.Fatalf("lambda = %v", res.Duals.Constraints)
	}
}

func TestSQPRosenbrock(t *testing.T) {
	res := fit(t, rosenbrock(), Options{Subproblem: "QP"}, []float64{-1.2, 1})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !almostEqual(res.X, []float64{1, 1}, 1e-5):
		t.Fatalf("x = %v", res.X)
	case res.NumIter > 60:
		t.Fatalf("iterations = %d", res.NumIter)
	}
}

func TestIPMPureBounds(t *testing.T) {
	// 𝚖𝚒𝚗 ½x² on 1 ≤ x ≤ 2: the lower bound is active at the solution.
	model := &nlp.FuncModel{
		N:     1,
		Lower: []float64{1}, Upper: []float64{2},
		Func: func(x []float64) float64 { return x[0] * x[0] / 2 },
		Grad: func(x, g []float64) { g[0] = x[0] },
		Hess: func(x []float64, sigma float64, lambda, h []float64) { h[0] = sigma },
	}
	res := fit(t, model, Options{
		Subproblem: "primal_dual_interior_point",
	}, []float64{1.5})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !almostEqual(res.X[0], 1, 1e-4):
		t.Fatalf("x = %v", res.X)
	case res.Duals.LowerBounds[0] <= 0.5:
		t.Fatalf("lower dual = %v", res.Duals.LowerBounds[0])
	}
}

func TestSLPDegenerateVertex(t *testing.T) {
	// 𝚖𝚒𝚗 x + y  s.t.  x + y ≥ 1, x,y ≥ 0: a whole face is optimal.
	model := &nlp.FuncModel{
		N: 2, M: 1,
		Lower:           []float64{0, 0},
		ConstraintLower: []float64{1}, ConstraintUpper: []float64{math.Inf(1)},
		Func: func(x []float64) float64 { return x[0] + x[1] },
		Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		Cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		Jac:  func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
		Hess: func(x []float64, sigma float64, lambda, h []float64) {},
	}
	res := fit(t, model, Options{Subproblem: "LP"}, []float64{3, 2})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case !almostEqual(res.F, 1, 1e-6):
		t.Fatalf("f = %v", res.F)
	case res.X[0] < -1e-9 || res.X[1] < -1e-9:
		t.Fatalf("x = %v", res.X)
	}
}

func TestInfeasibleStationaryPoint(t *testing.T) {
	// x ≥ 1 and x ≤ 0 cannot hold together; restoration must converge
	// to a stationary point of the violation and report it.
	model := &nlp.FuncModel{
		N: 1, M: 2,
		ConstraintLower: []float64{1, math.Inf(-1)},
		ConstraintUpper: []float64{math.Inf(1), 0},
		Func:            func(x []float64) float64 { return x[0] },
		Grad:            func(x, g []float64) { g[0] = 1 },
		Cons:            func(x, c []float64) { c[0], c[1] = x[0], x[0] },
		Jac:             func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
		Hess:            func(x []float64, sigma float64, lambda, h []float64) {},
	}
	res := fit(t, model, Options{}, []float64{0.5})
	switch {
	case res.Status != Infeasible:
		t.Fatalf("status = %v", res.Status)
	case res.OK:
		t.Fatal("infeasible fit reported OK")
	case res.Restorations == 0:
		t.Fatal("restoration never entered")
	}
}

func TestRestorationRoundTrip(t *testing.T) {
	// With a tight initial radius the linearized equality x + y = 10 is
	// out of reach from the origin, so the fit must pass through the
	// restoration phase and still come back to the optimum (5,5).
	model := &nlp.FuncModel{
		N: 2, M: 1,
		ConstraintLower: []float64{10}, ConstraintUpper: []float64{10},
		Func: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		Grad: func(x, g []float64) { g[0], g[1] = 2*x[0], 2*x[1] },
		Cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		Jac:  func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
		Hess: func(x []float64, sigma float64, lambda, h []float64) {
			h[0], h[3] = 2*sigma, 2*sigma
		},
	}
	res := fit(t, model, Options{InitialRadius: 1}, []float64{0, 0})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case res.Restorations == 0:
		t.Fatal("restoration never entered")
	case !almostEqual(res.X, []float64{5, 5}, 1e-5):
		t.Fatalf("x = %v", res.X)
	}
}

func TestKKTPointTerminatesImmediately(t *testing.T) {
	// (0.5, 0.5) with λ = 0.5 satisfies the KKT conditions of
	// 𝚖𝚒𝚗 ½‖x‖² s.t. x₁ + x₂ = 1, so no iteration should run.
	model := &nlp.FuncModel{
		N: 2, M: 1,
		ConstraintLower: []float64{1}, ConstraintUpper: []float64{1},
		Func: func(x []float64) float64 { return (x[0]*x[0] + x[1]*x[1]) / 2 },
		Grad: func(x, g []float64) { g[0], g[1] = x[0], x[1] },
		Cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		Jac:  func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
		Hess: func(x []float64, sigma float64, lambda, h []float64) {
			h[0], h[3] = sigma, sigma
		},
	}
	res := fit(t, model, Options{}, []float64{0.5, 0.5})
	switch {
	case res.Status != Optimal:
		t.Fatalf("status = %v", res.Status)
	case res.NumIter != 0:
		t.Fatalf("iterations = %d", res.NumIter)
	}
}

func TestIterationLimit(t *testing.T) {
	res := fit(t, rosenbrock(), Options{MaxIterations: 2}, []float64{-1.2, 1})
	if res.Status != IterationLimit || res.OK {
		t.Fatalf("status = %v, ok = %v", res.Status, res.OK)
	}
}

func TestNewValidation(t *testing.T) {
	model := rosenbrock()
	for _, tc := range []struct {
		name string
		prob Problem
		want string
	}{
		{
			name: "nil model",
			prob: Problem{Opts: Options{MaxIterations: 10}},
			want: "problem model is required",
		},
		{
			name: "unknown subproblem",
			prob: Problem{Model: model, Opts: Options{MaxIterations: 10, Subproblem: "SQq"}},
			want: "unknown subproblem strategy",
		},
		{
			name: "ipm with l1",
			prob: Problem{Model: model, Opts: Options{
				MaxIterations: 10,
				Subproblem:    "primal_dual_interior_point", ConstraintRelaxation: "l1_relaxation",
			}},
			want: "interior point pairs with feasibility restoration only",
		},
		{
			name: "missing iteration limit",
			prob: Problem{Model: model},
			want: "max iteration must greater than 1",
		},
		{
			name: "radius ordering",
			prob: Problem{Model: model, Opts: Options{
				MaxIterations: 10, InitialRadius: 1e-9, MinimumRadius: 1e-8,
			}},
			want: "initial radius must greater than minimum radius",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.prob.New(nil)
			if err == nil || err.Error() != tc.want {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestFitDimensionPanics(t *testing.T) {
	s, err := (&Problem{Model: rosenbrock(), Opts: Options{MaxIterations: 10}}).New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("no panic on wrong x dimension")
		}
	}()
	s.Fit([]float64{1}, s.Init())
}

func almostEqual[T float64 | []float64](a, b T, tol float64) bool {
	equalWithinAbs := func(a, b float64) bool {
		return a == b || math.Abs(a-b) <= tol
	}
	switch reflect.TypeOf((*T)(nil)).Elem().Kind() {
	case reflect.Float64:
		return equalWithinAbs(any(a).(float64), any(b).(float64))
	case reflect.Slice:
		a, b := any(a).([]float64), any(b).([]float64)
		if len(a) != len(b) {
			return false
		}
		for i, a := range a {
			if !equalWithinAbs(a, b[i]) {
				return false
			}
		}
		return true
	}
	return false
}
