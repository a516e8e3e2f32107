// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"math"
	"reflect"
	"testing"

	"github.com/curioloop/nlsolve/ldl"
	"github.com/curioloop/nlsolve/nlp"
)

var (
	_ nlp.Subproblem = (*IPM)(nil)
	_ BarrierUpdate  = (*Monotone)(nil)
	_ BarrierUpdate  = Adaptive{}
)

// boxModel is 𝚖𝚒𝚗 ½x² on 1 ≤ x ≤ 2.
func boxModel() *nlp.FuncModel {
	return &nlp.FuncModel{
		N:     1,
		Lower: []float64{1}, Upper: []float64{2},
		Func: func(x []float64) float64 { return x[0] * x[0] / 2 },
		Grad: func(x, g []float64) { g[0] = x[0] },
		Hess: func(x []float64, sigma float64, lambda, h []float64) { h[0] = sigma },
	}
}

func TestIPMPureBounds(t *testing.T) {
	prob := nlp.NewOriginal(boxModel(), 1)
	it := nlp.NewIterate(1, 0)
	it.X[0] = 1.5
	dir := nlp.NewDirection(1, 0)

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}
	switch {
	case it.X[0] != 1.5:
		t.Fatalf("interior point moved: %v", it.X[0])
	case it.Duals.LowerBounds[0] != 1 || it.Duals.UpperBounds[0] != -1:
		t.Fatalf("seeded duals = %v, %v", it.Duals.LowerBounds[0], it.Duals.UpperBounds[0])
	}

	q.SetAuxiliaryMeasure(prob, it)
	if !almostEqual(it.Progress.Auxiliary, -0.1*2*math.Log(0.5), 1e-12) {
		t.Fatalf("auxiliary = %v", it.Progress.Auxiliary)
	}

	// with μ = 0.1: ∇φ = 1.5, 𝐊 = 1 + z_L/0.5 + z_U/(−0.5) = 5
	if err := q.Solve(prob, it, 0, dir); err != nil {
		t.Fatal(err)
	}
	switch {
	case dir.Status != nlp.SubproblemOptimal:
		t.Fatalf("status = %v", dir.Status)
	case !almostEqual(dir.Primal, []float64{-0.3}, 1e-12):
		t.Fatalf("dx = %v", dir.Primal)
	case !almostEqual(dir.Duals.LowerBounds[0], 0.8, 1e-12):
		t.Fatalf("new lower dual = %v", dir.Duals.LowerBounds[0])
	case dir.PrimalStep != 1:
		t.Fatalf("primal step = %v", dir.PrimalStep)
	case !almostEqual(dir.DualStep, 0.99/1.4, 1e-12):
		// the upper dual wants to cross zero; the boundary rule cuts it
		t.Fatalf("dual step = %v", dir.DualStep)
	case !almostEqual(dir.Predicted.At(1), 0.45, 1e-12):
		t.Fatalf("predicted = %v", dir.Predicted.At(1))
	case q.HessianEvaluations() != 1:
		t.Fatalf("hessian evaluations = %d", q.HessianEvaluations())
	}
}

func TestIPMEqualityConstraint(t *testing.T) {
	// 𝚖𝚒𝚗 ½‖x‖²  s.t.  x₁ + x₂ = 1: no bounds, one pure Newton-KKT step.
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
	slack := nlp.NewEqualitySlack(model)
	prob := nlp.NewOriginal(slack, 1)
	it := nlp.NewIterate(2, 1)
	dir := nlp.NewDirection(2, 1)

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}
	if err := q.Solve(prob, it, 0, dir); err != nil {
		t.Fatal(err)
	}
	q.ComputeDualDisplacements(it, dir)
	switch {
	case dir.Status != nlp.SubproblemOptimal:
		t.Fatalf("status = %v", dir.Status)
	case !almostEqual(dir.Primal, []float64{0.5, 0.5}, 1e-12):
		t.Fatalf("dx = %v", dir.Primal)
	case !almostEqual(dir.Duals.Constraints, []float64{0.5}, 1e-12):
		t.Fatalf("dlambda = %v", dir.Duals.Constraints)
	case dir.PrimalStep != 1 || dir.DualStep != 1:
		t.Fatalf("steps = %v, %v", dir.PrimalStep, dir.DualStep)
	case !almostEqual(dir.Norm, 0.5, 1e-12):
		t.Fatalf("norm = %v", dir.Norm)
	}

	// A full step lands on the constraint, so the correction re-solving
	// against −c(trial) must come back empty.
	trial := nlp.NewIterate(2, 1)
	trial.Displace(it, 1, dir.Primal)
	soc := nlp.NewDirection(2, 1)
	if err := q.SecondOrderCorrection(prob, it, trial, 1, soc); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(soc.Primal, []float64{0, 0}, 1e-12) {
		t.Fatalf("soc dx = %v", soc.Primal)
	}
}

func TestIPMInertiaCorrection(t *testing.T) {
	// concave objective: the raw system has the wrong inertia and the
	// primal regularization must grow until 𝐇 + δ𝐈 ≻ 0
	model := &nlp.FuncModel{
		N:    1,
		Func: func(x []float64) float64 { return -x[0] * x[0] / 2 },
		Grad: func(x, g []float64) { g[0] = -x[0] },
		Hess: func(x []float64, sigma float64, lambda, h []float64) { h[0] = -sigma },
	}
	prob := nlp.NewOriginal(model, 1)
	it := nlp.NewIterate(1, 0)
	it.X[0] = 0.5
	dir := nlp.NewDirection(1, 0)

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}
	if err := q.Solve(prob, it, 0, dir); err != nil {
		t.Fatal(err)
	}
	switch {
	case dir.Status != nlp.SubproblemOptimal:
		t.Fatalf("status = %v", dir.Status)
	case dir.Primal[0] <= 0:
		t.Fatalf("regularized direction not descending: %v", dir.Primal[0])
	case dir.Predicted.At(1) <= 0:
		t.Fatalf("predicted = %v", dir.Predicted.At(1))
	case q.lastDeltaX == 0:
		t.Fatal("no regularization recorded")
	}
}

func TestIPMRejectsInequality(t *testing.T) {
	model := &nlp.FuncModel{
		N: 1, M: 1,
		ConstraintLower: []float64{0},
		Func:            func(x []float64) float64 { return x[0] },
		Cons:            func(x, c []float64) { c[0] = x[0] },
	}
	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(nlp.NewOriginal(model, 1), nlp.NewIterate(1, 1)); err == nil {
		t.Fatal("general inequality accepted")
	}
}

func TestIPMBoundRelaxation(t *testing.T) {
	prob := nlp.NewOriginal(boxModel(), 1)
	it := nlp.NewIterate(1, 0)
	it.X[0] = 1.5
	dir := nlp.NewDirection(1, 0)

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}
	it.SetX([]float64{1 + 1e-18}) // closer to the bound than ε·μ
	if err := q.Solve(prob, it, 0, dir); err != nil {
		t.Fatal(err)
	}
	switch {
	case dir.Status != nlp.SubproblemOptimal:
		t.Fatalf("status = %v", dir.Status)
	case prob.VariableBounds().Lower[0] >= 1:
		t.Fatalf("bound not relaxed: %v", prob.VariableBounds().Lower[0])
	}
}

func TestIPMMultiplierReset(t *testing.T) {
	prob := nlp.NewOriginal(boxModel(), 1)
	it := nlp.NewIterate(1, 0)
	it.X[0] = 1.5

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}

	// κ_σ·μ/(x−b) = 2e9 at distance 0.5
	it.Duals.LowerBounds[0] = 1e12
	it.Duals.UpperBounds[0] = -1e12
	q.PostprocessIterate(prob, it)
	switch {
	case !almostEqual(it.Duals.LowerBounds[0], 2e9, 1):
		t.Fatalf("lower dual = %v", it.Duals.LowerBounds[0])
	case !almostEqual(it.Duals.UpperBounds[0], -2e9, 1):
		t.Fatalf("upper dual = %v", it.Duals.UpperBounds[0])
	}

	it.Duals.LowerBounds[0] = 1e-30
	q.PostprocessIterate(prob, it)
	if !almostEqual(it.Duals.LowerBounds[0], 2e-11, 1e-22) {
		t.Fatalf("lower dual floor = %v", it.Duals.LowerBounds[0])
	}
}

func TestIPMRestorationEntry(t *testing.T) {
	// equality x = 2 violated at x = 0.5: c = −1.5 raises μ and the
	// elastics start at their closed-form interior values
	model := &nlp.FuncModel{
		N: 1, M: 1,
		ConstraintLower: []float64{2}, ConstraintUpper: []float64{2},
		Func: func(x []float64) float64 { return 0 },
		Grad: func(x, g []float64) { g[0] = 0 },
		Cons: func(x, c []float64) { c[0] = x[0] },
		Jac:  func(x, jac []float64) { jac[0] = 1 },
		Hess: func(x []float64, sigma float64, lambda, h []float64) {},
	}
	slack := nlp.NewEqualitySlack(model)
	prob := nlp.NewOriginal(slack, 1)
	it := nlp.NewIterate(1, 1)
	it.X[0] = 0.5

	q := NewIPM(ldl.NewDense(), NewMonotone())
	if err := q.Initialize(prob, it); err != nil {
		t.Fatal(err)
	}

	relaxed := nlp.NewL1Relaxed(slack, 0, 1)
	itR := nlp.NewIterate(relaxed.NumVariables(), 1)
	itR.X[0] = 0.5
	if err := q.EnterRestoration(relaxed, itR); err != nil {
		t.Fatal(err)
	}
	pVar := relaxed.Elastics().Positive[0].Variable
	nVar := relaxed.Elastics().Negative[0].Variable
	switch {
	case q.Mu() != 1.5:
		t.Fatalf("mu = %v", q.Mu())
	case !almostEqual(itR.X[pVar], 2.5606601717798212, 1e-12):
		t.Fatalf("p = %v", itR.X[pVar])
	case !almostEqual(itR.X[nVar], 1.0606601717798212, 1e-12):
		t.Fatalf("n = %v", itR.X[nVar])
	case !almostEqual(itR.Duals.LowerBounds[pVar], 0.5857864376269049, 1e-12):
		t.Fatalf("p dual = %v", itR.Duals.LowerBounds[pVar])
	case !almostEqual(itR.Duals.LowerBounds[nVar], 1.4142135623730951, 1e-12):
		t.Fatalf("n dual = %v", itR.Duals.LowerBounds[nVar])
	}
	// the relaxed constraint holds exactly at the closed-form values
	if !almostEqual(itR.X[0]-2+itR.X[pVar]-itR.X[nVar], 0, 1e-12) {
		t.Fatal("elastics do not close the violation")
	}

	if err := q.ExitRestoration(prob, it); err != nil {
		t.Fatal(err)
	}
	if q.Mu() != 0.1 {
		t.Fatalf("mu after exit = %v", q.Mu())
	}
}

func TestMonotoneNextMu(t *testing.T) {
	s := NewMonotone()
	got := s.NextMu(0.1, nil, func(mu float64) float64 { return 1e-9 }, 1e-8)
	if got != 1e-9 {
		t.Fatalf("mu = %v", got)
	}
	// a large error keeps μ where it is
	got = s.NextMu(0.1, nil, func(mu float64) float64 { return 10 }, 1e-8)
	if got != 0.1 {
		t.Fatalf("mu = %v", got)
	}
}

func TestAdaptiveNextMu(t *testing.T) {
	var s Adaptive
	got := s.NextMu(0.1, []float64{0.05, 0.15}, nil, 1e-6)
	if !almostEqual(got, 1.25e-6, 1e-18) {
		t.Fatalf("mu = %v", got)
	}
	// perfectly centered products drive μ to the floor
	got = s.NextMu(0.1, []float64{0.1, 0.1}, nil, 1e-6)
	if got != 1e-7 {
		t.Fatalf("mu = %v", got)
	}
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
