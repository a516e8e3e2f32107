// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ldl

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func symFromRows(rows ...[]float64) *mat.SymDense {
	n := len(rows)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, rows[i][j])
		}
	}
	return s
}

func TestDenseIdentity(t *testing.T) {
	d := NewDense()
	d.Analyze(3, 0)
	if err := d.Factorize(symFromRows(
		[]float64{1, 0, 0},
		[]float64{0, 1, 0},
		[]float64{0, 0, 1},
	)); err != nil {
		t.Fatal(err)
	}
	if pos, neg, zero := d.Inertia(); pos != 3 || neg != 0 || zero != 0 {
		t.Fatalf("inertia = (%d,%d,%d)", pos, neg, zero)
	}

	rhs := []float64{1, -2, 3}
	x := make([]float64, 3)
	if err := d.Solve(rhs, x); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(x, rhs, 1e-15) {
		t.Fatalf("x = %v", x)
	}
}

func TestDenseSaddle(t *testing.T) {
	// The augmented system of 𝚖𝚒𝚗 ½‖x‖² s.t. x₁ + x₂ = 1 with a small
	// dual regularization: inertia (n, m, 0) and the known saddle point.
	const delta = 1e-8
	k := symFromRows(
		[]float64{1, 0, 1},
		[]float64{0, 1, 1},
		[]float64{1, 1, -delta},
	)

	d := NewDense()
	d.Analyze(3, 0)
	if err := d.Factorize(k); err != nil {
		t.Fatal(err)
	}
	if pos, neg, zero := d.Inertia(); pos != 2 || neg != 1 || zero != 0 {
		t.Fatalf("inertia = (%d,%d,%d)", pos, neg, zero)
	}

	x := make([]float64, 3)
	if err := d.Solve([]float64{0, 0, 1}, x); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(x, []float64{0.5, 0.5, -0.5}, 1e-6) {
		t.Fatalf("x = %v", x)
	}
}

func TestDenseIndefinite(t *testing.T) {
	d := NewDense()
	d.Analyze(3, 0)
	if err := d.Factorize(symFromRows(
		[]float64{2, 0, 0},
		[]float64{0, -3, 0},
		[]float64{0, 0, 5},
	)); err != nil {
		t.Fatal(err)
	}
	if pos, neg, zero := d.Inertia(); pos != 2 || neg != 1 || zero != 0 {
		t.Fatalf("inertia = (%d,%d,%d)", pos, neg, zero)
	}

	x := make([]float64, 3)
	if err := d.Solve([]float64{2, 3, -5}, x); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(x, []float64{1, -1, -1}, 1e-15) {
		t.Fatalf("x = %v", x)
	}
}

func TestDenseSingular(t *testing.T) {
	// Rank-one 2×2: the second pivot vanishes after elimination.
	d := NewDense()
	d.Analyze(2, 0)
	if err := d.Factorize(symFromRows(
		[]float64{1, 1},
		[]float64{1, 1},
	)); err != nil {
		t.Fatal(err)
	}
	if pos, neg, zero := d.Inertia(); pos != 1 || neg != 0 || zero != 1 {
		t.Fatalf("inertia = (%d,%d,%d)", pos, neg, zero)
	}
	if err := d.Solve([]float64{1, 1}, make([]float64, 2)); !errors.Is(err, ErrSingular) {
		t.Fatalf("err = %v, want ErrSingular", err)
	}
}

func TestDenseReuse(t *testing.T) {
	// Refactorizing with a larger matrix resizes the workspace.
	d := NewDense()
	d.Analyze(1, 0)
	if err := d.Factorize(symFromRows([]float64{4})); err != nil {
		t.Fatal(err)
	}

	k := symFromRows(
		[]float64{4, 2},
		[]float64{2, 3},
	)
	if err := d.Factorize(k); err != nil {
		t.Fatal(err)
	}
	if pos, neg, zero := d.Inertia(); pos != 2 || neg != 0 || zero != 0 {
		t.Fatalf("inertia = (%d,%d,%d)", pos, neg, zero)
	}
	x := make([]float64, 2)
	if err := d.Solve([]float64{8, 7}, x); err != nil {
		t.Fatal(err)
	}
	if !almostEqual(x, []float64{1.25, 1.5}, 1e-14) {
		t.Fatalf("x = %v", x)
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
