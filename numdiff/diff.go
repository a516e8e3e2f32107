// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates derivatives by finite differences.
//
// The step selection follows scipy.optimize._numdiff: relative steps
// scaled by max(1,|x|) and adjusted near bounds so that evaluation
// points never leave the feasible box.
package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// Method selects the finite-difference scheme.
type Method int

const (
	// Forward uses the first order accuracy forward difference.
	Forward Method = iota
	// Central uses the central difference in interior points and the
	// second order accuracy one-sided difference near the boundary.
	Central
)

// Spec differentiates a vector function y = F(x), F: ℝⁿ → ℝᵐ.
// The result of Diff is the row-major M×N Jacobian: row j holds the
// gradient of component j.
//
// A Spec owns its evaluation scratch and is reusable across calls of
// the same shape.
type Spec struct {
	N, M int
	// Eval computes F: the argument x is an n-vector, the result is
	// stored in the m-vector y.
	Eval func(x, y []float64)
	// Method selects the difference scheme.
	Method Method
	// Lower and Upper limit the range of function evaluation.
	// Nil slices mean unbounded.
	Lower, Upper []float64
	// RelStep is the relative step size; the absolute step is computed
	// as h = RelStep · sign(x₀) · |x₀|. When zero, a method-dependent
	// default relative to max(1,|x₀|) is used.
	RelStep float64
	// AbsStep overrides the step size when nonzero. For Central the
	// sign is ignored.
	AbsStep float64

	f0, fx  []float64
	absStep []float64
	oneSide []bool
}

// check validates the parameters and sizes the scratch storage.
func (s *Spec) check(x0, diff []float64) error {
	switch {
	case s.N <= 0 || s.M <= 0:
		return errors.New("numdiff: negative dimensions")
	case s.Method != Forward && s.Method != Central:
		return errors.New("numdiff: unknown method")
	case s.Eval == nil:
		return errors.New("numdiff: eval function is required")
	case s.N != len(x0):
		return errors.New("numdiff: invalid x0 dimensions")
	case s.N*s.M != len(diff):
		return errors.New("numdiff: invalid diff dimensions")
	}
	for _, b := range [][]float64{s.Lower, s.Upper} {
		if b != nil && len(b) != s.N {
			return errors.New("numdiff: invalid bound dimension")
		}
	}
	for i := range x0 {
		if s.lower(i) > s.upper(i) {
			return errors.New("numdiff: invalid bound range")
		}
		if x0[i] < s.lower(i) || x0[i] > s.upper(i) {
			return errors.New("numdiff: x0 violates bound constraints")
		}
	}

	if len(s.fx) != s.M*(int(s.Method)+1) {
		s.f0 = make([]float64, s.M)
		s.fx = make([]float64, s.M*(int(s.Method)+1))
	}
	if len(s.absStep) != s.N {
		s.absStep = make([]float64, s.N)
	}
	if len(s.oneSide) != s.N*int(s.Method) {
		s.oneSide = make([]bool, s.N*int(s.Method))
	}
	return nil
}

func (s *Spec) lower(i int) float64 {
	if s.Lower == nil {
		return math.Inf(-1)
	}
	return s.Lower[i]
}

func (s *Spec) upper(i int) float64 {
	if s.Upper == nil {
		return math.Inf(1)
	}
	return s.Upper[i]
}

// Diff approximates the Jacobian of Eval at x0 into diff.
// x0 is perturbed during evaluation but restored on return.
func (s *Spec) Diff(x0, diff []float64) error {
	if err := s.check(x0, diff); err != nil {
		return err
	}

	bnd := false
	for i := range x0 {
		if bnd = !(math.IsInf(s.lower(i), -1) && math.IsInf(s.upper(i), 1)); bnd {
			break
		}
	}

	s.absoluteStep(x0)
	s.adjustToBounds(x0, bnd)

	if s.Method == Central {
		s.approxCentral(x0, diff)
	} else {
		s.approxForward(x0, diff)
	}
	return nil
}

func (s *Spec) absoluteStep(x0 []float64) {
	h := s.absStep

	var eps float64
	switch s.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	}

	abs, rel := s.AbsStep, s.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i, v := range x0 {
			step := abs
			if step == 0 {
				step = math.Copysign(rel, v) * math.Abs(v)
			}
			if d := (v + step) - v; d == 0 {
				step = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = step
		}
	}
}

func (s *Spec) adjustToBounds(x0 []float64, bnd bool) {
	h, o := s.absStep, s.oneSide
	if s.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		for i := range o {
			o[i] = false
		}
	}

	if !bnd {
		return
	}

	if s.Method == Forward {
		for i, x := range x0 {
			lb, ub := s.lower(i), s.upper(i)
			ld, ud := x-lb, ub-x
			h0 := h[i]
			violated := x+h0 < lb || x+h0 > ub
			fitting := math.Abs(h0) < math.Max(ld, ud)
			if violated && fitting {
				h[i] = -h0
			} else if !fitting {
				if ud >= ld {
					h[i] = ud
				} else {
					h[i] = -ld
				}
			}
		}
	} else {
		for i, x := range x0 {
			lb, ub := s.lower(i), s.upper(i)
			ld, ud := x-lb, ub-x
			central := ld >= h[i] && ud >= h[i]
			if !central {
				if ud >= ld {
					h[i] = math.Min(h[i], 0.5*ud)
					o[i] = true
				} else {
					h[i] = -math.Min(h[i], 0.5*ld)
					o[i] = true
				}
			}
			minDist := math.Min(ud, ld)
			if !central && math.Abs(h[i]) <= minDist {
				h[i] = minDist
				o[i] = false
			}
		}
	}
}

func (s *Spec) approxForward(x0, df []float64) {
	f0, fx, h, n := s.f0, s.fx, s.absStep, s.N
	fun := s.Eval
	fun(x0, f0)
	for i, step := range h {
		t := x0[i]
		x0[i] = t + step
		fun(x0, fx)
		d := 1.0 / step
		for j := range f0 {
			df[i+j*n] = (fx[j] - f0[j]) * d
		}
		x0[i] = t
	}
}

func (s *Spec) approxCentral(x0, df []float64) {
	f0, h, o, n, m := s.f0, s.absStep, s.oneSide, s.N, s.M
	f1, f2 := s.fx[:m], s.fx[m:]
	fun := s.Eval
	fun(x0, f0)
	for i, step := range h {
		x := x0[i]
		d := 1.0 / (2 * step)
		if o[i] {
			x0[i] = x + step
			fun(x0, f1)
			x0[i] = x + 2*step
			fun(x0, f2)
			for j := range f0 {
				df[i+j*n] = (4*f1[j] - 3*f0[j] - f2[j]) * d
			}
		} else {
			x0[i] = x - step
			fun(x0, f1)
			x0[i] = x + step
			fun(x0, f2)
			for j := range f0 {
				df[i+j*n] = (f2[j] - f1[j]) * d
			}
		}
		x0[i] = x
	}
}
