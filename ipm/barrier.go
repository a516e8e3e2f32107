// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import "math"

// BarrierUpdate picks the barrier parameter for the next outer
// iteration after an iterate was accepted.
type BarrierUpdate interface {
	// NextMu returns the new parameter. comp holds the products
	// (xᵢ−bᵢ)·zᵢ of every finite bound side, errorAt evaluates the
	// scaled optimality error of the barrier subproblem as a function
	// of μ, and tol is the outer termination tolerance flooring the
	// result at tol/10.
	NextMu(mu float64, comp []float64, errorAt func(mu float64) float64, tol float64) float64
}

// Monotone is the Fiacco–McCormick rule: once the barrier subproblem
// is solved to κ_ε·μ, decrease
//
//	μ ← max(tol/10, min(κ_μ·μ, μ^θ))
//
// possibly several times in one call when the error is already below
// the tighter thresholds.
type Monotone struct {
	KappaEpsilon float64
	KappaMu      float64
	ThetaMu      float64
}

// NewMonotone returns the rule with the usual parameters.
func NewMonotone() *Monotone {
	return &Monotone{KappaEpsilon: 10, KappaMu: 0.2, ThetaMu: 1.5}
}

func (s *Monotone) NextMu(mu float64, comp []float64, errorAt func(float64) float64, tol float64) float64 {
	floor := tol / 10
	for mu > floor && errorAt(mu) <= s.KappaEpsilon*mu {
		next := math.Max(floor, math.Min(s.KappaMu*mu, math.Pow(mu, s.ThetaMu)))
		if next == mu {
			break
		}
		mu = next
	}
	return mu
}

// Adaptive is the LOQO centrality rule: with ξ the ratio of the
// smallest complementarity product to the average,
//
//	σ = 0.1·min(0.05·(1−ξ)/ξ, 2)³,  μ = σ·avg
//
// so a well-centered iterate (ξ near 1) drives μ down aggressively.
type Adaptive struct{}

func (Adaptive) NextMu(mu float64, comp []float64, errorAt func(float64) float64, tol float64) float64 {
	if len(comp) == 0 {
		return mu
	}
	var sum float64
	smallest := math.Inf(1)
	for _, v := range comp {
		sum += v
		if v < smallest {
			smallest = v
		}
	}
	avg := sum / float64(len(comp))
	if avg <= 0 || smallest <= 0 {
		return mu
	}
	xi := smallest / avg
	sigma := 0.1 * math.Pow(math.Min(0.05*(1-xi)/xi, 2), 3)
	return math.Max(tol/10, sigma*avg)
}
