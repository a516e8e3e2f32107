// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// Phase tells which problem the solver is currently working on.
type Phase int8

const (
	// PhaseOptimality minimizes the objective subject to the
	// constraints.
	PhaseOptimality Phase = iota
	// PhaseRestoration minimizes constraint violation to recover from
	// an infeasible subproblem or a rejected feasibility step.
	PhaseRestoration
)

func (p Phase) String() string {
	switch p {
	case PhaseOptimality:
		return "optimality"
	case PhaseRestoration:
		return "restoration"
	}
	return "unknown"
}

// SubproblemStatus reports the outcome of one direction computation.
type SubproblemStatus int8

const (
	SubproblemOptimal SubproblemStatus = iota
	SubproblemUnbounded
	SubproblemInfeasible
	SubproblemError
)

func (s SubproblemStatus) String() string {
	switch s {
	case SubproblemOptimal:
		return "optimal"
	case SubproblemUnbounded:
		return "unbounded"
	case SubproblemInfeasible:
		return "infeasible"
	case SubproblemError:
		return "error"
	}
	return "unknown"
}

// ActiveSet lists the indices fixed at a bound in the most recent
// subproblem solution.
type ActiveSet struct {
	LowerVariables   []int
	UpperVariables   []int
	LowerConstraints []int
	UpperConstraints []int
}

// Reset truncates all four lists.
func (a *ActiveSet) Reset() {
	a.LowerVariables = a.LowerVariables[:0]
	a.UpperVariables = a.UpperVariables[:0]
	a.LowerConstraints = a.LowerConstraints[:0]
	a.UpperConstraints = a.UpperConstraints[:0]
}

// Size returns the total number of active indices.
func (a *ActiveSet) Size() int {
	return len(a.LowerVariables) + len(a.UpperVariables) +
		len(a.LowerConstraints) + len(a.UpperConstraints)
}

// Reduction records a predicted model decrease as a polynomial in the
// step fraction α, so acceptance tests can evaluate it at any trial
// step without re-solving the subproblem.
type Reduction struct {
	Linear    float64
	Quadratic float64
}

// At evaluates the predicted decrease for step fraction α.
func (r Reduction) At(alpha float64) float64 {
	return alpha*r.Linear + alpha*alpha*r.Quadratic
}

// Direction is a primal-dual displacement produced by a subproblem.
// Duals holds displacements Δλ and Δz, not new values.
type Direction struct {
	Primal []float64
	Duals  Multipliers

	Status SubproblemStatus
	Phase  Phase

	// Norm is ‖Δx‖∞ over the primal block.
	Norm float64
	// Objective is the subproblem model objective at the full step.
	Objective float64

	// Step fractions from the fraction-to-boundary rule.
	// Both are 1 for the active-set subproblems.
	PrimalStep, DualStep float64

	Active    ActiveSet
	Partition *ConstraintPartition

	// Predicted is the decrease of the view's objective model.
	Predicted Reduction
}

// NewDirection returns a zero direction for n variables and m
// constraints.
func NewDirection(n, m int) *Direction {
	return &Direction{
		Primal:     make([]float64, n),
		Duals:      NewMultipliers(n, m),
		PrimalStep: 1,
		DualStep:   1,
	}
}

// Reset zeroes the displacement and bookkeeping of a previous solve.
func (d *Direction) Reset() {
	for i := range d.Primal {
		d.Primal[i] = 0
	}
	d.Duals.Reset()
	d.Status = SubproblemOptimal
	d.Norm = 0
	d.Objective = 0
	d.PrimalStep, d.DualStep = 1, 1
	d.Active.Reset()
	d.Partition = nil
	d.Predicted = Reduction{}
}

// UpdateNorm recomputes ‖Δx‖∞ over the first n entries.
func (d *Direction) UpdateNorm(n int) {
	var s float64
	for _, v := range d.Primal[:n] {
		if a := math.Abs(v); a > s {
			s = a
		}
	}
	d.Norm = s
}
