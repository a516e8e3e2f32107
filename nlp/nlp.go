// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp defines the model and iterate machinery shared by the
// nonlinear programming methods of this module.
//
// A model describes the smooth constrained problem
//
//	min f(x)  s.t.  cˡ ≤ c(x) ≤ cᵘ,  xˡ ≤ x ≤ xᵘ
//
// through callback evaluations of f, c and their derivatives.
// The methods never work on a model directly but on a Problem,
// a reformulated view that fixes the objective sign σ, may append
// elastic or slack variables, and defines the progress measures used
// for globalization. Views are cheap layers: function and derivative
// values are cached on the Iterate and evaluated at most once per
// point, while each view only transforms the cached values.
//
// All Lagrangian quantities follow the sign convention
//
//	L(x,λ,z) = σ·f(x) − ⟨λ,c(x)⟩ − ⟨z,x⟩
//
// so multipliers of active lower bounds are nonnegative and those of
// active upper bounds are nonpositive.
package nlp

import (
	"errors"
	"math"
)

// ErrEvaluation reports a model callback that panicked or produced a
// NaN where a finite value is required.
var ErrEvaluation = errors.New("nlp: function evaluation failed")

// Model is the user side of a nonlinear program.
//
// Evaluations receive the primal point and write into caller-owned
// storage. The solver may evaluate several points in a row on one
// workspace and the evaluation order is unspecified, so models must
// not keep state between calls. An error return aborts the solve
// unless it occurs at a trial point, where the step is rejected and
// the globalization backtracks instead.
type Model interface {
	NumVariables() int
	NumConstraints() int

	// VariableBounds and ConstraintBounds use ±Inf for absent bounds.
	VariableBounds() Bounds
	ConstraintBounds() Bounds

	Objective(x []float64) (float64, error)
	// ObjectiveGradient overwrites g with ∇f(x).
	ObjectiveGradient(x []float64, g *SparseVector) error
	// Constraints overwrites c with c(x). len(c) equals NumConstraints.
	Constraints(x []float64, c []float64) error
	// ConstraintJacobian overwrites jac with ∇c(x), one sparse row per
	// constraint.
	ConstraintJacobian(x []float64, jac *Matrix) error
	// LagrangianHessian overwrites h with ∇²ₓₓ[σ·f(x) − ⟨λ,c(x)⟩].
	// Only the lower triangle is referenced.
	LagrangianHessian(x []float64, sigma float64, lambda []float64, h *SymMatrix) error

	// Nonzero counts size solver workspaces.
	// They are upper bounds, not exact counts.
	GradientNNZ() int
	JacobianNNZ() int
	HessianNNZ() int
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
