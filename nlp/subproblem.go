// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// Subproblem computes a primal-dual search direction from a local
// model of the problem around the current iterate. Implementations
// own their workspaces and solver handles; the driver owns the
// iterates and the phase.
type Subproblem interface {
	// Initialize sizes the workspace for the given view. It must be
	// called before any other method and again when the view changes
	// dimensions.
	Initialize(p Problem, it *Iterate) error

	// EvaluateFunctions fills the progress measures of it under the
	// view: objective and infeasibility. The auxiliary measure is set
	// separately by SetAuxiliaryMeasure.
	EvaluateFunctions(p Problem, it *Iterate) error

	// Solve computes a direction at it. radius is the trust-region
	// bound on the displacement; interior-point implementations ignore
	// it. Numeric trouble is reported through dir.Status, an error
	// return means the subproblem itself is misconfigured.
	Solve(p Problem, it *Iterate, radius float64, dir *Direction) error

	// SetInitialPoint seeds the next solve, typically with the primal
	// direction of the other phase.
	SetInitialPoint(x []float64)

	// ComputeDualDisplacements converts the new multiplier values left
	// in dir.Duals by Solve into displacements against it.Duals.
	ComputeDualDisplacements(it *Iterate, dir *Direction)

	// SetAuxiliaryMeasure fills it.Progress.Auxiliary.
	SetAuxiliaryMeasure(p Problem, it *Iterate)

	// PredictedAuxiliaryReduction is the predicted decrease of the
	// auxiliary measure along dir.
	PredictedAuxiliaryReduction(p Problem, it *Iterate, dir *Direction) Reduction

	// PostprocessIterate repairs an accepted iterate: projection into
	// bounds for the active-set methods, multiplier safeguards for the
	// interior-point method.
	PostprocessIterate(p Problem, it *Iterate)

	// HessianEvaluations counts the model Hessian evaluations so far.
	HessianEvaluations() int
}
