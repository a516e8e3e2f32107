// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package accept decides whether a trial iterate makes enough progress
// to replace the current one. Every strategy compares the progress
// triple (infeasibility, objective, auxiliary) of the two points
// against the predicted model decrease, gated by an Armijo-style
// sufficient-decrease test; they differ in how they trade feasibility
// against optimality: a single merit sum, a multi-point filter, or a
// monotone funnel on the infeasibility.
package accept

import (
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

const eps = float64(7)/3 - float64(4)/3 - 1.

// Strategy accepts or rejects trial iterates. predicted is the model
// decrease already evaluated at the trial step fraction; a zero
// objectiveMultiplier switches every strategy to a feasibility-only
// test on the infeasibility measure.
type Strategy interface {
	// Initialize seeds the strategy with the progress of the starting
	// point.
	Initialize(initial nlp.Progress)
	IsAcceptable(current, trial nlp.Progress, predicted, objectiveMultiplier float64) bool
	// IsFeasibilityAcceptable judges a restoration iterate purely on
	// feasibility.
	IsFeasibilityAcceptable(current, trial nlp.Progress) bool
	// Reset clears all memory, used on phase changes.
	Reset()
	// RegisterCurrentProgress publishes the measures of the last
	// accepted iterate.
	RegisterCurrentProgress(p nlp.Progress)
}

// Armijo is the shared sufficient-decrease test
//
//	actual ≥ c_A·predicted,  predicted > 0
//
// with optional roundoff protection on the actual reduction.
type Armijo struct {
	// DecreaseFraction is c_A ∈ (0,1).
	DecreaseFraction float64
	// ProtectRoundoff adds 10·εmach·max(1,|reference|) to the actual
	// reduction before comparing.
	ProtectRoundoff bool
}

// Sufficient applies the test; reference scales the roundoff guard.
func (a Armijo) Sufficient(actual, predicted, reference float64) bool {
	if a.ProtectRoundoff {
		actual += 10 * eps * math.Max(1, math.Abs(reference))
	}
	return predicted > 0 && actual >= a.DecreaseFraction*predicted
}

// feasibilityArmijo is the σ = 0 dispatch shared by the strategies.
func (a Armijo) feasibilityArmijo(current, trial nlp.Progress, predicted float64) bool {
	return a.Sufficient(current.Infeasibility-trial.Infeasibility, predicted, current.Infeasibility)
}
