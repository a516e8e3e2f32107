// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accept

import (
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

// Filter keeps a set of (infeasibility, objective) pairs no trial
// iterate may be dominated by. A trial must lie under the upper bound
// on infeasibility, escape domination by every stored pair and by the
// current iterate, and then pass either the Armijo test on the
// objective (f-type step, when the predicted decrease outweighs
// δ·hᵉˣᵖ) or augment the filter with the current pair (h-type step).
type Filter struct {
	Armijo
	// Beta and Gamma are the envelope margins of the domination test.
	Beta, Gamma float64
	// InitialUpperBound and UpperBoundFactor set β_init =
	// max(ubd, fact·h₀).
	InitialUpperBound, UpperBoundFactor float64
	// Delta and Exponent form the switching condition
	// predicted > δ·hᵉˣᵖ.
	Delta, Exponent float64

	upper   float64
	entries []filterEntry
}

type filterEntry struct{ h, f float64 }

// NewFilter returns a filter strategy with the usual defaults.
func NewFilter() *Filter {
	return &Filter{
		Armijo:            Armijo{DecreaseFraction: 1e-4, ProtectRoundoff: true},
		Beta:              0.999,
		Gamma:             0.001,
		InitialUpperBound: 1,
		UpperBoundFactor:  100,
		Delta:             1,
		Exponent:          2,
	}
}

func (f *Filter) Initialize(initial nlp.Progress) {
	f.upper = math.Max(f.InitialUpperBound, f.UpperBoundFactor*initial.Infeasibility)
	f.entries = f.entries[:0]
}

// dominated reports whether the pair (h, φ) is dominated by a stored
// entry.
func (f *Filter) dominated(h, phi float64) bool {
	for _, e := range f.entries {
		if h > f.Beta*e.h && phi > e.f-f.Gamma*h {
			return true
		}
	}
	return false
}

// add inserts (h, φ), evicting entries the new pair dominates.
func (f *Filter) add(h, phi float64) {
	k := 0
	for _, e := range f.entries {
		if !(e.h >= h && e.f >= phi) {
			f.entries[k] = e
			k++
		}
	}
	f.entries = append(f.entries[:k], filterEntry{h, phi})
}

func (f *Filter) IsAcceptable(current, trial nlp.Progress, predicted, objectiveMultiplier float64) bool {
	if objectiveMultiplier == 0 {
		return f.feasibilityArmijo(current, trial, predicted)
	}
	ht, phit := trial.Infeasibility, trial.Objective+trial.Auxiliary
	hc, phic := current.Infeasibility, current.Objective+current.Auxiliary

	if ht > f.upper || f.dominated(ht, phit) {
		return false
	}
	if ht > f.Beta*hc && phit > phic-f.Gamma*ht {
		return false // dominated by the current pair
	}
	if predicted > f.Delta*math.Pow(hc, f.Exponent) {
		// f-type step: the objective must actually come down
		return f.Sufficient(phic-phit, predicted, phic)
	}
	// h-type step: remember the current pair
	f.add(hc, phic)
	return true
}

func (f *Filter) IsFeasibilityAcceptable(current, trial nlp.Progress) bool {
	return trial.Infeasibility <= f.upper &&
		trial.Infeasibility <= f.Beta*current.Infeasibility
}

func (f *Filter) Reset() {
	f.entries = f.entries[:0]
}

func (f *Filter) RegisterCurrentProgress(p nlp.Progress) {}

// Size returns the number of stored pairs.
func (f *Filter) Size() int { return len(f.entries) }
