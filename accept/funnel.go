// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accept

import (
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

// Funnel replaces the multi-point filter with a single monotone upper
// bound on the infeasibility. f-type steps pass the Armijo test under
// an unchanged funnel; h-type steps shrink the funnel toward the trial
// infeasibility by the blend (1−κ)·width + κ·h.
type Funnel struct {
	Armijo
	Beta, Gamma float64
	// InitialWidth and WidthFactor set the starting width
	// max(width₀, fact·h₀).
	InitialWidth, WidthFactor float64
	// Kappa is the shrink blend of h-type steps.
	Kappa float64
	// Delta and Exponent form the switching condition.
	Delta, Exponent float64

	width float64
}

// NewFunnel returns a funnel strategy with the usual defaults.
func NewFunnel() *Funnel {
	return &Funnel{
		Armijo:       Armijo{DecreaseFraction: 1e-4, ProtectRoundoff: true},
		Beta:         0.999,
		Gamma:        0.001,
		InitialWidth: 1,
		WidthFactor:  100,
		Kappa:        0.5,
		Delta:        1,
		Exponent:     2,
	}
}

// Width exposes the current funnel width, mainly for tests and logs.
func (f *Funnel) Width() float64 { return f.width }

func (f *Funnel) Initialize(initial nlp.Progress) {
	f.width = math.Max(f.InitialWidth, f.WidthFactor*initial.Infeasibility)
}

func (f *Funnel) IsAcceptable(current, trial nlp.Progress, predicted, objectiveMultiplier float64) bool {
	if objectiveMultiplier == 0 {
		if !f.feasibilityArmijo(current, trial, predicted) {
			return false
		}
		f.shrink(trial.Infeasibility)
		return true
	}
	ht, phit := trial.Infeasibility, trial.Objective+trial.Auxiliary
	hc, phic := current.Infeasibility, current.Objective+current.Auxiliary

	if ht > f.Beta*f.width {
		return false
	}
	if predicted > f.Delta*math.Pow(hc, f.Exponent) {
		// f-type: the funnel stays put
		return f.Sufficient(phic-phit, predicted, phic)
	}
	// h-type: require some feasibility progress and tighten the funnel
	if ht > f.Beta*hc && phit > phic-f.Gamma*ht {
		return false
	}
	f.shrink(ht)
	return true
}

func (f *Funnel) shrink(h float64) {
	if w := (1-f.Kappa)*f.width + f.Kappa*h; w < f.width {
		f.width = w
	}
}

func (f *Funnel) IsFeasibilityAcceptable(current, trial nlp.Progress) bool {
	if trial.Infeasibility >= f.width || trial.Infeasibility > f.Beta*current.Infeasibility {
		return false
	}
	f.shrink(trial.Infeasibility)
	return true
}

func (f *Funnel) Reset() {}

func (f *Funnel) RegisterCurrentProgress(p nlp.Progress) {}
