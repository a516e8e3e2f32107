// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accept

import (
	"math"

	"github.com/curioloop/nlsolve/nlp"
)

// Merit accepts a trial iterate when the merit sum
//
//	φ = objective + auxiliary + infeasibility
//
// achieves the Armijo fraction of the predicted decrease. The smallest
// infeasibility seen so far gates restoration iterates.
type Merit struct {
	Armijo
	smallest float64
}

// NewMerit returns a merit strategy with the usual defaults.
func NewMerit() *Merit {
	return &Merit{
		Armijo:   Armijo{DecreaseFraction: 1e-4, ProtectRoundoff: true},
		smallest: math.Inf(1),
	}
}

func (m *Merit) Initialize(initial nlp.Progress) {
	m.smallest = initial.Infeasibility
}

func (m *Merit) IsAcceptable(current, trial nlp.Progress, predicted, objectiveMultiplier float64) bool {
	if objectiveMultiplier == 0 {
		return m.feasibilityArmijo(current, trial, predicted)
	}
	actual := current.Total() - trial.Total()
	return m.Sufficient(actual, predicted, current.Total())
}

func (m *Merit) IsFeasibilityAcceptable(current, trial nlp.Progress) bool {
	if trial.Infeasibility < m.smallest {
		m.smallest = trial.Infeasibility
		return true
	}
	return false
}

func (m *Merit) Reset() { m.smallest = math.Inf(1) }

func (m *Merit) RegisterCurrentProgress(p nlp.Progress) {
	m.smallest = math.Min(m.smallest, p.Infeasibility)
}
