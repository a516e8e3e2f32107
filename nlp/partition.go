// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// ConstraintStatus classifies one constraint against its bounds.
type ConstraintStatus int8

const (
	ConstraintFeasible ConstraintStatus = iota
	ConstraintBelowLower
	ConstraintAboveUpper
)

// ConstraintPartition splits constraints into feasible and infeasible
// sets with respect to a violation tolerance.
type ConstraintPartition struct {
	Status     []ConstraintStatus
	Infeasible []int
	// Violation is the 1-norm of the violations of the infeasible set.
	Violation float64
}

// NewConstraintPartition returns an all-feasible partition for m
// constraints.
func NewConstraintPartition(m int) *ConstraintPartition {
	return &ConstraintPartition{Status: make([]ConstraintStatus, m)}
}

// Partition reclassifies the constraint values c against bounds,
// treating violations up to tol as feasible.
func (p *ConstraintPartition) Partition(c []float64, bounds Bounds, tol float64) {
	p.Infeasible = p.Infeasible[:0]
	p.Violation = 0
	for j, v := range c {
		p.Status[j] = ConstraintFeasible
		if d := bounds.Lower[j] - v; d > tol {
			p.Status[j] = ConstraintBelowLower
			p.Infeasible = append(p.Infeasible, j)
			p.Violation += d
		} else if d := v - bounds.Upper[j]; d > tol {
			p.Status[j] = ConstraintAboveUpper
			p.Infeasible = append(p.Infeasible, j)
			p.Violation += d
		}
	}
}

// NumInfeasible returns the size of the infeasible set.
func (p *ConstraintPartition) NumInfeasible() int { return len(p.Infeasible) }
