// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "math"

// EqualitySlack reformulates a model so that every constraint is the
// homogeneous equality expected by the interior-point method:
// inequality constraints gain a slack variable s with the constraint
// bounds moved onto s,
//
//	cˡ ≤ c_j(x) ≤ cᵘ   becomes   c_j(x) − s_j = 0,  cˡ ≤ s_j ≤ cᵘ
//
// and equality constraints are shifted by their right-hand side.
// The wrapper is itself a Model, so any view can sit on top of it.
type EqualitySlack struct {
	model   Model
	n, m    int
	slackOf []int // constraint → slack variable, −1 for equalities
	vb, cb  Bounds
}

// NewEqualitySlack wraps model. Slack variables are appended after
// the model variables in constraint order.
func NewEqualitySlack(model Model) *EqualitySlack {
	n, m := model.NumVariables(), model.NumConstraints()
	mcb := model.ConstraintBounds()

	s := &EqualitySlack{model: model, n: n, m: m, slackOf: make([]int, m)}
	next := n
	for j := 0; j < m; j++ {
		if mcb.IsEquality(j) {
			s.slackOf[j] = -1
		} else {
			s.slackOf[j] = next
			next++
		}
	}

	mvb := model.VariableBounds()
	s.vb = NewBounds(next)
	copy(s.vb.Lower, mvb.Lower)
	copy(s.vb.Upper, mvb.Upper)
	for j := 0; j < m; j++ {
		if i := s.slackOf[j]; i >= 0 {
			s.vb.Lower[i] = mcb.Lower[j]
			s.vb.Upper[i] = mcb.Upper[j]
		}
	}

	s.cb = NewBounds(m)
	for j := 0; j < m; j++ {
		s.cb.Lower[j], s.cb.Upper[j] = 0, 0
	}
	return s
}

// OriginalVariables returns the number of model variables preceding
// the slack block.
func (s *EqualitySlack) OriginalVariables() int { return s.n }

// SlackOf returns the slack variable of constraint j, or −1 for an
// equality.
func (s *EqualitySlack) SlackOf(j int) int { return s.slackOf[j] }

// InitSlacks sets the slack entries of x to the constraint values at
// x, clipped into the constraint bounds. c is scratch of length m.
func (s *EqualitySlack) InitSlacks(x []float64, c []float64) error {
	if err := s.model.Constraints(x[:s.n], c); err != nil {
		return err
	}
	mcb := s.model.ConstraintBounds()
	for j := 0; j < s.m; j++ {
		if i := s.slackOf[j]; i >= 0 {
			x[i] = math.Min(math.Max(c[j], mcb.Lower[j]), mcb.Upper[j])
		}
	}
	return nil
}

func (s *EqualitySlack) NumVariables() int       { return s.vb.Len() }
func (s *EqualitySlack) NumConstraints() int     { return s.m }
func (s *EqualitySlack) VariableBounds() Bounds  { return s.vb }
func (s *EqualitySlack) ConstraintBounds() Bounds { return s.cb }

func (s *EqualitySlack) Objective(x []float64) (float64, error) {
	return s.model.Objective(x[:s.n])
}

func (s *EqualitySlack) ObjectiveGradient(x []float64, g *SparseVector) error {
	return s.model.ObjectiveGradient(x[:s.n], g)
}

func (s *EqualitySlack) Constraints(x []float64, c []float64) error {
	if err := s.model.Constraints(x[:s.n], c); err != nil {
		return err
	}
	mcb := s.model.ConstraintBounds()
	for j := 0; j < s.m; j++ {
		if i := s.slackOf[j]; i >= 0 {
			c[j] -= x[i]
		} else {
			c[j] -= mcb.Lower[j]
		}
	}
	return nil
}

func (s *EqualitySlack) ConstraintJacobian(x []float64, jac *Matrix) error {
	if err := s.model.ConstraintJacobian(x[:s.n], jac); err != nil {
		return err
	}
	jac.N = s.NumVariables()
	for j := 0; j < s.m; j++ {
		if i := s.slackOf[j]; i >= 0 {
			jac.Row(j).Append(i, -1)
		}
	}
	return nil
}

func (s *EqualitySlack) LagrangianHessian(x []float64, sigma float64, lambda []float64, h *SymMatrix) error {
	if err := s.model.LagrangianHessian(x[:s.n], sigma, lambda, h); err != nil {
		return err
	}
	h.N = s.NumVariables()
	return nil
}

func (s *EqualitySlack) GradientNNZ() int { return s.model.GradientNNZ() }
func (s *EqualitySlack) JacobianNNZ() int { return s.model.JacobianNNZ() + s.m }
func (s *EqualitySlack) HessianNNZ() int  { return s.model.HessianNNZ() }
