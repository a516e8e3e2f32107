// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"
	"math"

	"github.com/curioloop/nlsolve/numdiff"
)

// FuncModel adapts plain dense callbacks to the Model interface.
// Only Func is mandatory (plus Cons when M > 0): missing derivative
// callbacks fall back to finite differences, where the Hessian
// fallback differentiates the Lagrangian gradient and is meant for
// small problems and tests.
//
// A FuncModel owns scratch storage for the dense↔sparse conversion,
// so concurrent fits need one FuncModel per workspace.
type FuncModel struct {
	N, M int

	// Variable and constraint bounds. Nil slices mean unbounded.
	Lower, Upper                     []float64
	ConstraintLower, ConstraintUpper []float64

	Func func(x []float64) float64
	Grad func(x, g []float64)
	Cons func(x, c []float64)
	// Jac writes the row-major M×N Jacobian.
	Jac func(x, jac []float64)
	// Hess writes the dense N×N Hessian of σ·f(x) − ⟨λ,c(x)⟩.
	// Only the lower triangle is referenced.
	Hess func(x []float64, sigma float64, lambda, h []float64)

	// Diff selects the finite-difference scheme for absent callbacks.
	Diff numdiff.Method

	jac, hess, lag []float64
	conWork        []float64
}

// Check validates the callback set and bound lengths.
func (m *FuncModel) Check() error {
	switch {
	case m.N <= 0:
		return fmt.Errorf("nlp: model has %d variables", m.N)
	case m.M < 0:
		return fmt.Errorf("nlp: model has %d constraints", m.M)
	case m.Func == nil:
		return fmt.Errorf("nlp: model objective callback is nil")
	case m.M > 0 && m.Cons == nil:
		return fmt.Errorf("nlp: model constraint callback is nil")
	}
	for _, b := range [][]float64{m.Lower, m.Upper} {
		if b != nil && len(b) != m.N {
			return fmt.Errorf("nlp: variable bound length %d != %d", len(b), m.N)
		}
	}
	for _, b := range [][]float64{m.ConstraintLower, m.ConstraintUpper} {
		if b != nil && len(b) != m.M {
			return fmt.Errorf("nlp: constraint bound length %d != %d", len(b), m.M)
		}
	}
	return nil
}

func (m *FuncModel) NumVariables() int   { return m.N }
func (m *FuncModel) NumConstraints() int { return m.M }

func fillBounds(n int, lower, upper []float64) Bounds {
	b := NewBounds(n)
	if lower != nil {
		copy(b.Lower, lower)
	}
	if upper != nil {
		copy(b.Upper, upper)
	}
	return b
}

func (m *FuncModel) VariableBounds() Bounds {
	return fillBounds(m.N, m.Lower, m.Upper)
}

func (m *FuncModel) ConstraintBounds() Bounds {
	return fillBounds(m.M, m.ConstraintLower, m.ConstraintUpper)
}

func (m *FuncModel) GradientNNZ() int { return m.N }
func (m *FuncModel) JacobianNNZ() int { return m.M * m.N }
func (m *FuncModel) HessianNNZ() int  { return m.N * (m.N + 1) / 2 }

// guardEval converts a callback panic into ErrEvaluation.
func guardEval(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrEvaluation, r)
	}
}

func (m *FuncModel) Objective(x []float64) (f float64, err error) {
	defer guardEval(&err)
	f = m.Func(x[:m.N])
	if !isFinite(f) {
		return 0, fmt.Errorf("%w: objective is %v", ErrEvaluation, f)
	}
	return f, nil
}

func (m *FuncModel) ObjectiveGradient(x []float64, g *SparseVector) (err error) {
	defer guardEval(&err)
	g.Reset()
	if cap(g.Value) < m.N {
		g.Value = make([]float64, m.N)
	}
	dense := g.Value[:m.N]
	if m.Grad != nil {
		for i := range dense {
			dense[i] = 0
		}
		m.Grad(x[:m.N], dense)
	} else if err := m.diffObjective(x[:m.N], dense); err != nil {
		return err
	}
	return compact(g, dense)
}

// compact turns the dense values written into g.Value into sparse
// entries, dropping exact zeros.
func compact(g *SparseVector, dense []float64) error {
	k := 0
	for i, v := range dense {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: derivative %d is NaN", ErrEvaluation, i)
		}
		if v != 0 {
			g.Index = append(g.Index, i)
			dense[k] = v
			k++
		}
	}
	g.Value = dense[:k]
	return nil
}

func (m *FuncModel) Constraints(x []float64, c []float64) (err error) {
	defer guardEval(&err)
	if m.M == 0 {
		return nil
	}
	m.Cons(x[:m.N], c[:m.M])
	for j, v := range c[:m.M] {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: constraint %d is NaN", ErrEvaluation, j)
		}
	}
	return nil
}

func (m *FuncModel) ConstraintJacobian(x []float64, jac *Matrix) (err error) {
	defer guardEval(&err)
	jac.Reset(m.M, m.N)
	if m.M == 0 {
		return nil
	}
	if m.jac == nil {
		m.jac = make([]float64, m.M*m.N)
	}
	dense := m.jac
	if m.Jac != nil {
		for i := range dense {
			dense[i] = 0
		}
		m.Jac(x[:m.N], dense)
	} else if err := m.diffConstraints(x[:m.N], dense); err != nil {
		return err
	}
	for j := 0; j < m.M; j++ {
		row := jac.Row(j)
		for i, v := range dense[j*m.N : (j+1)*m.N] {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: jacobian (%d,%d) is NaN", ErrEvaluation, j, i)
			}
			if v != 0 {
				row.Append(i, v)
			}
		}
	}
	return nil
}

func (m *FuncModel) LagrangianHessian(x []float64, sigma float64, lambda []float64, h *SymMatrix) (err error) {
	defer guardEval(&err)
	h.Reset(m.N)
	if m.hess == nil {
		m.hess = make([]float64, m.N*m.N)
	}
	dense := m.hess
	if m.Hess != nil {
		for i := range dense {
			dense[i] = 0
		}
		m.Hess(x[:m.N], sigma, lambda, dense)
	} else if err := m.diffHessian(x[:m.N], sigma, lambda, dense); err != nil {
		return err
	}
	for i := 0; i < m.N; i++ {
		for j := 0; j <= i; j++ {
			v := dense[i*m.N+j]
			if math.IsNaN(v) {
				return fmt.Errorf("%w: hessian (%d,%d) is NaN", ErrEvaluation, i, j)
			}
			if v != 0 {
				h.Append(i, j, v)
			}
		}
	}
	return nil
}

func (m *FuncModel) diffObjective(x, g []float64) error {
	spec := numdiff.Spec{
		N: m.N, M: 1,
		Eval:   func(x, y []float64) { y[0] = m.Func(x) },
		Method: m.Diff,
		Lower:  m.Lower, Upper: m.Upper,
	}
	return spec.Diff(x, g)
}

func (m *FuncModel) diffConstraints(x, jac []float64) error {
	spec := numdiff.Spec{
		N: m.N, M: m.M,
		Eval:   func(x, y []float64) { m.Cons(x, y) },
		Method: m.Diff,
		Lower:  m.Lower, Upper: m.Upper,
	}
	return spec.Diff(x, jac)
}

// diffHessian differentiates the Lagrangian gradient. With callback
// gradients the result has ordinary forward-difference accuracy;
// stacking it on finite-difference gradients degrades to O(√ε) and is
// only fit for rough testing.
func (m *FuncModel) diffHessian(x []float64, sigma float64, lambda []float64, h []float64) error {
	if m.lag == nil {
		m.lag = make([]float64, m.N)
		m.conWork = make([]float64, m.M*(m.N+1))
	}
	lagGrad := func(x, g []float64) error {
		if m.Grad != nil {
			for i := range g {
				g[i] = 0
			}
			m.Grad(x, g)
		} else if err := m.diffObjective(x, g); err != nil {
			return err
		}
		if sigma != 1 {
			for i := range g {
				g[i] *= sigma
			}
		}
		if m.M == 0 {
			return nil
		}
		jac := m.conWork[:m.M*m.N]
		if m.Jac != nil {
			for i := range jac {
				jac[i] = 0
			}
			m.Jac(x, jac)
		} else if err := m.diffConstraints(x, jac); err != nil {
			return err
		}
		for j := 0; j < m.M; j++ {
			if lambda[j] == 0 {
				continue
			}
			for i := 0; i < m.N; i++ {
				g[i] -= lambda[j] * jac[j*m.N+i]
			}
		}
		return nil
	}
	var evalErr error
	spec := numdiff.Spec{
		N: m.N, M: m.N,
		Eval: func(x, y []float64) {
			if err := lagGrad(x, y); err != nil && evalErr == nil {
				evalErr = err
			}
		},
		Method: numdiff.Central,
		Lower:  m.Lower, Upper: m.Upper,
	}
	if err := spec.Diff(x, h); err != nil {
		return err
	}
	if evalErr != nil {
		return evalErr
	}
	// Symmetrize: finite differences of the gradient are not exactly
	// symmetric.
	for i := 0; i < m.N; i++ {
		for j := 0; j < i; j++ {
			v := (h[i*m.N+j] + h[j*m.N+i]) / 2
			h[i*m.N+j], h[j*m.N+i] = v, v
		}
	}
	return nil
}
