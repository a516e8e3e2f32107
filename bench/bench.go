// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bench catalogs classic constrained test problems for the
// solver tests and the command-line runner.
package bench

import (
	"math"
	"sort"

	"github.com/curioloop/nlsolve/nlp"
)

// Problem bundles a model factory with its starting point and, when
// known, the optimum. Model returns a fresh instance per call because
// a FuncModel owns scratch storage and must not be shared between
// concurrent fits.
type Problem struct {
	Name  string
	Model func() *nlp.FuncModel
	X0    []float64

	// X and F are the known solution; X is nil when the optimal set is
	// not a single point and F is NaN when the problem is infeasible.
	X []float64
	F float64

	Feasible bool
}

// Lookup returns a fresh copy of the named problem.
func Lookup(name string) (*Problem, bool) {
	build, ok := catalog[name]
	if !ok {
		return nil, false
	}
	p := build()
	p.Name = name
	return p, true
}

// Names lists the catalog in lexical order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var catalog = map[string]func() *Problem{
	"hs071":         newHS071,
	"hs014":         newHS014,
	"rosenbrock":    newRosenbrock,
	"colville":      newColville,
	"maratos":       newMaratos,
	"degenerate-lp": newDegenerateLP,
	"infeasible-lp": newInfeasibleLP,
	"box-qp":        newBoxQP,
}

// newHS071 is Hock-Schittkowski 71:
//
//	𝚖𝚒𝚗 x₁x₄(x₁+x₂+x₃) + x₃
//	s.t. x₁x₂x₃x₄ ≥ 25,  ‖x‖² = 40,  1 ≤ x ≤ 5
func newHS071() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 4, M: 2,
				Lower:           []float64{1, 1, 1, 1},
				Upper:           []float64{5, 5, 5, 5},
				ConstraintLower: []float64{25, 40},
				ConstraintUpper: []float64{math.Inf(1), 40},
				Func: func(x []float64) float64 {
					return x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2]
				},
				Grad: func(x, g []float64) {
					g[0] = x[3] * (2*x[0] + x[1] + x[2])
					g[1] = x[0] * x[3]
					g[2] = x[0]*x[3] + 1
					g[3] = x[0] * (x[0] + x[1] + x[2])
				},
				Cons: func(x, c []float64) {
					c[0] = x[0] * x[1] * x[2] * x[3]
					c[1] = x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3]
				},
				Jac: func(x, jac []float64) {
					jac[0], jac[1], jac[2], jac[3] = x[1]*x[2]*x[3], x[0]*x[2]*x[3], x[0]*x[1]*x[3], x[0]*x[1]*x[2]
					jac[4], jac[5], jac[6], jac[7] = 2*x[0], 2*x[1], 2*x[2], 2*x[3]
				},
				Hess: func(x []float64, sigma float64, lambda, h []float64) {
					add := func(i, j int, v float64) {
						h[i*4+j] += v
						if i != j {
							h[j*4+i] += v
						}
					}
					add(0, 0, sigma*2*x[3])
					add(1, 0, sigma*x[3])
					add(2, 0, sigma*x[3])
					add(3, 0, sigma*(2*x[0]+x[1]+x[2]))
					add(3, 1, sigma*x[0])
					add(3, 2, sigma*x[0])
					l := -lambda[0]
					add(1, 0, l*x[2]*x[3])
					add(2, 0, l*x[1]*x[3])
					add(3, 0, l*x[1]*x[2])
					add(2, 1, l*x[0]*x[3])
					add(3, 1, l*x[0]*x[2])
					add(3, 2, l*x[0]*x[1])
					for i := 0; i < 4; i++ {
						add(i, i, -2*lambda[1])
					}
				},
			}
		},
		X0:       []float64{1, 5, 5, 1},
		X:        []float64{1, 4.7429994, 3.8211503, 1.3794082},
		F:        17.0140173,
		Feasible: true,
	}
}

// newHS014 is Hock-Schittkowski 14, one linear equality and one convex
// inequality with solution x = ((√7−1)/2, (√7+1)/4).
func newHS014() *Problem {
	s := math.Sqrt(7)
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 2, M: 2,
				ConstraintLower: []float64{0, 0},
				ConstraintUpper: []float64{0, math.Inf(1)},
				Func: func(x []float64) float64 {
					a, b := x[0]-2, x[1]-1
					return a*a + b*b
				},
				Grad: func(x, g []float64) {
					g[0], g[1] = 2*(x[0]-2), 2*(x[1]-1)
				},
				Cons: func(x, c []float64) {
					c[0] = x[0] - 2*x[1] + 1
					c[1] = -x[0]*x[0]/4 - x[1]*x[1] + 1
				},
				Jac: func(x, jac []float64) {
					jac[0], jac[1] = 1, -2
					jac[2], jac[3] = -x[0]/2, -2*x[1]
				},
				Hess: func(x []float64, sigma float64, lambda, h []float64) {
					h[0] = 2*sigma + lambda[1]/2
					h[3] = 2*sigma + 2*lambda[1]
				},
			}
		},
		X0:       []float64{2, 2},
		X:        []float64{(s - 1) / 2, (s + 1) / 4},
		F:        9 - 2.875*s,
		Feasible: true,
	}
}

func newRosenbrock() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 2,
				Func: func(x []float64) float64 {
					a, b := 1-x[0], x[1]-x[0]*x[0]
					return a*a + 100*b*b
				},
				Grad: func(x, g []float64) {
					b := x[1] - x[0]*x[0]
					g[0] = -2*(1-x[0]) - 400*x[0]*b
					g[1] = 200 * b
				},
				Hess: func(x []float64, sigma float64, lambda, h []float64) {
					h[0] = sigma * (2 + 1200*x[0]*x[0] - 400*x[1])
					h[1] = sigma * -400 * x[0]
					h[2] = h[1]
					h[3] = sigma * 200
				},
			}
		},
		X0:       []float64{-1.2, 1},
		X:        []float64{1, 1},
		F:        0,
		Feasible: true,
	}
}

// newColville is Hock-Schittkowski 38, a bounds-only quartic whose
// narrow curved valley exercises the quasi-Newton update.
func newColville() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N:     4,
				Lower: []float64{-10, -10, -10, -10},
				Upper: []float64{10, 10, 10, 10},
				Func: func(x []float64) float64 {
					a, b := x[1]-x[0]*x[0], 1-x[0]
					c, d := x[3]-x[2]*x[2], 1-x[2]
					e, f := x[1]-1, x[3]-1
					return 100*a*a + b*b + 90*c*c + d*d +
						10.1*(e*e+f*f) + 19.8*e*f
				},
				Grad: func(x, g []float64) {
					a, c := x[1]-x[0]*x[0], x[3]-x[2]*x[2]
					g[0] = -400*x[0]*a - 2*(1-x[0])
					g[1] = 200*a + 20.2*(x[1]-1) + 19.8*(x[3]-1)
					g[2] = -360*x[2]*c - 2*(1-x[2])
					g[3] = 180*c + 20.2*(x[3]-1) + 19.8*(x[1]-1)
				},
			}
		},
		X0:       []float64{-3, -1, -3, -1},
		X:        []float64{1, 1, 1, 1},
		F:        0,
		Feasible: true,
	}
}

// newMaratos is the Maratos-effect example: the full SQP step toward
// (1,0) on the unit circle increases both the objective and the
// violation, punishing strategies without a correction mechanism.
func newMaratos() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 2, M: 1,
				ConstraintLower: []float64{1}, ConstraintUpper: []float64{1},
				Func: func(x []float64) float64 {
					return 2*(x[0]*x[0]+x[1]*x[1]-1) - x[0]
				},
				Grad: func(x, g []float64) {
					g[0], g[1] = 4*x[0]-1, 4*x[1]
				},
				Cons: func(x, c []float64) {
					c[0] = x[0]*x[0] + x[1]*x[1]
				},
				Jac: func(x, jac []float64) {
					jac[0], jac[1] = 2*x[0], 2*x[1]
				},
				Hess: func(x []float64, sigma float64, lambda, h []float64) {
					h[0] = 4*sigma - 2*lambda[0]
					h[3] = 4*sigma - 2*lambda[0]
				},
			}
		},
		X0:       []float64{0.8, 0.6},
		X:        []float64{1, 0},
		F:        -1,
		Feasible: true,
	}
}

// newDegenerateLP has a whole optimal face, so the simplex lands on an
// arbitrary vertex of it.
func newDegenerateLP() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 2, M: 1,
				Lower:           []float64{0, 0},
				ConstraintLower: []float64{1}, ConstraintUpper: []float64{math.Inf(1)},
				Func: func(x []float64) float64 { return x[0] + x[1] },
				Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
				Cons: func(x, c []float64) { c[0] = x[0] + x[1] },
				Jac:  func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
				Hess: func(x []float64, sigma float64, lambda, h []float64) {},
			}
		},
		X0:       []float64{3, 2},
		F:        1,
		Feasible: true,
	}
}

// newInfeasibleLP demands x ≥ 1 and x ≤ 0 at once.
func newInfeasibleLP() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N: 1, M: 2,
				ConstraintLower: []float64{1, math.Inf(-1)},
				ConstraintUpper: []float64{math.Inf(1), 0},
				Func:            func(x []float64) float64 { return x[0] },
				Grad:            func(x, g []float64) { g[0] = 1 },
				Cons:            func(x, c []float64) { c[0], c[1] = x[0], x[0] },
				Jac:             func(x, jac []float64) { jac[0], jac[1] = 1, 1 },
				Hess:            func(x []float64, sigma float64, lambda, h []float64) {},
			}
		},
		X0: []float64{0.5},
		F:  math.NaN(),
	}
}

// newBoxQP is 𝚖𝚒𝚗 ½x² on 1 ≤ x ≤ 2 with the lower bound active.
func newBoxQP() *Problem {
	return &Problem{
		Model: func() *nlp.FuncModel {
			return &nlp.FuncModel{
				N:     1,
				Lower: []float64{1}, Upper: []float64{2},
				Func: func(x []float64) float64 { return x[0] * x[0] / 2 },
				Grad: func(x, g []float64) { g[0] = x[0] },
				Hess: func(x []float64, sigma float64, lambda, h []float64) { h[0] = sigma },
			}
		},
		X0:       []float64{1.5},
		X:        []float64{1},
		F:        0.5,
		Feasible: true,
	}
}
