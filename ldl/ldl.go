// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ldl factors dense symmetric indefinite matrices as 𝐊 = 𝐋𝐃𝐋ᵀ
// and reports the inertia of 𝐃, which interior-point methods use to
// steer their regularization.
package ldl

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned by Solve when the factorization met a zero
// pivot.
var ErrSingular = errors.New("ldl: matrix is singular")

// Solver factors symmetric indefinite systems and reports inertia.
type Solver interface {
	// Analyze prepares the workspace for systems of order n with about
	// nnz nonzero entries. Dense implementations may ignore nnz.
	Analyze(n, nnz int)
	// Factorize computes 𝐊 = 𝐋𝐃𝐋ᵀ. A zero pivot is not an error: it
	// shows up as a zero eigenvalue in Inertia and poisons only Solve.
	Factorize(k *mat.SymDense) error
	// Inertia reports the signs of 𝐃 from the last Factorize.
	Inertia() (pos, neg, zero int)
	// Solve computes dst = 𝐊⁻¹rhs from the last factorization.
	Solve(rhs, dst []float64) error
}

// Dense is an unpivoted dense LDLᵀ. Without pivoting the inertia is
// only trustworthy when the natural order keeps the leading principal
// minors away from zero, which holds for the quasi-definite augmented
// systems the interior-point method assembles (positive definite
// leading block, negative definite trailing block). A pivot smaller
// than the relative tolerance is treated as an exact zero eigenvalue
// and its column is dropped from the factor.
type Dense struct {
	n int

	// 𝐋 with 𝐃 on the diagonal, lower triangle packed by columns:
	// column j occupies n-j entries starting at its diagonal.
	l []float64

	pos, neg, zero int
	y              []float64
}

// NewDense returns an empty factorization.
func NewDense() *Dense { return &Dense{} }

// Analyze implements Solver. nnz is ignored.
func (d *Dense) Analyze(n, _ int) {
	d.n = n
	nl := n * (n + 1) / 2
	if cap(d.l) < nl {
		d.l = make([]float64, nl)
	}
	if cap(d.y) < n {
		d.y = make([]float64, n)
	}
	d.pos, d.neg, d.zero = 0, 0, 0
}

// Factorize implements Solver.
func (d *Dense) Factorize(k *mat.SymDense) error {
	n := k.SymmetricDim()
	if n != d.n {
		d.Analyze(n, 0)
	}
	nl := n * (n + 1) / 2
	l := d.l[:nl]

	// Copy the lower triangle and find the magnitude scale.
	scale := 0.0
	for j := 0; j < n; j++ {
		bj := j*n - j*(j-1)/2
		for i := j; i < n; i++ {
			v := k.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("ldl: matrix contains NaN or Inf")
			}
			l[bj+(i-j)] = v
			if a := math.Abs(v); a > scale {
				scale = a
			}
		}
	}
	tol := macheps * math.Max(1, scale)

	d.pos, d.neg, d.zero = 0, 0, 0
	for j := 0; j < n; j++ {
		bj := j*n - j*(j-1)/2
		for c := 0; c < j; c++ {
			bc := c*n - c*(c-1)/2
			ljc := l[bc+(j-c)]
			if ljc == 0 {
				continue
			}
			w := ljc * l[bc] // 𝐋ⱼₖ𝐃ₖ
			for i := j; i < n; i++ {
				l[bj+(i-j)] -= w * l[bc+(i-c)]
			}
		}
		switch dj := l[bj]; {
		case math.Abs(dj) <= tol:
			// Zero eigenvalue: drop the column from the factor.
			d.zero++
			l[bj] = 0
			for i := j + 1; i < n; i++ {
				l[bj+(i-j)] = 0
			}
		default:
			if dj > 0 {
				d.pos++
			} else {
				d.neg++
			}
			inv := 1 / dj
			for i := j + 1; i < n; i++ {
				l[bj+(i-j)] *= inv
			}
		}
	}
	return nil
}

// Inertia implements Solver.
func (d *Dense) Inertia() (pos, neg, zero int) {
	return d.pos, d.neg, d.zero
}

// Solve implements Solver: forward substitution 𝐋𝐲 = rhs, diagonal
// scaling, then back substitution 𝐋ᵀ(dst) = 𝐃⁻¹𝐲.
func (d *Dense) Solve(rhs, dst []float64) error {
	n := d.n
	if d.zero > 0 {
		return ErrSingular
	}
	if len(rhs) != n || len(dst) != n {
		return errors.New("ldl: dimension mismatch")
	}

	y := d.y[:n]
	copy(y, rhs)
	for j := 0; j < n; j++ {
		bj := j*n - j*(j-1)/2
		w := y[j]
		if w == 0 {
			continue
		}
		for i := j + 1; i < n; i++ {
			y[i] -= w * d.l[bj+(i-j)]
		}
	}
	for j := 0; j < n; j++ {
		bj := j*n - j*(j-1)/2
		y[j] /= d.l[bj]
	}
	for j := n - 1; j >= 0; j-- {
		bj := j*n - j*(j-1)/2
		w := y[j]
		for i := j + 1; i < n; i++ {
			w -= d.l[bj+(i-j)] * y[i]
		}
		y[j] = w
	}
	copy(dst, y)
	return nil
}

var macheps = math.Nextafter(1, 2) - 1
