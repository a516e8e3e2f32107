// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import "math"

// Elementary orthogonal transformations of Lawson & Hanson,
// 'Solving least squares problems', chapters 3 and 10. They operate on
// strided columns so the same code serves row- and column-oriented
// panels in the least-squares chain.

// h1 constructs a Householder vector u and pivot scalar for the
// transformation Qv ≡ y that zeroes the entries of v indexed from l₁
// through m, leaving the pivot entry p untouched below s.
// The matrix is Q = Iₘ − b⁻¹uuᵀ with b = s·uₚ.
//
// On input v contains the pivot vector with storage increment ive; on
// output it holds the quantities defining u, with uₚ returned
// separately.
func h1(p, l, m int, v []float64, ive int) (up float64) {

	// Check 0 ≤ p < l₁ ≤ m-1
	if p < 0 || p >= l || l >= m {
		return
	}

	lp := uint(p * ive)
	l1 := uint(l * ive)
	lm := uint((m - 1) * ive)
	lv := uint(len(v))
	if m < 0 || ive <= 0 || lp >= lv || l1 >= lv || lm >= lv {
		panic("bound check error")
	}

	// Find max(v)
	maxV := math.Abs(v[lp])
	for j := l1; j <= lm; j += uint(ive) {
		maxV = math.Max(math.Abs(v[j]), maxV)
	}
	if maxV <= zero { // v is zero vector
		return
	}

	// Compute (vₚ² + ∑vᵢ²)¹ᐟ² (l ≤ i < m) with normalized v
	invV := one / maxV
	sumV := math.Pow(v[lp]*invV, 2)
	for j := l1; j <= lm; j += uint(ive) {
		sumV += math.Pow(v[j]*invV, 2)
	}

	// s = -σ(vₚ² + ∑vᵢ²)¹ᐟ² where σ = sgn(vₚ)
	s := maxV * math.Sqrt(sumV)
	if v[lp] > zero {
		s = -s
	}

	up = v[lp] - s // uₚ = vₚ - s
	v[lp] = s      // yₚ = s
	return
}

// h2 applies the Householder transformation Qc = c + b⁻¹(uᵀc)·u built
// by h1 to ncv vectors stored in c, with element increment ice and
// vector increment icv.
func h2(p, l, m int,
	u []float64,
	iue int,
	up float64,
	c []float64,
	ice, icv, ncv int) {

	// Check 0 ≤ p < l₁ ≤ m-1
	if p < 0 || p >= l || l >= m || ncv <= 0 {
		return
	}

	b := u[p*iue] * up // b = s·uₚ
	if b >= zero {
		// Q = Iₘ when b = 0
		return
	}

	b = one / b
	base := uint(ice * p)
	incr := uint(ice * (l - p))

	l1 := uint(l * iue)
	lm := uint((m - 1) * iue)
	lu := uint(len(u))
	lc := uint(len(c))
	ln := base + uint(icv)*(uint(ncv)-1)
	if m < 0 || iue <= 0 || l1 >= lu || lm >= lu || base >= lc || ln >= lc {
		panic("bound check error")
	}

	for j := base; j <= ln; j += uint(icv) {
		// The j-th column vector c = Cᵀⱼ
		c1, cm := j+incr, (j+incr)+uint(m-l-1)*uint(ice)
		if c1 >= lc || cm >= lc {
			panic("bound check error")
		}
		// uᵀc = uₚcₚ + ∑cᵢuᵢ (l ≤ i < m)
		sm := c[j] * up
		for iu, ic := l1, c1; iu <= lm && ic <= cm; {
			sm += c[ic] * u[iu]
			ic += uint(ice)
			iu += uint(iue)
		}
		if sm != zero {
			sm *= b // b⁻¹(uᵀc)
			c[j] += sm * up
			for iu, ic := l1, c1; iu <= lm && ic <= cm; {
				c[ic] += sm * u[iu]
				ic += uint(ice)
				iu += uint(iue)
			}
		}
	}
}

// g1 computes the 2×2 Givens rotation
//
//	G ⎡x₁⎤ ≡ ⎡ c s⎤⎡x₁⎤ = ⎡(x₁²+x₂²)¹ᐟ²⎤ ≡ ⎡r⎤
//	  ⎣x₂⎦   ⎣-s c⎦⎣x₂⎦   ⎣     ０     ⎦   ⎣0⎦
func g1(a, b float64) (c, s, sig float64) {
	var xr, yr float64
	if xa, xb := math.Abs(a), math.Abs(b); xa > xb {
		xr = b / a
		yr = math.Sqrt(1 + xr*xr)
		c = math.Copysign(1/yr, a)
		s = c * xr
		sig = xa * yr
	} else if xb > 0 {
		xr = a / b
		yr = math.Sqrt(1 + xr*xr)
		s = math.Copysign(1/yr, b)
		c = s * xr
		sig = xb * yr
	} else {
		s = 1
	}
	return
}

// g2 applies the rotation computed by g1 to the pair (x, y).
func g2(c, s float64, x, y float64) (xr, yr float64) {
	xr = c*x + s*y
	yr = -s*x + c*y
	return
}
