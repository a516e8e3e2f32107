// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"math"
)

// lsei solves 𝚖𝚒𝚗‖ 𝐄𝐱 - 𝐟 ‖₂ subject to 𝐂𝐱 = 𝐝 and 𝐆𝐱 ≥ 𝐡
// (Lawson & Hanson, Algorithm 20.24 and chapter 23 section 6).
//
// The equality constraints are eliminated first: Householder
// transformations 𝐊 triangularize 𝐂 from the right,
//
//	             mᶜ  n-mᶜ
//	            ┌┴┐  ┌┴┐
//	⎡ 𝐂 ⎤ 𝐊 = ⎡ 𝐂߬₁   ೦  ⎤ ]╴mᶜ       𝐱 = 𝐊⎡ 𝐲₁ ⎤ ]╴ mᶜ
//	⎥ 𝐄 ⎥     ⎥ 𝐄߬₁   𝐄߬₂ ⎥ ]╴mᵉ            ⎣ 𝐲₂ ⎦ ]╴ n-mᶜ
//	⎣ 𝐆 ⎦     ⎣ 𝐆߬₁   𝐆߬₂ ⎦ ]╴mᵍ
//
// so 𝐲߮₁ solves the triangular system 𝐂߬₁𝐲₁ = 𝐝 and 𝐲߮₂ solves the
// reduced LSI problem 𝚖𝚒𝚗‖ 𝐄߬₂𝐲₂ - (𝐟 - 𝐄߬₁𝐲߮₁) ‖₂ subject to
// 𝐆߬₂𝐲₂ ≥ 𝐡 - 𝐆߬₁𝐲߮₁ (or an unconstrained hfti solve when mᵍ = 0).
// The solution is 𝐱߮ = 𝐊[𝐲߮₁ 𝐲߮₂]ᵀ.
//
// Multipliers follow from the KKT conditions: the inequality
// multipliers 𝛌 come out of the ldp solve, and the equality
// multipliers are recovered by the back-substitution
// 𝛍 = (𝐂ᵀ)⁻¹[𝐄ᵀ(𝐄𝐱 - 𝐟) - 𝐆ᵀ𝛌].
//
// On return the multipliers are stored as 𝛍 = w[:mc] and
// 𝛌 = w[mc:mc+mg]. c, d, e, f, g, h are column-major with the given
// leading dimensions and are overwritten. w needs
// 2mc+me+(me+mg)(n-mc) + (n-mc+1)(mg+2)+2mg scratch and jw needs
// max(mg, min(me, n-mc)).
func lsei(
	c []float64, d []float64,
	e []float64, f []float64,
	g []float64, h []float64,
	lc, mc, le, me, lg, mg, n int,
	x []float64,
	w []float64,
	jw []int,
	maxIterLs int,
) (norm float64, mode lsMode) {

	if n < 1 || mc > n {
		return math.NaN(), lsBadArgument
	}

	if n > len(x) || mc > len(x) ||
		mc < 0 || mc > len(c) || mc > len(d) ||
		me < 0 || me > len(e) || me > len(f) ||
		mg < 0 || mg > len(g) || mg > len(h) {
		panic("bound check error")
	}

	l := n - mc
	// [mc] reserve for the equality multipliers
	iw := mc
	// [(l+1)×(mg+2)+2×mg] reserve for LSI
	ws := w[iw : iw+(l+1)*(mg+2)+2*mg]
	iw += len(ws)
	// [mc] store Householder pivots for 𝐊
	wp := w[iw : iw+mc]
	iw += len(wp)
	// [me × (n-mc)] store 𝐄߬₂
	we := w[iw : iw+me*l]
	iw += len(we)
	// [me] store (𝐟 - 𝐄߬₁𝐲߮₁)
	wf := w[iw : iw+me]
	iw += len(wf)
	// [mg × (n-mc)] store 𝐆߬₂
	wg := w[iw : iw+mg*l]

	if mc > len(wp) || me > len(wf) {
		panic("bound check error")
	}

	// Triangularize 𝐂 and apply the factors to 𝐄 and 𝐆
	for i := 0; i < mc; i++ {
		j := min(i+1, lc-1)
		wp[i] = h1(i, i+1, n, c[i:], lc)
		h2(i, i+1, n, c[i:], lc, wp[i], c[j:], lc, 1, mc-i-1) // 𝐂𝐊 = [𝐂߬₁ ೦]
		h2(i, i+1, n, c[i:], lc, wp[i], e, le, 1, me)         // 𝐄𝐊 = [𝐄߬₁ 𝐄߬₂]
		h2(i, i+1, n, c[i:], lc, wp[i], g, lg, 1, mg)         // 𝐆𝐊 = [𝐆߬₁ 𝐆߬₂]
	}

	// Solve the triangular system 𝐂߬₁𝐲₁ = 𝐝
	for i := 0; i < mc; i++ {
		diag := c[i+lc*i]
		if math.Abs(diag) < eps {
			return math.NaN(), lsSingularC // 𝚛𝚊𝚗𝚔(𝐂) < mc
		}
		x[i] = (d[i] - ddot(i, c[i:], lc, x, 1)) / diag // 𝐲߮₁ = 𝐂߬₁⁻¹𝐝
	}

	// first [mg] of working space stores the multipliers from ldp
	dzero(ws[:mg])

	if mc < n { // 𝚛𝚊𝚗𝚔(𝐂) < n
		for i := 0; i < me; i++ { // 𝐟 - 𝐄߬₁𝐲߮₁
			wf[i] = f[i] - ddot(mc, e[i:], le, x, 1)
		}

		if l > 0 {
			if me > len(we) || mg > len(wg) {
				panic("bound check error")
			}
			for i := 0; i < me; i++ { // 𝐄߬₂
				dcopy(l, e[i+le*mc:], le, we[i:], me)
			}
			for i := 0; i < mg; i++ { // 𝐆߬₂
				dcopy(l, g[i+lg*mc:], lg, wg[i:], mg)
			}
		}

		if mg > 0 {
			for i := 0; i < mg; i++ { // 𝐡 - 𝐆߬₁𝐲߮₁
				h[i] -= ddot(mc, g[i:], lg, x, 1)
			}
			// 𝐲߮₂ solves the reduced inequality-constrained problem.
			norm, mode = lsi(we, wf, wg, h, me, me, mg, mg, l, x[mc:n], ws, jw, maxIterLs)
			if mc == 0 {
				// The multipliers come back as 𝛌 = w[:mg]
				return
			}
			if mode != lsSolved {
				return math.NaN(), mode
			}
			t := dnrm2(mc, x, 1)
			norm = math.Sqrt(norm*norm + t*t)
		} else {
			k, t := max(le, n), sqrtEps
			var nrm [1]float64
			// 𝐲߮₂ solves the unconstrained 𝚖𝚒𝚗‖ 𝐄߬₂𝐲₂ - (𝐟 - 𝐄߬₁𝐲߮₁) ‖₂
			rank := hfti(we, me, me, l, wf, k, 1, t, nrm[:], w, w[l:], jw)
			norm = nrm[0]
			dcopy(l, wf, 1, x[mc:n], 1)
			if rank != l {
				return norm, lsRankDefect
			}
		}
	}
	for i := 0; i < me; i++ { // 𝐄𝐱 - 𝐟
		f[i] = ddot(n, e[i:], le, x, 1) - f[i]
	}
	for i := 0; i < mc; i++ { // 𝐄ᵀ(𝐄𝐱 - 𝐟) - 𝐆ᵀ𝛌
		d[i] = ddot(me, e[i*le:], 1, f, 1) -
			ddot(mg, g[i*lg:], 1, ws[:mg], 1)
	}
	for i := mc - 1; i >= 0; i-- { // 𝐱߮ = 𝐊[𝐲߮₁ 𝐲߮₂]ᵀ
		h2(i, i+1, n, c[i:], lc, wp[i], x, 1, 1, 1)
	}
	for i := mc - 1; i >= 0; i-- { // 𝛍 = (𝐂ᵀ)⁻¹[𝐄ᵀ(𝐄𝐱 - 𝐟) - 𝐆ᵀ𝛌]
		j := min(i+1, lc-1)
		w[i] = (d[i] - ddot(mc-i-1, c[j+lc*i:], 1, w[j:], 1)) / c[i+lc*i]
	}
	mode = lsSolved
	return
}

// lsi solves 𝚖𝚒𝚗‖ 𝐄𝐱 - 𝐟 ‖₂ subject to 𝐆𝐱 ≥ 𝐡 where 𝚛𝚊𝚗𝚔(𝐄) = n
// (Lawson & Hanson, chapter 23 section 5).
//
// A QR factorization 𝐐𝐄 = 𝐑 with 𝐐𝐟 = [𝐟߫₁ : 𝐟߫₂] and the change of
// variable 𝐳 = 𝐑𝐱 - 𝐟߫₁ turn the problem into the least-distance
// program 𝚖𝚒𝚗 ‖ 𝐳 ‖₂ subject to 𝐆𝐑⁻¹𝐳 ≥ 𝐡 - 𝐆𝐑⁻¹𝐟߫₁, solved by ldp.
// The residual norm is (‖ 𝐳 ‖₂² + ‖ 𝐟߫₂ ‖₂²)¹ᐟ².
func lsi(
	e []float64, f []float64,
	g []float64, h []float64,
	le, me, lg, mg, n int,
	x []float64,
	w []float64,
	jw []int,
	maxIterLs int) (xnorm float64, mode lsMode) {

	if n < 1 {
		return 0, lsBadArgument
	}

	// QR-factors of 𝐄 and application to 𝐟.
	for i := 0; i < n; i++ {
		j := min(i+1, n-1)
		t := h1(i, i+1, me, e[i*le:], 1)
		h2(i, i+1, me, e[i*le:], 1, t, e[j*le:], 1, le, n-i-1) // 𝐐𝐄 = 𝐑 (triangular)
		h2(i, i+1, me, e[i*le:], 1, t, f, 1, 1, 1)             // 𝐐𝐟 = [ 𝐟߫₁ : 𝐟߫₂ ]
	}

	// Transform 𝐆 and 𝐡 to get the least-distance program.
	for i := 0; i < mg; i++ {
		for j := 0; j < n; j++ {
			diag := e[j+le*j]
			if math.Abs(diag) < eps || math.IsNaN(diag) {
				return math.NaN(), lsSingularE // 𝚛𝚊𝚗𝚔(𝐄) < n
			}
			// 𝐆𝐑⁻¹
			g[i+lg*j] = (g[i+lg*j] - ddot(j, g[i:], lg, e[j*le:], 1)) / diag
		}
		h[i] -= ddot(n, g[i:], lg, f, 1) //  𝐡 - 𝐆𝐑⁻¹𝐟߫₁
	}

	// Solve the least-distance program.
	if xnorm, mode = ldp(mg, n, g, lg, h, x, w, jw, maxIterLs); mode == lsSolved {
		daxpy(n, one, f, 1, x, 1) // 𝐳 + 𝐟߫₁
		for i := n - 1; i >= 0; i-- {
			j := min(i+1, n-1) // 𝐑⁻¹(𝐳 + 𝐟߫₁)
			x[i] = (x[i] - ddot(n-i-1, e[i+le*j:], le, x[j:], 1)) / e[i+le*i]
		}
		j := min(n, me-1)
		t := dnrm2(me-n, f[j:], 1)           // ‖ 𝐟߫₂ ‖₂
		xnorm = math.Sqrt(xnorm*xnorm + t*t) // (‖ 𝐳 ‖₂² + ‖ 𝐟߫₂ ‖₂²)¹ᐟ²
	}
	return
}
