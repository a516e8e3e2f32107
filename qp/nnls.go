// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import (
	"math"
)

// lsMode is the outcome of a kernel in the least-squares chain.
type lsMode int

const (
	lsOK lsMode = iota
	// lsSolved problem solved successfully.
	lsSolved
	// lsBadArgument input dimension unacceptable.
	lsBadArgument
	// lsExceedMaxIter more than max iterations for solving NNLS.
	lsExceedMaxIter
	// lsIncompatible inequality constraints incompatible.
	lsIncompatible
	// lsSingularE matrix E is not of full rank in LSI.
	lsSingularE
	// lsSingularC matrix C is not of full rank in LSEI.
	lsSingularC
	// lsRankDefect rank-deficient equality constraint in HFTI.
	lsRankDefect
)

// nnls solves 𝚖𝚒𝚗 ‖ 𝐀𝐱 - 𝐛 ‖₂ subject to 𝐱 ≥ 0 with the active-set
// method of Lawson & Hanson (Algorithm 23.10).
//
// Two index sets partition the variables:
//   - 𝐱ⱼ = 0, j ∈ ℤ : held at zero
//   - 𝐱ⱼ > 0, j ∈ ℙ : free to take any positive value
//
// Each outer pass moves the most promising index from ℤ to ℙ, keeps a
// QR factorization 𝐐𝐀ₖ = [𝐑ₖᵀ:O]ᵀ of the passive columns updated by
// Householder transformations, and solves the unconstrained
// least-squares problem on ℙ. When a free coefficient turns negative
// the inner loop interpolates back to the feasible boundary and
// downdates the factorization with Givens rotations.
//
// Optimality is the Kuhn-Tucker condition on the dual
// 𝐰 = 𝐀ᵀ(𝐛 - 𝐀𝐱): 𝐰ⱼ = 0 ∀j ∈ ℙ and 𝐰ⱼ ≤ 0 ∀j ∈ ℤ.
//
// a initially holds the m × n column-major matrix 𝐀 (any rank, m ≥ n
// or m < n) and b the m-vector 𝐛; both are overwritten by the products
// 𝐐𝐀 and 𝐐𝐛. On success x holds the primal solution and w the dual
// vector, and the returned scalar is ‖ 𝐐ᵀ𝐛₂ ‖₂, the residual norm.
func nnls(
	m, n int,
	a []float64, mda int,
	b []float64,
	x []float64,
	w []float64,
	z []float64, index []int,
	maxIter int) (float64, lsMode) {

	const factor = 0.01

	if m <= 0 || n <= 0 || mda < m ||
		len(a) < mda*n || len(b) < m || len(x) < n || len(w) < n || len(z) < m || len(index) < n {
		return math.NaN(), lsBadArgument
	}

	if maxIter <= 0 {
		maxIter = 3 * n
	}

	np := 0 // num of elem in set ℙ
	z1 := 0 // start index of set ℤ

	// index = ℙ ∪ ℤ = {1,···,n}
	// ℙ = index[:np] define the subset columns of 𝐀
	// ℤ = index[z1:]
	index = index[:n]
	for i := range index {
		index[i] = i
	}

	// Start from 𝐱 = O and all indices initially in ℤ.
	dzero(x[:n])

	iter := 0
	term := func() (rnorm float64, mode lsMode) {
		if np < m { // m > 𝚛𝚊𝚗𝚔(𝐀)
			rnorm = dnrm2(m-np, b[np:], 1) // ‖ 𝐐ᵀ𝐛₂ ‖₂
		} else {
			dzero(w[:n])
		}
		if iter > maxIter {
			mode = lsExceedMaxIter
		} else {
			mode = lsSolved
		}
		return
	}

	// The main loop continues until no more active constraints can be
	// set free.
	for {
		if z1 >= n || // Quit if ℤ = ∅ (𝐱 ≥ 0),
			np >= m { // or if m columns of 𝐀 have been triangularized.
			return term()
		}

		// Dual vector 𝐰 = 𝐀ᵀ(𝐛 - 𝐀𝐱). Since 𝐰ⱼ = 0 for j ∈ ℙ and
		// 𝐱ⱼ = 0 for j ∈ ℤ, the update reduces to 𝐰 = 𝐀ᵀ𝐛 on ℤ.
		for _, j := range index[z1:] {
			w[j] = ddot(m-np, a[np+mda*j:], 1, b[np:], 1)
		}

		for {
			// Find index t ∈ ℤ such that 𝐰ₜ = 𝚊𝚛𝚐𝚖𝚊𝚡 { 𝐰ⱼ: j ∈ ℤ }
			wmax, izmax := zero, 0
			for i, j := range index[z1:] {
				if w[j] > wmax {
					wmax, izmax = w[j], z1+i
				}
			}

			// 𝐰ⱼ ≤ 0 ∀j ∈ ℤ means the Kuhn-Tucker conditions hold.
			if wmax <= zero {
				return term()
			}

			// Move index t from ℤ to ℙ
			iz := izmax
			j := index[iz]
			aj := a[mda*j : mda*j+m : mda*j+m]

			// Householder vector 𝐮 for the j-th column of 𝐀.
			asave := aj[np]
			up := h1(np, np+1, m, aj, 1)

			// Check the new diagonal element to avoid near linear
			// dependence.
			accept := false
			unorm := dnrm2(np, aj, 1)
			if math.Abs(aj[np])*factor >= unorm*eps {
				// Column j sufficiently independent: apply the
				// transformation to 𝐛 and test the proposed new 𝐱ⱼ.
				copy(z[:m], b[:m])
				h2(np, np+1, m, aj, 1, up, z, 1, 1, 1)
				ztest := z[np] / aj[np]
				accept = ztest > zero
			}

			if !accept {
				// Reject j, restore the column and test the duals again.
				aj[np] = asave
				w[j] = zero
				continue
			}

			// Index j is selected. Update b = 𝐐𝐛.
			copy(b[:m], z[:m])

			// Move j from ℤ to ℙ.
			index[iz] = index[z1]
			index[z1] = j
			z1++
			np++

			// Apply the transformation to the columns remaining in ℤ.
			if z1 < n {
				for _, jj := range index[z1:] {
					h2(np-1, np, m, aj, 1, up, a[jj*mda:], 1, mda, 1)
				}
			}
			// Zero sub-diagonal elements in column j.
			if np < m {
				dzero(aj[np:m])
			}
			w[j] = zero
			break
		}

		// With j joined to ℙ the free coefficients of the unconstrained
		// solution may turn negative. The inner loop continues until
		// all violating variables have been moved back to ℤ.
		for {
			// Solve the triangular system 𝐑ₖ𝐳 = 𝐐𝐛 on ℙ.
			for ip, jj := np-1, -1; ip >= 0; ip-- {
				if jj >= 0 {
					daxpy(ip+1, -z[ip+1], a[jj*mda:], 1, z, 1)
				}
				jj = index[ip]
				z[ip] /= a[ip+jj*mda]
			}

			if iter++; iter > maxIter {
				return term()
			}

			// Find index t ∈ ℙ such that
			// 𝐱ₜ/(𝐱ₜ-𝐳ₜ) = 𝚊𝚛𝚐𝚖𝚒𝚗 { 𝐱ⱼ/(𝐱ⱼ-𝐳ⱼ) : 𝐳ⱼ ≤ 0, j ∈ ℙ }
			alpha, jj := two, -1
			for ip, l := range index[:np] {
				if z[ip] <= zero {
					t := -x[l] / (z[ip] - x[l])
					if alpha > t {
						alpha, jj = t, ip
					}
				}
			}

			// All coefficients feasible: adopt 𝐳 and return to the
			// main loop.
			if jj < 0 {
				for ip, idx := range index[:np] {
					x[idx] = z[ip]
				}
				break
			}

			// Interpolate 𝐱 = 𝐱 + ɑ(𝐳 - 𝐱)
			for ip, l := range index[:np] {
				x[l] += alpha * (z[ip] - x[l])
			}

			// Move coefficient i from ℙ to ℤ, downdating the
			// factorization with Givens rotations.
			i := index[jj]
			for {
				x[i] = zero
				if jj++; jj < np {
					for j := jj; j < np; j++ {
						ii := index[j]
						ci := a[ii*mda:]
						index[j-1] = ii
						var cc, ss float64
						cc, ss, ci[j-1] = g1(ci[j-1], ci[j])
						ci[j] = zero
						for l := 0; l < n; l++ {
							if l != ii {
								cl := a[l*mda : l*mda+j+1 : l*mda+j+1]
								cl[j-1], cl[j] = g2(cc, ss, cl[j-1], cl[j])
							}
						}
						b[j-1], b[j] = g2(cc, ss, b[j-1], b[j])
					}
				}

				np--
				z1--
				index[z1] = i

				// The remaining coefficients in ℙ should be feasible by
				// the choice of ɑ; any non-positive ones are round-off
				// and would be zeroed on the next pass.
				break
			}

			// Copy b into z, solve again and loop back.
			copy(z[:m], b[:m])
		}
	}
}
