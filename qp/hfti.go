// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qp

import "math"

// hfti solves the possibly rank-deficient least-squares problem
// 𝐀𝐗 ≅ 𝐁 by Householder forward triangulation with column
// interchanges (Lawson & Hanson, Algorithm 14.9).
//
// The routine factors 𝐐𝐀𝐏 = 𝐑 with column pivoting, determines the
// pseudo-rank k as the number of diagonal elements of 𝐑 exceeding tau
// in magnitude, forward-triangularizes the first k rows with a second
// Householder factor 𝐊 so [𝐑₁₁:𝐑₁₂]𝐊 = [𝐖:೦], and back-substitutes
// the triangular system 𝐖𝐲₁ = 𝐜₁. The minimum-length solution is
// 𝐱 = 𝐏𝐊[𝐖⁻¹𝐜₁ ೦]ᵀ.
//
// a initially holds the m × n column-major matrix 𝐀 with leading
// dimension mda (any rank, m ≥ n or m < n permitted) and is
// overwritten by the factorization data. b holds the m × nb right
// side 𝐁 and receives the n × nb solution 𝐗; when nb = 0 it is not
// referenced. norm receives the residual norm per right-side column.
// h, g and ip are scratch of length min(m,n) each (h needs n).
// The return value is the pseudo-rank.
func hfti(
	a []float64, mda, m, n int,
	b []float64, mdb, nb int,
	tau float64,
	norm []float64,
	h, g []float64, ip []int) int {

	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 {
		return 0
	}

	if n > len(h) || diag > len(h) || diag > len(ip) {
		panic("bound check error")
	}

	hmax := zero
	for j := 0; j < diag; j++ {
		// Update the squared column lengths and find lmax.
		lmax := j
		if j > 0 {
			v := math.NaN()
			for l := j; l < n; l++ {
				t := a[(j-1)+mda*l]
				if h[l] -= t * t; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
		}
		// Recompute from scratch when cancellation has eaten the
		// running column lengths.
		if j == 0 || factor*h[lmax] < hmax*eps {
			v := math.NaN()
			for l := j; l < n; l++ {
				sm := zero
				for _, t := range a[j+mda*l : m+mda*l] {
					sm += t * t
				}
				if h[l] = sm; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
			hmax = h[lmax]
		}

		// Column interchange 𝐏 if needed.
		ip[j] = lmax
		if ip[j] != j {
			c1, c2 := a[mda*j:mda*j+m], a[mda*lmax:mda*lmax+m]
			if m > len(c1) || m > len(c2) {
				panic("bound check error")
			}
			for i := 0; i < m; i++ {
				c1[i], c2[i] = c2[i], c1[i]
			}
			h[lmax] = h[j]
		}

		// Compute the j-th transformation and apply it to 𝐀 and 𝐁.
		i := min(j+1, n-1)
		h[j] = h1(j, j+1, m, a[mda*j:], 1)                          // 𝐐
		h2(j, j+1, m, a[mda*j:], 1, h[j], a[mda*i:], 1, mda, n-j-1) // 𝐑 = 𝐐𝐀𝐏
		h2(j, j+1, m, a[mda*j:], 1, h[j], b, 1, mdb, nb)            // 𝐂 = 𝐐𝐁
	}

	// Determine the pseudo-rank: k = 𝚖𝚊𝚡ⱼ |𝐑ⱼⱼ| > 𝛕
	k := diag
	for j := 0; j < diag; j++ {
		if math.Abs(a[j+mda*j]) <= tau {
			k = j
			break
		}
	}

	if k > len(a) || k > len(b) || k > len(g) || nb > len(norm) {
		panic("bound check error")
	}

	// Residual norms ‖𝐠₂‖ ≡ ‖𝐜₂‖
	for jb := 0; jb < nb; jb++ {
		sm := zero
		if k < m {
			for _, t := range b[mdb*jb+k : mdb*jb+m] {
				sm += t * t
			}
		}
		norm[jb] = math.Sqrt(sm)
	}

	if k > 0 {
		// If the pseudo-rank is less than n, compute the Householder
		// decomposition of the first k rows.
		if k < n {
			for i := k - 1; i >= 0; i-- {
				g[i] = h1(i, k, n, a[i:], mda)              // 𝐊
				h2(i, k, n, a[i:], mda, g[i], a, mda, 1, i) // 𝐑₁₁𝐊 = 𝐖
			}
		}

		for jb := 0; jb < nb; jb++ {
			cb := b[mdb*jb:]
			if k > len(cb) || n > len(cb) {
				panic("bound check error")
			}

			// Solve the k × k triangular system 𝐖𝐲₁ = 𝐜₁
			for i := k - 1; i >= 0; i-- {
				sm := zero
				for j := uint(i + 1); j < uint(k); j++ {
					sm += a[i+mda*int(j)] * cb[j]
				}
				cb[i] = (cb[i] - sm) / a[i+mda*i]
			}

			// Complete the solution vector.
			if k < n {
				dzero(cb[k:n]) // 𝐲₂ = O
				for i := 0; i < k; i++ {
					h2(i, k, n, a[i:], mda, g[i], cb, 1, mdb, 1) // 𝐊[𝐖⁻¹𝐜₁ ೦]ᵀ
				}
			}

			// Re-order by 𝐏 to obtain 𝐱.
			for j := diag - 1; j >= 0; j-- {
				if l := ip[j]; ip[j] != j {
					cb[l], cb[j] = cb[j], cb[l]
				}
			}
		}
	} else if nb > 0 {
		for jb := 0; jb < nb; jb++ {
			dzero(b[mdb*jb : mdb*jb+n])
		}
	}

	// The solution vectors 𝐗 are now in the first n rows of 𝐁.
	return k
}
