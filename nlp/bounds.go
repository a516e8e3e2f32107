// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"
	"math"
)

// Bounds pairs lower and upper bound vectors of equal length.
// Absent bounds are ±Inf. A pair with Lower[i] == Upper[i] is an
// equality.
type Bounds struct {
	Lower, Upper []float64
}

// NewBounds returns free bounds of length n.
func NewBounds(n int) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := 0; i < n; i++ {
		b.Lower[i] = math.Inf(-1)
		b.Upper[i] = math.Inf(1)
	}
	return b
}

// Len returns the number of bound pairs.
func (b Bounds) Len() int { return len(b.Lower) }

// Check reports mismatched lengths, NaN entries and crossed pairs.
func (b Bounds) Check() error {
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("nlp: bound lengths %d != %d", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		l, u := b.Lower[i], b.Upper[i]
		if math.IsNaN(l) || math.IsNaN(u) {
			return fmt.Errorf("nlp: bound %d is NaN", i)
		}
		if l > u {
			return fmt.Errorf("nlp: bound %d crossed: %g > %g", i, l, u)
		}
	}
	return nil
}

// IsEquality reports whether pair i fixes its value.
func (b Bounds) IsEquality(i int) bool { return b.Lower[i] == b.Upper[i] }

// Project clips x into the bounds in place.
func (b Bounds) Project(x []float64) {
	for i := range x {
		x[i] = math.Min(math.Max(x[i], b.Lower[i]), b.Upper[i])
	}
}

// Violation returns the 1-norm of the bound violation of v.
func (b Bounds) Violation(v []float64) float64 {
	var s float64
	for i, x := range v {
		if d := b.Lower[i] - x; d > 0 {
			s += d
		} else if d := x - b.Upper[i]; d > 0 {
			s += d
		}
	}
	return s
}

// MaxViolation returns the ∞-norm of the bound violation of v.
func (b Bounds) MaxViolation(v []float64) float64 {
	var s float64
	for i, x := range v {
		if d := b.Lower[i] - x; d > s {
			s = d
		} else if d := x - b.Upper[i]; d > s {
			s = d
		}
	}
	return s
}

// IndexSets groups indices by which sides of their bounds are finite.
// SingleLower and SingleUpper hold indices bounded on exactly one
// side; equalities appear in both LowerBounded and UpperBounded.
type IndexSets struct {
	LowerBounded []int
	UpperBounded []int
	SingleLower  []int
	SingleUpper  []int
}

// Sets classifies all bound pairs.
func (b Bounds) Sets() IndexSets {
	var s IndexSets
	for i := range b.Lower {
		fl := !math.IsInf(b.Lower[i], -1)
		fu := !math.IsInf(b.Upper[i], 1)
		if fl {
			s.LowerBounded = append(s.LowerBounded, i)
		}
		if fu {
			s.UpperBounded = append(s.UpperBounded, i)
		}
		if fl && !fu {
			s.SingleLower = append(s.SingleLower, i)
		}
		if fu && !fl {
			s.SingleUpper = append(s.SingleUpper, i)
		}
	}
	return s
}

// SplitEqualities partitions indices into equality and inequality
// pairs, each in increasing order.
func (b Bounds) SplitEqualities() (eq, ineq []int) {
	for i := range b.Lower {
		if b.IsEquality(i) {
			eq = append(eq, i)
		} else {
			ineq = append(ineq, i)
		}
	}
	return eq, ineq
}
