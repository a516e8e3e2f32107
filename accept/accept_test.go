// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accept

import (
	"testing"

	"github.com/curioloop/nlsolve/nlp"
)

var (
	_ Strategy = (*Merit)(nil)
	_ Strategy = (*Filter)(nil)
	_ Strategy = (*Funnel)(nil)
)

func progress(h, f float64) nlp.Progress {
	return nlp.Progress{Infeasibility: h, Objective: f}
}

func TestMeritMonotonicity(t *testing.T) {
	m := NewMerit()
	cur := progress(0.5, 10)
	m.Initialize(cur)

	// every accepted step satisfies actual ≥ c_A·predicted
	cases := []struct {
		trial     nlp.Progress
		predicted float64
		want      bool
	}{
		{progress(0.1, 9), 1.0, true},    // actual 1.4 ≥ 1e-4
		{progress(0.5, 10.5), 1.0, false}, // merit increased
		{progress(0.4, 10), -1.0, false}, // predicted ≤ 0 never accepts
		{progress(0.5, 9.9999999), 1.0, false},
	}
	for i, c := range cases {
		if got := m.IsAcceptable(cur, c.trial, c.predicted, 1); got != c.want {
			t.Fatalf("case %d: acceptable = %v", i, got)
		}
	}
}

func TestMeritFeasibilityDispatch(t *testing.T) {
	m := NewMerit()
	cur := progress(1.0, 5)
	m.Initialize(cur)

	// σ = 0 ignores the objective entirely
	if !m.IsAcceptable(cur, progress(0.5, 100), 0.5, 0) {
		t.Fatal("feasibility progress rejected")
	}
	if m.IsAcceptable(cur, progress(1.0, -100), 0.5, 0) {
		t.Fatal("stalled infeasibility accepted")
	}
}

func TestMeritFeasibilityAcceptable(t *testing.T) {
	m := NewMerit()
	m.Initialize(progress(1.0, 0))

	if !m.IsFeasibilityAcceptable(progress(1.0, 0), progress(0.4, 0)) {
		t.Fatal("improvement rejected")
	}
	// the smallest known infeasibility ratchets down
	if m.IsFeasibilityAcceptable(progress(1.0, 0), progress(0.6, 0)) {
		t.Fatal("worse than best known accepted")
	}
	if !m.IsFeasibilityAcceptable(progress(1.0, 0), progress(0.3, 0)) {
		t.Fatal("new best rejected")
	}
}

func TestFilterDomination(t *testing.T) {
	f := NewFilter()
	cur := progress(0.5, 10)
	f.Initialize(cur)

	// an h-type step (tiny predicted decrease) augments the filter
	// with the current pair
	if !f.IsAcceptable(cur, progress(0.3, 10.0001), 1e-9, 1) {
		t.Fatal("h-type step rejected")
	}
	if f.Size() != 1 {
		t.Fatalf("filter size = %d", f.Size())
	}

	// a later trial dominated by the stored pair (0.5, 10) is rejected
	cur2 := progress(0.3, 10.0001)
	if f.IsAcceptable(cur2, progress(0.9, 11), 1e-9, 1) {
		t.Fatal("dominated trial accepted")
	}

	// a trial beyond the upper bound is rejected outright
	if f.IsAcceptable(cur2, progress(1e6, -1e6), 1e-9, 1) {
		t.Fatal("trial above the upper bound accepted")
	}

	// f-type: large predicted decrease demands a matching actual one
	if f.IsAcceptable(cur2, progress(0.1, 10.0001), 5.0, 1) {
		t.Fatal("f-type step without objective decrease accepted")
	}
	if !f.IsAcceptable(cur2, progress(0.1, 5), 5.0, 1) {
		t.Fatal("genuine f-type step rejected")
	}

	f.Reset()
	if f.Size() != 0 {
		t.Fatal("reset kept filter entries")
	}
}

func TestFunnelShrink(t *testing.T) {
	f := NewFunnel()
	cur := progress(0.5, 10)
	f.Initialize(cur)
	w0 := f.Width()
	if w0 != 50 {
		t.Fatalf("initial width = %v", w0)
	}

	// h-type step shrinks the funnel toward the trial infeasibility
	if !f.IsAcceptable(cur, progress(0.2, 10), 1e-9, 1) {
		t.Fatal("h-type step rejected")
	}
	if f.Width() >= w0 {
		t.Fatalf("width did not shrink: %v", f.Width())
	}
	if want := (1-f.Kappa)*w0 + f.Kappa*0.2; f.Width() != want {
		t.Fatalf("width = %v, want %v", f.Width(), want)
	}

	// a trial outside the funnel is rejected regardless of objective
	if f.IsAcceptable(progress(0.2, 10), progress(f.Width()+1, -100), 1e-9, 1) {
		t.Fatal("trial outside the funnel accepted")
	}

	// f-type step leaves the funnel unchanged
	w1 := f.Width()
	if !f.IsAcceptable(progress(0.2, 10), progress(0.19, 5), 4.0, 1) {
		t.Fatal("f-type step rejected")
	}
	if f.Width() != w1 {
		t.Fatalf("f-type step moved the funnel: %v", f.Width())
	}
}

func TestArmijoRoundoffGuard(t *testing.T) {
	a := Armijo{DecreaseFraction: 1e-4, ProtectRoundoff: true}
	// an actual reduction of exactly zero passes once the guard covers
	// the demanded fraction
	if !a.Sufficient(0, 1e-11, 1) {
		t.Fatal("roundoff-sized prediction rejected")
	}
	b := Armijo{DecreaseFraction: 1e-4}
	if b.Sufficient(0, 1e-11, 1) {
		t.Fatal("unprotected test accepted zero reduction")
	}
}
