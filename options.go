// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

// Options selects the algorithmic ingredients and their parameters.
// Zero values select the documented defaults; New validates the
// combination and rejects unknown strategy names.
type Options struct {
	// Subproblem is one of "QP", "LP" or "primal_dual_interior_point".
	Subproblem string
	// Globalization is one of "merit", "filter" or "funnel".
	Globalization string
	// ConstraintRelaxation is "feasibility_restoration" or
	// "l1_relaxation". The interior-point subproblem carries its own
	// ℓ₁ restoration and pairs with "feasibility_restoration" only.
	ConstraintRelaxation string
	// HessianApproximation is "exact" or "damped_BFGS" (QP subproblem).
	HessianApproximation string
	// BarrierUpdate is "monotone" or "adaptive".
	BarrierUpdate string

	// Tolerance is the termination threshold ε on the scaled KKT
	// residuals. Default 1e-6.
	Tolerance float64
	// MaxIterations caps the outer iterations and is required.
	MaxIterations int
	// MaxSeconds caps the wall time, 0 means unlimited.
	MaxSeconds int64

	// InitialRadius and MinimumRadius frame the trust region of the
	// active-set subproblems. Defaults 10 and 1e-8.
	InitialRadius float64
	MinimumRadius float64

	// Barrier parameters of the interior-point subproblem; zero keeps
	// the subproblem default.
	BarrierInitialParameter       float64 // μ₀
	BarrierTauMin                 float64 // τ_min
	BarrierKSigma                 float64 // κ_σ of the multiplier reset
	BarrierRegularizationExponent float64 // κ in δ_c = μ^κ
	BarrierSmallDirectionFactor   float64 // κ_small
	BarrierPushToInteriorK1       float64
	BarrierPushToInteriorK2       float64
	BarrierDampingFactor          float64 // ξ
	BarrierDefaultMultiplier      float64

	// ArmijoDecreaseFraction is c_A of the sufficient-decrease test,
	// default 1e-4. ArmijoTolerance floors the backtracking step
	// fraction, default 1e-9.
	ArmijoDecreaseFraction float64
	ArmijoTolerance        float64

	// Sl1QPInitialParameter is ρ₀ of the ℓ₁ penalty, default 1.
	Sl1QPInitialParameter float64
	// LeastSquareMultiplierMaxNorm caps the least-squares multiplier
	// estimates, default 1e3.
	LeastSquareMultiplierMaxNorm float64
	// ProtectActualReductionAgainstRoundoff pads the actual reduction
	// by 10·εmach·max(1,|φ|) in the acceptance tests.
	ProtectActualReductionAgainstRoundoff bool

	// History records one row per outer iteration when set.
	History *History
}

type subKind int8

const (
	subQP subKind = iota
	subLP
	subIPM
)

type globKind int8

const (
	globMerit globKind = iota
	globFilter
	globFunnel
)

type relaxKind int8

const (
	relaxRestoration relaxKind = iota
	relaxL1
)

type hessKind int8

const (
	hessExact hessKind = iota
	hessBFGS
)

type bupKind int8

const (
	bupMonotone bupKind = iota
	bupAdaptive
)

func parseSubproblem(s string) (subKind, bool) {
	switch s {
	case "", "QP":
		return subQP, true
	case "LP":
		return subLP, true
	case "primal_dual_interior_point":
		return subIPM, true
	}
	return 0, false
}

func parseGlobalization(s string) (globKind, bool) {
	switch s {
	case "", "merit":
		return globMerit, true
	case "filter":
		return globFilter, true
	case "funnel":
		return globFunnel, true
	}
	return 0, false
}

func parseRelaxation(s string) (relaxKind, bool) {
	switch s {
	case "", "feasibility_restoration":
		return relaxRestoration, true
	case "l1_relaxation":
		return relaxL1, true
	}
	return 0, false
}

func parseHessian(s string) (hessKind, bool) {
	switch s {
	case "", "exact":
		return hessExact, true
	case "damped_BFGS":
		return hessBFGS, true
	}
	return 0, false
}

func parseBarrierUpdate(s string) (bupKind, bool) {
	switch s {
	case "", "monotone":
		return bupMonotone, true
	case "adaptive":
		return bupAdaptive, true
	}
	return 0, false
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
