// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlsolve solves smooth constrained nonlinear programs
//
//	𝚖𝚒𝚗 𝒇(𝐱)  s.t.  𝒄ˡ ≤ 𝒄(𝐱) ≤ 𝒄ᵘ,  𝐱ˡ ≤ 𝐱 ≤ 𝐱ᵘ
//
// by composing three orthogonal ingredients: a subproblem strategy
// (active-set QP/LP or a primal-dual interior-point method), a
// globalization strategy (merit, filter or funnel) and a constraint
// relaxation (feasibility restoration or ℓ₁ relaxation). The classic
// methods fall out of the combinations: SQP, SLP, Sℓ₁QP and a
// line-search interior-point method.
package nlsolve

import (
	"errors"
	"math"
	"os"
	"time"

	"github.com/curioloop/nlsolve/accept"
	"github.com/curioloop/nlsolve/ipm"
	"github.com/curioloop/nlsolve/ldl"
	"github.com/curioloop/nlsolve/nlp"
	"github.com/curioloop/nlsolve/qp"
	"github.com/curioloop/nlsolve/sqp"
)

// Problem specifies the problem for the NLP solver.
type Problem struct {
	Model nlp.Model // The problem model
	Opts  Options   // Strategy selection and parameters
}

// fitSpec is the immutable configuration shared by all workspaces.
type fitSpec struct {
	model  nlp.Model
	n, m   int
	opts   Options
	sub    subKind
	glob   globKind
	relax  relaxKind
	hess   hessKind
	bup    bupKind
	logger Logger
}

// New creates a new solver for the given problem.
func (p *Problem) New(logger *Logger) (solver *Solver, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}
	if logger.Out == nil {
		logger.Out = os.Stderr
	}

	opts := p.Opts
	opts.Tolerance = defaultFloat(opts.Tolerance, 1e-6)
	opts.InitialRadius = defaultFloat(opts.InitialRadius, 10)
	opts.MinimumRadius = defaultFloat(opts.MinimumRadius, 1e-8)
	opts.ArmijoDecreaseFraction = defaultFloat(opts.ArmijoDecreaseFraction, 1e-4)
	opts.ArmijoTolerance = defaultFloat(opts.ArmijoTolerance, 1e-9)
	opts.Sl1QPInitialParameter = defaultFloat(opts.Sl1QPInitialParameter, 1)
	opts.LeastSquareMultiplierMaxNorm = defaultFloat(opts.LeastSquareMultiplierMaxNorm, 1e3)
	opts.MaxSeconds = max(opts.MaxSeconds, 0)

	sub, subOK := parseSubproblem(opts.Subproblem)
	glob, globOK := parseGlobalization(opts.Globalization)
	relax, relaxOK := parseRelaxation(opts.ConstraintRelaxation)
	hess, hessOK := parseHessian(opts.HessianApproximation)
	bup, bupOK := parseBarrierUpdate(opts.BarrierUpdate)

	var n, m int
	if p.Model != nil {
		n, m = p.Model.NumVariables(), p.Model.NumConstraints()
	}

	switch {
	case p.Model == nil:
		err = errors.New("problem model is required")
	case n <= 0:
		err = errors.New("problem dimension must greater than 0")
	case m < 0:
		err = errors.New("constraint number must not less than 0")
	case !subOK:
		err = errors.New("unknown subproblem strategy")
	case !globOK:
		err = errors.New("unknown globalization strategy")
	case !relaxOK:
		err = errors.New("unknown constraint relaxation strategy")
	case !hessOK:
		err = errors.New("unknown hessian approximation")
	case !bupOK:
		err = errors.New("unknown barrier update strategy")
	case sub == subIPM && relax == relaxL1:
		err = errors.New("interior point pairs with feasibility restoration only")
	case opts.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 1")
	case opts.Tolerance <= 0:
		err = errors.New("tolerance must greater than 0")
	case opts.InitialRadius <= opts.MinimumRadius:
		err = errors.New("initial radius must greater than minimum radius")
	case opts.ArmijoDecreaseFraction <= 0 || opts.ArmijoDecreaseFraction >= 1:
		err = errors.New("armijo decrease fraction must lie in (0,1)")
	case opts.ArmijoTolerance <= 0 || opts.ArmijoTolerance >= 1:
		err = errors.New("armijo tolerance must lie in (0,1)")
	case opts.Sl1QPInitialParameter <= 0:
		err = errors.New("l1 penalty parameter must greater than 0")
	case opts.BarrierTauMin < 0 || opts.BarrierTauMin >= 1:
		err = errors.New("barrier tau min must lie in [0,1)")
	case opts.BarrierInitialParameter < 0:
		err = errors.New("barrier parameter must not less than 0")
	}
	if err == nil {
		if e := p.Model.VariableBounds().Check(); e != nil {
			err = e
		} else if e := p.Model.ConstraintBounds().Check(); e != nil {
			err = e
		}
	}
	if err == nil {
		if c, ok := p.Model.(interface{ Check() error }); ok {
			err = c.Check()
		}
	}
	if err != nil {
		return
	}

	solver = &Solver{
		fitSpec{
			model: p.Model,
			n:     n, m: m,
			opts:   opts,
			sub:    sub,
			glob:   glob,
			relax:  relax,
			hess:   hess,
			bup:    bup,
			logger: *logger,
		},
	}
	return
}

// Solver composes the configured subproblem, globalization and
// relaxation strategies into an NLP method.
type Solver struct {
	fitSpec
}

// Workspace contains the state and context of one fit: the problem
// views, the subproblem workspace, the globalization memory and the
// current/trial iterates.
type Workspace struct {
	n, m int

	base  nlp.Model
	slack *nlp.EqualitySlack
	check nlp.Problem
	opt   nlp.Problem
	l1    *nlp.L1Relaxed
	resto *nlp.Restoration
	rest  nlp.Problem

	subp  nlp.Subproblem
	q     *ipm.IPM
	strat accept.Strategy

	cur, trial *nlp.Iterate
	dir, soc   *nlp.Direction
	kkt        *nlp.KKTError
	res        nlp.Residuals
	predAux    nlp.Reduction
	work       []float64

	phase     nlp.Phase
	radius    float64
	rho       float64
	entryH    float64
	entryRes  nlp.Residuals
	feasRun   int
	unbounded int

	iter     int
	restores int
	fit      int64
	start    time.Time
}

// Result contains the final result of the optimization process.
type Result struct {
	OK        bool            // Whether the optimization was converged.
	F         float64         // Final objective value.
	X         []float64       // Final solution, model variables only.
	Duals     nlp.Multipliers // Final multiplier estimates.
	Residuals nlp.Residuals   // KKT residuals at the final point.
	Summary                   // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status       Status // Final task status after optimization.
	NumIter      int    // Number of outer iterations performed.
	NumHess      int    // Number of Hessian evaluations performed.
	Restorations int    // Number of entries into the restoration phase.
}

// Init allocates the workspace for the solver.
// To avoid race conditions, separate workspaces need to be created for
// each goroutine. But multiple workspaces could share one solver.
func (s *Solver) Init() *Workspace {
	w := new(Workspace)
	w.n, w.m = s.n, s.m

	base := s.model
	if s.sub == subIPM {
		w.slack = nlp.NewEqualitySlack(s.model)
		base = w.slack
	}
	w.base = base
	w.check = nlp.NewOriginal(base, 1)

	switch {
	case s.relax == relaxL1:
		w.l1 = nlp.NewL1Relaxed(base, 1, s.opts.Sl1QPInitialParameter)
		w.opt, w.rest = w.l1, w.l1
	case s.sub == subIPM:
		w.opt = nlp.NewOriginal(base, 1)
		w.l1 = nlp.NewL1Relaxed(base, 0, 1)
		w.rest = w.l1
	default:
		w.opt = nlp.NewOriginal(base, 1)
		w.resto = nlp.NewRestoration(base)
		w.rest = w.resto
	}

	dim := w.opt.NumVariables()
	if w.l1 != nil && w.l1.NumVariables() > dim {
		dim = w.l1.NumVariables()
	}
	m := base.NumConstraints()

	w.cur = nlp.NewIterate(dim, m)
	w.trial = nlp.NewIterate(dim, m)
	w.dir = nlp.NewDirection(dim, m)
	w.soc = nlp.NewDirection(dim, m)
	w.kkt = nlp.NewKKTError(w.check.NumVariables(), m)
	w.work = make([]float64, m)

	switch s.sub {
	case subQP:
		var h sqp.HessianModel
		if s.hess == hessBFGS {
			h = sqp.NewDampedBFGS()
		} else {
			h = sqp.NewExactHessian()
		}
		w.subp = sqp.NewSQP(qp.NewActiveSet(), h)
	case subLP:
		w.subp = sqp.NewSLP(qp.NewSimplex())
	case subIPM:
		var up ipm.BarrierUpdate
		if s.bup == bupAdaptive {
			up = ipm.Adaptive{}
		} else {
			up = ipm.NewMonotone()
		}
		q := ipm.NewIPM(ldl.NewDense(), up)
		o := &s.opts
		q.InitialMu = defaultFloat(o.BarrierInitialParameter, q.InitialMu)
		q.TauMin = defaultFloat(o.BarrierTauMin, q.TauMin)
		q.KappaSigma = defaultFloat(o.BarrierKSigma, q.KappaSigma)
		q.RegularizationExponent = defaultFloat(o.BarrierRegularizationExponent, q.RegularizationExponent)
		q.SmallStepFactor = defaultFloat(o.BarrierSmallDirectionFactor, q.SmallStepFactor)
		q.PushFactor = defaultFloat(o.BarrierPushToInteriorK1, q.PushFactor)
		q.PushRangeFactor = defaultFloat(o.BarrierPushToInteriorK2, q.PushRangeFactor)
		q.Damping = defaultFloat(o.BarrierDampingFactor, q.Damping)
		q.DefaultMultiplier = defaultFloat(o.BarrierDefaultMultiplier, q.DefaultMultiplier)
		q.LeastSquareMaxNorm = s.opts.LeastSquareMultiplierMaxNorm
		w.q, w.subp = q, q
	}

	armijo := accept.Armijo{
		DecreaseFraction: s.opts.ArmijoDecreaseFraction,
		ProtectRoundoff:  s.opts.ProtectActualReductionAgainstRoundoff,
	}
	switch s.glob {
	case globFilter:
		f := accept.NewFilter()
		f.Armijo = armijo
		w.strat = f
	case globFunnel:
		f := accept.NewFunnel()
		f.Armijo = armijo
		w.strat = f
	default:
		mt := accept.NewMerit()
		mt.Armijo = armijo
		w.strat = mt
	}

	return w
}

// Fit runs the optimization process using the initial guess x and
// workspace w.
func (s *Solver) Fit(x []float64, w *Workspace) *Result {

	if len(x) != s.n {
		panic("initial x dimension not match spec")
	}

	if w.n != s.n || w.m != s.m {
		panic("workspace dimension not match spec")
	}

	for i := range w.cur.X {
		w.cur.X[i] = 0
	}
	copy(w.cur.X[:s.n], x)
	w.cur.Duals.Reset()
	w.cur.Invalidate()
	w.cur.Progress = nlp.Progress{}

	w.phase = nlp.PhaseOptimality
	w.radius = s.opts.InitialRadius
	w.rho = s.opts.Sl1QPInitialParameter
	w.feasRun, w.unbounded = 0, 0
	w.iter, w.restores = 0, 0
	w.res = nlp.Residuals{}
	if h := s.opts.History; h != nil {
		w.fit = h.begin()
	}

	d := fitDriver{spec: &s.fitSpec, ws: w}
	st := d.mainLoop()

	f, ferr := w.check.Objective(w.cur)
	if ferr != nil {
		f = math.NaN()
	}
	res := &Result{
		F: f,
		X: append([]float64(nil), w.cur.X[:s.n]...),
		Duals: nlp.Multipliers{
			Constraints: append([]float64(nil), w.cur.Duals.Constraints[:s.m]...),
			LowerBounds: append([]float64(nil), w.cur.Duals.LowerBounds[:s.n]...),
			UpperBounds: append([]float64(nil), w.cur.Duals.UpperBounds[:s.n]...),
		},
		Residuals: w.res,
		Summary: Summary{
			Status:       st,
			NumIter:      w.iter,
			NumHess:      w.subp.HessianEvaluations(),
			Restorations: w.restores,
		},
	}
	res.OK = st == Optimal ||
		(st == SmallStep && w.res.Feasibility <= s.opts.Tolerance)
	return res
}

// view returns the problem of the current phase.
func (w *Workspace) view() nlp.Problem {
	if w.phase == nlp.PhaseRestoration {
		return w.rest
	}
	return w.opt
}
