// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

import (
	"math"
	"time"

	"github.com/curioloop/nlsolve/nlp"
)

const (
	// trust-region management of the active-set subproblems
	radiusShrink    = 0.5
	radiusExpand    = 2.0
	expandThreshold = 0.8
	maxRadius       = 1e10

	// a direction below this norm is a stationary point of its phase
	smallDirection = 1e-11

	// ℓ₁ penalty schedule
	rhoGrowth     = 10.0
	rhoMax        = 1e8
	feasRunLength = 5

	// required feasibility gain before restoration hands back
	restorationGain = 0.9

	// unbounded subproblems tolerated before giving up
	persistUnbounded = 3
)

// fitDriver is the main driver of one fit, responsible for the
// two-phase state machine between optimality and restoration and for
// the step-acceptance mechanism of the configured subproblem.
type fitDriver struct {
	spec *fitSpec
	ws   *Workspace
}

// mainLoop runs outer iterations until a terminal status is reached.
func (d *fitDriver) mainLoop() Status {
	w := d.ws
	w.start = time.Now()

	d.printInit()
	if st, ok := d.prepare(); !ok {
		d.printExit(st)
		return st
	}

	// a starting point that already satisfies the KKT conditions
	// terminates in zero iterations
	if res, err := w.kkt.Compute(w.check, w.cur, 0); err == nil {
		w.res = res
		if res.Max() <= d.spec.opts.Tolerance {
			d.printExit(Optimal)
			return Optimal
		}
	}

	for {
		if st, ok := d.newIteration(); !ok {
			d.printExit(st)
			return st
		}
		if st, done := d.iterate(); done {
			d.printExit(st)
			return st
		}
	}
}

// prepare projects the starting point, seeds the multipliers and
// evaluates the initial progress measures.
func (d *fitDriver) prepare() (Status, bool) {
	o, w := d.spec, d.ws

	if w.slack != nil {
		if err := w.slack.InitSlacks(w.cur.X, w.work); err != nil {
			return Failure, false
		}
	}
	if o.sub != subIPM {
		w.opt.VariableBounds().Project(w.cur.X[:w.opt.NumVariables()])
		w.cur.Invalidate()
		if o.relax == relaxL1 {
			w.l1.SetObjectiveMultiplier(1)
			w.l1.SetPenalty(w.rho)
			if err := w.l1.ResetElastics(w.cur); err != nil {
				return Failure, false
			}
		}
	}

	if err := w.subp.Initialize(w.opt, w.cur); err != nil {
		return Failure, false
	}
	if err := w.subp.EvaluateFunctions(w.opt, w.cur); err != nil {
		return Failure, false
	}
	w.subp.SetAuxiliaryMeasure(w.opt, w.cur)

	// the interior-point method seeds its own duals; the active-set
	// methods start from a least-squares estimate
	if o.sub != subIPM && w.opt.NumConstraints() > 0 {
		_ = nlp.EstimateMultipliers(w.opt, w.cur,
			o.opts.LeastSquareMultiplierMaxNorm,
			w.cur.Duals.Constraints[:w.opt.NumConstraints()])
	}

	w.strat.Initialize(w.cur.Progress)
	return 0, true
}

// newIteration advances the iteration counter and applies the
// cooperative limits.
func (d *fitDriver) newIteration() (Status, bool) {
	o, w := d.spec, d.ws
	if w.iter >= o.opts.MaxIterations {
		return IterationLimit, false
	}
	w.iter++
	if o.opts.MaxSeconds > 0 &&
		time.Since(w.start) >= time.Duration(o.opts.MaxSeconds)*time.Second {
		return TimeLimit, false
	}
	return 0, true
}

// iterate performs one outer iteration: solve the subproblem of the
// current phase, accept or reject the step, and test convergence.
func (d *fitDriver) iterate() (Status, bool) {
	o, w := d.spec, d.ws
	view := w.view()

	if w.phase == nlp.PhaseRestoration && w.resto != nil {
		if err := w.resto.Refresh(w.cur, o.opts.Tolerance); err != nil {
			return Failure, true
		}
	}
	if err := w.subp.Solve(view, w.cur, w.radius, w.dir); err != nil {
		return Failure, true
	}
	w.dir.Phase = w.phase

	switch w.dir.Status {
	case nlp.SubproblemError:
		return Failure, true
	case nlp.SubproblemInfeasible:
		if w.phase == nlp.PhaseOptimality {
			d.trace("infeasible subproblem, entering restoration\n")
			if !d.enterRestoration() {
				return Failure, true
			}
			return 0, false
		}
		return Failure, true
	case nlp.SubproblemUnbounded:
		if w.phase == nlp.PhaseOptimality {
			w.unbounded++
			if w.unbounded >= persistUnbounded || w.radius <= o.opts.MinimumRadius {
				return Unbounded, true
			}
			d.trace("unbounded subproblem, radius %.2e\n", w.radius)
			w.radius = math.Max(o.opts.MinimumRadius, w.radius*radiusShrink)
			return 0, false
		}
		return Failure, true
	}
	w.unbounded = 0

	small := w.dir.Norm <= smallDirection
	if w.q != nil {
		small = small || w.q.SmallStep()
	}
	if small {
		return d.stationary()
	}

	var accepted bool
	var alpha float64
	if w.q != nil {
		accepted, alpha = d.lineSearch(view)
	} else {
		accepted, alpha = d.trustStep(view)
	}

	if !accepted {
		d.printIter(w.phase, 0, "rej")
		d.record(w.phase, 0, "rejected")
		if w.q != nil || w.radius <= o.opts.MinimumRadius {
			if w.phase == nlp.PhaseRestoration {
				return d.stationary()
			}
			d.trace("step rejected, entering restoration\n")
			if !d.enterRestoration() {
				return Failure, true
			}
			return 0, false
		}
		w.radius = math.Max(o.opts.MinimumRadius, w.radius*radiusShrink)
		return 0, false
	}

	// commit may hand the phase back, so keep the phase the step was
	// actually taken in for the table
	phase := w.phase
	if st, done := d.commit(view, alpha); done {
		return st, done
	}
	d.printIter(phase, alpha, "acc")
	d.record(phase, alpha, "accepted")

	if w.phase == nlp.PhaseOptimality {
		res, err := w.kkt.Compute(w.check, w.cur, 0)
		if err != nil {
			return Failure, true
		}
		w.res = res
		if res.Max() <= o.opts.Tolerance {
			return Optimal, true
		}
	}
	return 0, false
}

// stationary handles a negligible direction: an infeasible stationary
// point terminates the fit, a feasible one either converges or lets
// the barrier parameter move on.
func (d *fitDriver) stationary() (Status, bool) {
	o, w := d.spec, d.ws

	if w.phase == nlp.PhaseRestoration {
		h, err := w.check.Infeasibility(w.cur)
		if err != nil {
			return Failure, true
		}
		if h > o.opts.Tolerance {
			return Infeasible, true
		}
		if !d.exitRestoration() {
			return Failure, true
		}
		return 0, false
	}

	res, err := w.kkt.Compute(w.check, w.cur, 0)
	if err != nil {
		return Failure, true
	}
	w.res = res
	if res.Max() <= o.opts.Tolerance {
		return Optimal, true
	}
	if w.q != nil {
		// stationary for the current barrier problem: decrease μ and
		// keep going
		muOld := w.q.Mu()
		if mu := w.q.UpdateBarrier(w.opt, w.cur, o.opts.Tolerance); mu < muOld {
			d.trace("barrier parameter %.2e\n", mu)
			w.strat.Reset()
			w.strat.Initialize(w.cur.Progress)
			return 0, false
		}
	}
	return SmallStep, true
}

// trustStep evaluates the full trust-region step and asks the
// globalization strategy.
func (d *fitDriver) trustStep(view nlp.Problem) (bool, float64) {
	w := d.ws
	w.trial.Displace(w.cur, 1, w.dir.Primal)
	if err := w.subp.EvaluateFunctions(view, w.trial); err != nil {
		return false, 0
	}
	w.subp.SetAuxiliaryMeasure(view, w.trial)

	if w.phase == nlp.PhaseRestoration {
		return d.feasibilityAccept(), 1
	}
	pred := w.dir.Predicted.At(1)
	return w.strat.IsAcceptable(w.cur.Progress, w.trial.Progress, pred,
		view.ObjectiveMultiplier()), 1
}

// lineSearch backtracks from the fraction-to-boundary step, trying one
// second-order correction on the first rejection.
func (d *fitDriver) lineSearch(view nlp.Problem) (bool, float64) {
	o, w := d.spec, d.ws
	w.predAux = w.subp.PredictedAuxiliaryReduction(view, w.cur, w.dir)

	alpha := w.dir.PrimalStep
	socTried := false
	for alpha >= o.opts.ArmijoTolerance {
		w.trial.Displace(w.cur, alpha, w.dir.Primal)
		if err := w.subp.EvaluateFunctions(view, w.trial); err == nil {
			w.subp.SetAuxiliaryMeasure(view, w.trial)
			var ok bool
			if w.phase == nlp.PhaseRestoration {
				ok = d.feasibilityAccept()
			} else {
				pred := w.dir.Predicted.At(alpha) + w.predAux.At(alpha)
				ok = w.strat.IsAcceptable(w.cur.Progress, w.trial.Progress, pred,
					view.ObjectiveMultiplier())
			}
			if ok {
				return true, alpha
			}
			if !socTried && w.phase == nlp.PhaseOptimality {
				socTried = true
				if a, ok := d.secondOrder(view, alpha); ok {
					return true, a
				}
			}
		}
		alpha *= 0.5
	}
	return false, 0
}

// secondOrder asks the interior-point method for a corrected direction
// at the rejected trial point.
func (d *fitDriver) secondOrder(view nlp.Problem, alpha float64) (float64, bool) {
	w := d.ws
	if err := w.q.SecondOrderCorrection(view, w.cur, w.trial, alpha, w.soc); err != nil ||
		w.soc.Status != nlp.SubproblemOptimal {
		return 0, false
	}
	a := w.soc.PrimalStep
	w.trial.Displace(w.cur, a, w.soc.Primal)
	if err := w.subp.EvaluateFunctions(view, w.trial); err != nil {
		return 0, false
	}
	w.subp.SetAuxiliaryMeasure(view, w.trial)
	predAux := w.subp.PredictedAuxiliaryReduction(view, w.cur, w.soc)
	pred := w.soc.Predicted.At(a) + predAux.At(a)
	if !w.strat.IsAcceptable(w.cur.Progress, w.trial.Progress, pred,
		view.ObjectiveMultiplier()) {
		return 0, false
	}
	d.trace("second-order correction accepted\n")
	w.dir, w.soc = w.soc, w.dir
	w.predAux = predAux
	return a, true
}

// feasibilityAccept judges a restoration trial purely on the original
// constraint violation.
func (d *fitDriver) feasibilityAccept() bool {
	w := d.ws
	hc, err := w.check.Infeasibility(w.cur)
	if err != nil {
		return false
	}
	ht, err := w.check.Infeasibility(w.trial)
	if err != nil {
		return false
	}
	return w.strat.IsFeasibilityAcceptable(
		nlp.Progress{Infeasibility: hc}, nlp.Progress{Infeasibility: ht})
}

// commit replaces the current iterate with the accepted trial and runs
// the post-acceptance bookkeeping of the active phase.
func (d *fitDriver) commit(view nlp.Problem, alpha float64) (Status, bool) {
	o, w := d.spec, d.ws

	w.subp.ComputeDualDisplacements(w.cur, w.dir)
	zStep := w.dir.DualStep
	for j := range w.trial.Duals.Constraints {
		w.trial.Duals.Constraints[j] = w.cur.Duals.Constraints[j] + alpha*w.dir.Duals.Constraints[j]
	}
	for i := range w.trial.Duals.LowerBounds {
		w.trial.Duals.LowerBounds[i] = w.cur.Duals.LowerBounds[i] + zStep*w.dir.Duals.LowerBounds[i]
		w.trial.Duals.UpperBounds[i] = w.cur.Duals.UpperBounds[i] + zStep*w.dir.Duals.UpperBounds[i]
	}
	w.cur.CopyFrom(w.trial)
	w.subp.PostprocessIterate(view, w.cur)

	if w.phase == nlp.PhaseRestoration {
		ht, err := w.check.Infeasibility(w.cur)
		if err != nil {
			return Failure, true
		}
		w.strat.RegisterCurrentProgress(nlp.Progress{Infeasibility: ht})
		switch {
		case ht <= o.opts.Tolerance:
			if !d.exitRestoration() {
				return Failure, true
			}
		case ht <= restorationGain*w.entryH:
			// hand back only if the original KKT residual did not get
			// worse while restoring feasibility
			res, err := w.kkt.Compute(w.check, w.cur, 0)
			if err == nil && res.Max() <= w.entryRes.Max() {
				w.res = res
				if !d.exitRestoration() {
					return Failure, true
				}
			}
		}
		return 0, false
	}
	w.strat.RegisterCurrentProgress(w.cur.Progress)

	if w.q != nil {
		muOld := w.q.Mu()
		if mu := w.q.UpdateBarrier(w.opt, w.cur, o.opts.Tolerance); mu != muOld {
			d.trace("barrier parameter %.2e\n", mu)
			w.strat.Reset()
			w.strat.Initialize(w.cur.Progress)
		}
	} else if w.dir.Norm >= expandThreshold*w.radius {
		w.radius = math.Min(w.radius*radiusExpand, maxRadius)
	}

	if o.relax == relaxL1 {
		return d.updatePenalty()
	}
	return 0, false
}

// updatePenalty drives the ℓ₁ penalty ρ: an accepted step that still
// leans on its elastics shows the linearization cannot be feasibilized
// at the current ρ, so the penalty grows; a run of elastic-free
// iterates lets it come back down cautiously.
func (d *fitDriver) updatePenalty() (Status, bool) {
	o, w := d.spec, d.ws
	var sum float64
	e := w.l1.Elastics()
	for _, pair := range e.Positive {
		sum += w.cur.X[pair.Variable]
	}
	for _, pair := range e.Negative {
		sum += w.cur.X[pair.Variable]
	}

	changed := false
	if sum > o.opts.Tolerance {
		if w.rho < rhoMax {
			w.rho = math.Min(w.rho*rhoGrowth, rhoMax)
			changed = true
		}
		w.feasRun = 0
	} else {
		w.feasRun++
		if w.feasRun >= feasRunLength && w.rho > o.opts.Sl1QPInitialParameter {
			w.rho = math.Max(o.opts.Sl1QPInitialParameter, w.rho/2)
			changed = true
			w.feasRun = 0
		}
	}
	if changed {
		d.trace("l1 penalty %.2e\n", w.rho)
		w.l1.SetPenalty(w.rho)
		if err := w.subp.EvaluateFunctions(w.l1, w.cur); err != nil {
			return Failure, true
		}
		w.strat.Reset()
		w.strat.Initialize(w.cur.Progress)
	}
	return 0, false
}

// enterRestoration switches the state machine into the restoration
// phase of the configured relaxation.
func (d *fitDriver) enterRestoration() bool {
	o, w := d.spec, d.ws
	w.restores++

	h, err := w.check.Infeasibility(w.cur)
	if err != nil {
		return false
	}
	w.entryH = h
	w.entryRes = w.res
	w.phase = nlp.PhaseRestoration
	w.strat.Reset()

	switch {
	case w.q != nil:
		if err := w.q.EnterRestoration(w.rest, w.cur); err != nil {
			return false
		}
	case w.resto != nil:
		if err := w.resto.Refresh(w.cur, o.opts.Tolerance); err != nil {
			return false
		}
		// the rejected optimality direction seeds the warm start
		w.subp.SetInitialPoint(w.dir.Primal)
		if err := w.subp.Initialize(w.rest, w.cur); err != nil {
			return false
		}
		w.radius = o.opts.InitialRadius
	default:
		w.l1.SetObjectiveMultiplier(0)
		if err := w.subp.Initialize(w.l1, w.cur); err != nil {
			return false
		}
		if err := w.l1.ResetElastics(w.cur); err != nil {
			return false
		}
		w.radius = o.opts.InitialRadius
	}

	if err := w.subp.EvaluateFunctions(w.rest, w.cur); err != nil {
		return false
	}
	w.subp.SetAuxiliaryMeasure(w.rest, w.cur)
	w.strat.Initialize(nlp.Progress{Infeasibility: h})
	return true
}

// exitRestoration hands control back to the optimality phase with
// fresh multiplier estimates.
func (d *fitDriver) exitRestoration() bool {
	o, w := d.spec, d.ws
	d.trace("restoration done, returning to optimality\n")

	w.phase = nlp.PhaseOptimality
	w.strat.Reset()

	switch {
	case w.q != nil:
		if err := w.q.ExitRestoration(w.opt, w.cur); err != nil {
			return false
		}
	case w.resto != nil:
		if err := w.subp.Initialize(w.opt, w.cur); err != nil {
			return false
		}
		_ = nlp.EstimateMultipliers(w.opt, w.cur,
			o.opts.LeastSquareMultiplierMaxNorm,
			w.cur.Duals.Constraints[:w.opt.NumConstraints()])
		w.radius = o.opts.InitialRadius
	default:
		w.l1.SetObjectiveMultiplier(1)
		w.l1.SetPenalty(w.rho)
		if err := w.subp.Initialize(w.l1, w.cur); err != nil {
			return false
		}
		_ = nlp.EstimateMultipliers(w.l1, w.cur,
			o.opts.LeastSquareMultiplierMaxNorm,
			w.cur.Duals.Constraints[:w.l1.NumConstraints()])
		w.radius = o.opts.InitialRadius
	}

	if err := w.subp.EvaluateFunctions(w.opt, w.cur); err != nil {
		return false
	}
	w.subp.SetAuxiliaryMeasure(w.opt, w.cur)
	w.strat.Initialize(w.cur.Progress)
	return true
}

// parameter is the phase parameter of the iteration table: μ for the
// interior point, ρ for the ℓ₁ relaxation, Δ otherwise.
func (d *fitDriver) parameter() float64 {
	w := d.ws
	switch {
	case w.q != nil:
		return w.q.Mu()
	case d.spec.relax == relaxL1:
		return w.rho
	}
	return w.radius
}

func (d *fitDriver) objective() float64 {
	f, err := d.ws.check.Objective(d.ws.cur)
	if err != nil {
		return math.NaN()
	}
	return f
}

func (d *fitDriver) infeasibility() float64 {
	h, err := d.ws.check.Infeasibility(d.ws.cur)
	if err != nil {
		return math.NaN()
	}
	return h
}

func (d *fitDriver) trace(format string, a ...any) {
	if log := &d.spec.logger; log.enable(LogTrace) {
		log.log(format, a...)
	}
}

// printInit logs the configuration of the fit.
func (d *fitDriver) printInit() {
	o := d.spec
	log := &o.logger
	if !log.enable(LogLast) {
		return
	}
	log.log("RUNNING THE NLSOLVE DRIVER\n")
	log.log("           * * *\n")
	log.log("N = %d    M = %d\n", o.n, o.m)
	log.log("subproblem = %s    globalization = %s    relaxation = %s\n",
		o.subName(), o.globName(), o.relaxName())
	if log.enable(LogIter) {
		log.out("\n iter  phase            f          ‖c‖       stat      param    alpha\n")
	}
}

// printIter logs one row of the iteration table.
func (d *fitDriver) printIter(phase nlp.Phase, alpha float64, flag string) {
	w := d.ws
	log := &d.spec.logger
	if !log.enable(LogIter) {
		return
	}
	if lv := int(log.Level); lv > 1 && lv < int(LogTrace) && w.iter%lv != 0 {
		return
	}
	log.out("%5d  %-11s %12.5e %10.3e %10.3e %10.3e %8.2e %s\n",
		w.iter, phase.String(), d.objective(), d.infeasibility(),
		w.res.Stationarity, d.parameter(), alpha, flag)
}

// printExit logs the final summary and the exit condition.
func (d *fitDriver) printExit(task Status) {
	o, w := d.spec, d.ws
	log := &o.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("\n    N     M   Iter  Rest   Hess      ‖c‖        stat           F\n")
	log.log("%5d %5d %6d %5d %6d %10.3e %10.3e %14.7e\n",
		o.n, o.m, w.iter, w.restores, w.subp.HessianEvaluations(),
		d.infeasibility(), w.res.Stationarity, d.objective())

	var msg string
	switch task {
	case Optimal:
		msg = "CONVERGENCE: KKT RESIDUALS BELOW TOLERANCE"
	case SmallStep:
		msg = "STOP: SEARCH DIRECTION BECAME NEGLIGIBLE"
	case Infeasible:
		msg = "STOP: CONVERGED TO AN INFEASIBLE STATIONARY POINT"
	case Unbounded:
		msg = "STOP: SUBPROBLEM REMAINS UNBOUNDED"
	case IterationLimit:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case TimeLimit:
		msg = "STOP: WALL TIME EXCEEDING THE LIMIT"
	case Failure:
		msg = "STOP: UNRECOVERABLE NUMERIC FAILURE"
	default:
		msg = "UNKNOWN TASK"
	}
	log.log("\n%s\n", msg)
	log.log("\nTotal time: %s\n", time.Since(w.start).Round(time.Microsecond))
}

// record emits one history row for the iteration.
func (d *fitDriver) record(phase nlp.Phase, alpha float64, flag string) {
	o, w := d.spec, d.ws
	h := o.opts.History
	if h == nil {
		return
	}
	_ = h.record(w.fit, w.iter, phase.String(),
		d.objective(), d.infeasibility(), w.res.Stationarity,
		d.parameter(), alpha, flag)
}

func (s *fitSpec) subName() string {
	switch s.sub {
	case subLP:
		return "LP"
	case subIPM:
		return "primal_dual_interior_point"
	}
	return "QP"
}

func (s *fitSpec) globName() string {
	switch s.glob {
	case globFilter:
		return "filter"
	case globFunnel:
		return "funnel"
	}
	return "merit"
}

func (s *fitSpec) relaxName() string {
	switch s.relax {
	case relaxL1:
		return "l1_relaxation"
	}
	return "feasibility_restoration"
}
