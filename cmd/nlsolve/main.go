// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command nlsolve runs the solver on the bundled benchmark problems.
package main

import (
	"database/sql"
	"fmt"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/curioloop/nlsolve"
	"github.com/curioloop/nlsolve/bench"
)

type runFlags struct {
	subproblem    string
	globalization string
	relaxation    string
	hessian       string
	barrierUpdate string

	tolerance float64
	maxIter   int
	radius    float64

	logLevel int
	history  string
}

func main() {
	root := &cobra.Command{
		Use:           "nlsolve",
		Short:         "Constrained nonlinear optimization test bench",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newListCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the benchmark problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range bench.Names() {
				p, _ := bench.Lookup(name)
				m := p.Model()
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s n=%d m=%d\n", name, m.N, m.M)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <problem>",
		Short: "Run the solver on a benchmark problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProblem(cmd, args[0], &flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.subproblem, "subproblem", "QP",
		"subproblem strategy: QP, LP or primal_dual_interior_point")
	f.StringVar(&flags.globalization, "globalization", "merit",
		"globalization strategy: merit, filter or funnel")
	f.StringVar(&flags.relaxation, "relaxation", "feasibility_restoration",
		"constraint relaxation: feasibility_restoration or l1_relaxation")
	f.StringVar(&flags.hessian, "hessian", "exact",
		"hessian approximation: exact or damped_BFGS")
	f.StringVar(&flags.barrierUpdate, "barrier-update", "monotone",
		"barrier update strategy: monotone or adaptive")
	f.Float64Var(&flags.tolerance, "tol", 1e-6, "KKT tolerance")
	f.IntVar(&flags.maxIter, "max-iter", 500, "outer iteration limit")
	f.Float64Var(&flags.radius, "radius", 10, "initial trust-region radius")
	f.IntVar(&flags.logLevel, "log", 1,
		"log level: -1 quiet, 0 summary, k table row every k iterations, 99 trace")
	f.StringVar(&flags.history, "history", "",
		"record the iteration history into this sqlite file")
	return cmd
}

func runProblem(cmd *cobra.Command, name string, flags *runFlags) error {
	p, ok := bench.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown problem %q, see 'nlsolve list'", name)
	}

	opts := nlsolve.Options{
		Subproblem:           flags.subproblem,
		Globalization:        flags.globalization,
		ConstraintRelaxation: flags.relaxation,
		HessianApproximation: flags.hessian,
		BarrierUpdate:        flags.barrierUpdate,
		Tolerance:            flags.tolerance,
		MaxIterations:        flags.maxIter,
		InitialRadius:        flags.radius,
	}

	if flags.history != "" {
		db, err := sql.Open("sqlite3", flags.history)
		if err != nil {
			return err
		}
		defer db.Close()
		hist, err := nlsolve.NewHistory(db)
		if err != nil {
			return err
		}
		defer hist.Close()
		opts.History = hist
	}

	logger := &nlsolve.Logger{
		Level: nlsolve.LogLevel(flags.logLevel),
		Msg:   cmd.OutOrStdout(),
		Out:   cmd.OutOrStdout(),
	}
	solver, err := (&nlsolve.Problem{Model: p.Model(), Opts: opts}).New(logger)
	if err != nil {
		return err
	}
	res := solver.Fit(p.X0, solver.Init())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nproblem %s: status=%s iter=%d hess=%d restorations=%d\n",
		name, res.Status, res.NumIter, res.NumHess, res.Restorations)
	fmt.Fprintf(out, "f = %.10g\nx = %.10g\n", res.F, res.X)
	if !math.IsNaN(p.F) && p.Feasible {
		fmt.Fprintf(out, "known optimum f* = %.10g (gap %.3e)\n", p.F, res.F-p.F)
	}
	if !res.OK {
		return fmt.Errorf("fit did not converge: %s", res.Status)
	}
	return nil
}
