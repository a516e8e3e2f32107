// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

// Status is the terminal state of a fit.
type Status int8

const (
	// Optimal means all scaled KKT residuals of the original problem
	// fell below the tolerance.
	Optimal Status = iota
	// SmallStep means the direction became negligible at an iterate
	// that may or may not be feasible; Result.OK tells which.
	SmallStep
	// Infeasible means the restoration phase converged to a nonzero
	// stationary point of the constraint violation.
	Infeasible
	// Unbounded means the subproblem stayed unbounded after the trust
	// region was exhausted.
	Unbounded
	// IterationLimit and TimeLimit are the cooperative stops checked
	// between outer iterations.
	IterationLimit
	TimeLimit
	// Failure covers unrecoverable numeric or evaluation trouble.
	Failure
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case SmallStep:
		return "small step"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case IterationLimit:
		return "iteration limit"
	case TimeLimit:
		return "time limit"
	case Failure:
		return "failure"
	}
	return "unknown"
}
