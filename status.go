// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

// iterTask reports the outcome of one pass of the main loop, following the
// bit-flag idiom of the teacher's SearchTask (lbfgsb/minpack.go): a single
// terminal task occupies its own bit so callers can test "did we stop" via
// task&taskLoop == 0 without a type switch.
type iterTask int

const (
	taskStart iterTask = 0
	taskLoop  iterTask = 1 << (4 + iota)
	taskOptimal
	taskOptimalInacc
	taskPrimalInfeasible
	taskPrimalInfeasibleInacc
	taskDualInfeasible
	taskDualInfeasibleInacc
	taskMaxIters
	taskNumericalFail
)

// Status is the public, stringer-friendly classification of a Result
// (spec.md §7's status enumeration).
type Status int

const (
	StatusOptimal Status = iota
	StatusOptimalInaccurate
	StatusPrimalInfeasible
	StatusPrimalInfeasibleInaccurate
	StatusDualInfeasible
	StatusDualInfeasibleInaccurate
	StatusMaxItersReached
	StatusNumericalFailure
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusOptimalInaccurate:
		return "optimal_inacc"
	case StatusPrimalInfeasible:
		return "primal_infeasible"
	case StatusPrimalInfeasibleInaccurate:
		return "primal_infeasible_inacc"
	case StatusDualInfeasible:
		return "dual_infeasible"
	case StatusDualInfeasibleInaccurate:
		return "dual_infeasible_inacc"
	case StatusMaxItersReached:
		return "max_iters_reached"
	default:
		return "numerical_failure"
	}
}

func taskToStatus(task iterTask) Status {
	switch task {
	case taskOptimal:
		return StatusOptimal
	case taskOptimalInacc:
		return StatusOptimalInaccurate
	case taskPrimalInfeasible:
		return StatusPrimalInfeasible
	case taskPrimalInfeasibleInacc:
		return StatusPrimalInfeasibleInaccurate
	case taskDualInfeasible:
		return StatusDualInfeasible
	case taskDualInfeasibleInacc:
		return StatusDualInfeasibleInaccurate
	case taskMaxIters:
		return StatusMaxItersReached
	default:
		return StatusNumericalFailure
	}
}
