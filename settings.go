// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package socp implements a primal-dual interior-point solver for
// second-order cone programs
//
//	minimize    c'x
//	subject to  A x = b
//	            G x + s = h,  s in K
//
// where K is the Cartesian product of a nonnegative orthant and a list of
// second-order (Lorentz) cones. The construction mirrors the teacher's
// Problem -> Optimizer -> Workspace -> Result pipeline: a Problem is
// validated and equilibrated once into an Optimizer, a Workspace holds the
// mutable iterate and is reusable across Fit calls, and Fit drives the
// Mehrotra predictor-corrector iteration to a Result.
package socp

// Settings controls the stopping criteria and numerical tuning of the
// interior-point iteration (spec.md §6). The zero value is not usable;
// callers should start from DefaultSettings and override individual
// fields.
type Settings struct {
	Gamma     float64 // fraction-to-the-boundary safety factor for the step length
	Delta     float64 // static regularization added to the KKT diagonal
	Eps       float64 // large number representing "infinite"; not read by the solver
	FeasTol   float64 // primal/dual feasibility tolerance
	AbsTol    float64 // absolute duality-gap tolerance
	RelTol    float64 // relative duality-gap tolerance

	FeasTolInacc float64 // relaxed feasibility tolerance for the "_inacc" exit check
	AbsTolInacc  float64
	RelTolInacc  float64

	MaxIter   int     // iteration budget (spec.md §4.10's max_iters_reached status)
	NItRef    int     // max iterative-refinement steps per KKT solve
	LinSysAcc float64 // iterative-refinement residual target
	IrErrFact float64 // not read: kkt.Solve stops refining as soon as the residual fails to decrease

	StepMin float64 // minimum allowed line-search step
	StepMax float64 // maximum allowed line-search step (a.k.a. stepmax)

	SigmaMin float64 // centering parameter lower bound
	SigmaMax float64 // centering parameter upper bound

	EquilIters int // not read: equil.Equilibrate always runs its fixed 3 Ruiz rounds

	Verbose bool // gate ambient iteration-progress logging
}

// DefaultSettings returns the solver's default tuning, matching the values
// pinned in spec.md §6.
func DefaultSettings() Settings {
	return Settings{
		Gamma:        0.99,
		Delta:        2e-7,
		Eps:          1e13,
		FeasTol:      1e-8,
		AbsTol:       1e-8,
		RelTol:       1e-8,
		FeasTolInacc: 1e-4,
		AbsTolInacc:  5e-5,
		RelTolInacc:  5e-5,
		MaxIter:      100,
		NItRef:       9,
		LinSysAcc:    1e-14,
		IrErrFact:    6,
		StepMin:      1e-6,
		StepMax:      0.999,
		SigmaMin:     1e-4,
		SigmaMax:     1.0,
		EquilIters:   3,
		Verbose:      true,
	}
}
