// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

import "github.com/curioloop/socp/cone"

// Information records the diagnostic quantities tracked at every iteration
// (spec.md §4.9 plus the supplemented Pinf/Dinf booleans and split
// refinement-step counters).
type Information struct {
	PCost, DCost  float64
	PRes, DRes    float64
	Gap, RelGap   float64
	Mu            float64
	Sigma         float64
	Step, StepAff float64
	KapOverTau    float64
	Tau, Kappa    float64
	Rt            float64 // the embedding's complementarity residual, kappa+c'x+b'y+h'z

	Pinf, Dinf bool // infeasibility-certificate flags for this iterate

	NumRefinementSteps1 int // RHS1/affine-RHS2 solves this iteration (shares a factorization)
	NumRefinementSteps2 int // combined-RHS2 solve
}

// Workspace holds the mutable iterate and the main loop's long-lived
// scratch buffers, allocated once (spec.md §5); the KKT right-hand sides,
// solutions and refinement residuals are still allocated afresh on every
// iteration. x, y, z, s is the
// native primal-dual iterate; tau, kappa are the homogeneous self-dual
// embedding's two extra scalar variables (spec.md §4's embedding), kept
// strictly positive throughout the iteration.
type Workspace struct {
	n, p, m int

	x, y, z, s []float64
	tau, kappa float64
	lambda     []float64

	rx, ry, rz []float64

	negC []float64 // cached -c, the x-block of the static RHS1 (spec.md §4.5 step 1)

	// dx1, dy1, dz1 hold the solution of RHS1 = [-c; b; h], re-solved every
	// iteration against the fresh factorization but otherwise reused
	// throughout the affine and combined steps (spec.md §4.5).
	dx1, dy1, dz1 []float64

	// dx2, dy2, dz2 hold the affine-RHS2 solve; the combined-RHS2 solve
	// reads its result directly from the solution vector.
	dx2, dy2, dz2 []float64

	dzAff, dsTildeAff, wDzAff []float64
	lamSq, crossProd, ds1     []float64
	dsTildeCorrector          []float64
	wDsCorrector              []float64

	dxFinal, dyFinal, dzFinal []float64
	dsTildeFinal, wDzFinal    []float64
	dsActual                  []float64

	dtauAff, dkappaAff float64
	dtau, dkappa       float64

	scaling *cone.Scaling

	iter int
	info Information
}

// Init allocates a Workspace sized for this Optimizer. Multiple
// Workspaces may share one Optimizer, but Fit calls on them must not run
// concurrently (see Optimizer).
func (o *Optimizer) Init() *Workspace {
	w := &Workspace{n: o.n, p: o.p, m: o.m}
	w.x = make([]float64, o.n)
	w.y = make([]float64, o.p)
	w.z = make([]float64, o.m)
	w.s = make([]float64, o.m)
	w.lambda = make([]float64, o.m)

	w.rx = make([]float64, o.n)
	w.ry = make([]float64, o.p)
	w.rz = make([]float64, o.m)

	w.negC = make([]float64, o.n)
	for i, v := range o.c {
		w.negC[i] = -v
	}

	w.dx1 = make([]float64, o.n)
	w.dy1 = make([]float64, o.p)
	w.dz1 = make([]float64, o.m)
	w.dx2 = make([]float64, o.n)
	w.dy2 = make([]float64, o.p)
	w.dz2 = make([]float64, o.m)

	w.dzAff = make([]float64, o.m)
	w.dsTildeAff = make([]float64, o.m)
	w.wDzAff = make([]float64, o.m)
	w.lamSq = make([]float64, o.m)
	w.crossProd = make([]float64, o.m)
	w.ds1 = make([]float64, o.m)
	w.dsTildeCorrector = make([]float64, o.m)
	w.wDsCorrector = make([]float64, o.m)

	w.dxFinal = make([]float64, o.n)
	w.dyFinal = make([]float64, o.p)
	w.dzFinal = make([]float64, o.m)
	w.dsTildeFinal = make([]float64, o.m)
	w.wDzFinal = make([]float64, o.m)
	w.dsActual = make([]float64, o.m)

	w.scaling = cone.NewScaling(o.cone)
	return w
}

// Result is the outcome of a Fit call.
type Result struct {
	OK      bool
	X       []float64
	Y       []float64
	Z       []float64
	S       []float64
	Obj     float64
	Summary
}

// Summary mirrors the teacher's Summary shape (lbfgsb/optimize.go): the
// final status and the iteration/evaluation counters.
type Summary struct {
	Status  Status
	NumIter int
	Info    Information
}
