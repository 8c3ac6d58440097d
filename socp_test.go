// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

import (
	"math"
	"testing"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/equil"
	"github.com/curioloop/socp/sparse"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestProblemValidationRejectsDimensionMismatch(t *testing.T) {
	p := &Problem{
		C:    []float64{1, 1},
		G:    sparse.NewFromTriplets(2, 2, []int{0, 1}, []int{0, 1}, []float64{-1, -1}),
		H:    []float64{0, 0, 0}, // wrong length: should be 2
		Cone: cone.Layout{NumLP: 2},
	}
	if _, err := p.New(DefaultSettings(), nil); err == nil {
		t.Fatalf("expected an error for mismatched h length")
	}
}

func TestProblemValidationRejectsZeroSOCDim(t *testing.T) {
	p := &Problem{
		C:    []float64{1},
		G:    sparse.NewFromTriplets(1, 1, []int{0}, []int{0}, []float64{-1}),
		H:    []float64{0},
		Cone: cone.Layout{NumLP: 0, SOC: []int{0}},
	}
	if _, err := p.New(DefaultSettings(), nil); err == nil {
		t.Fatalf("expected an error for a zero-dimensional second-order cone")
	}
}

// TestSolveLPFeasibility builds a trivial LP:
//
//	minimize    x1 + x2
//	subject to  x1 + x2 = 1
//	            x1 >= 0, x2 >= 0  (G = -I, h = 0)
//
// every feasible point has objective exactly 1, so the test only checks
// that the solver reaches a feasible point with the right objective value,
// not that it picks out a particular vertex.
func TestSolveLPFeasibility(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	p := &Problem{
		C:    []float64{1, 1},
		A:    sparse.NewFromTriplets(1, 2, []int{0, 0}, []int{0, 1}, []float64{1, 1}),
		B:    []float64{1},
		G:    sparse.NewFromTriplets(2, 2, []int{0, 1}, []int{0, 1}, []float64{-1, -1}),
		H:    []float64{0, 0},
		Cone: cone.Layout{NumLP: 2},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if !res.OK {
		t.Fatalf("solver did not report success, status=%v", res.Status)
	}
	sum := res.X[0] + res.X[1]
	if !approxEqual(sum, 1.0, 1e-4) {
		t.Fatalf("x1+x2 = %v, want 1.0", sum)
	}
	if res.X[0] < -1e-4 || res.X[1] < -1e-4 {
		t.Fatalf("solution not in the nonnegative orthant: x=%v", res.X)
	}
	if !approxEqual(res.Obj, 1.0, 1e-3) {
		t.Fatalf("objective = %v, want 1.0", res.Obj)
	}
}

// TestSolveSOCFeasibility checks that a single second-order cone constraint
// converges to a point inside the cone: minimize x1 subject to
// (x1, x2, x3) in SOC(3), i.e.
// x1 >= sqrt(x2^2+x3^2), with x2, x3 fixed via equality constraints so the
// optimal x1 is exactly sqrt(2).
func TestSolveSOCFeasibility(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	// variables: x1 (epigraph), x2, x3
	// A: x2 = 1, x3 = 1
	a := sparse.NewFromTriplets(2, 3, []int{0, 1}, []int{1, 2}, []float64{1, 1})
	b := []float64{1, 1}
	// G = -I_3, h = 0 : s = x, s in SOC(3)
	g := sparse.NewFromTriplets(3, 3, []int{0, 1, 2}, []int{0, 1, 2}, []float64{-1, -1, -1})
	h := []float64{0, 0, 0}

	p := &Problem{
		C:    []float64{1, 0, 0},
		A:    a,
		B:    b,
		G:    g,
		H:    h,
		Cone: cone.Layout{NumLP: 0, SOC: []int{3}},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if !res.OK {
		t.Fatalf("solver did not report success, status=%v", res.Status)
	}
	want := math.Sqrt(2.0)
	if !approxEqual(res.X[0], want, 5e-3) {
		t.Fatalf("x1 = %v, want approximately %v", res.X[0], want)
	}
}

// TestSolveMinimumNormSOC minimizes the epigraph variable t subject to
// (t, x1, x2) in SOC(3) with x pinned to (3, 4) by two equality rows, the
// classic minimum-norm form: the optimum is the Euclidean norm of the
// pinned point, t = 5.
func TestSolveMinimumNormSOC(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	a := sparse.NewFromTriplets(2, 3, []int{0, 1}, []int{1, 2}, []float64{1, 1})
	b := []float64{3, 4}
	g := sparse.NewFromTriplets(3, 3, []int{0, 1, 2}, []int{0, 1, 2}, []float64{-1, -1, -1})
	h := []float64{0, 0, 0}

	p := &Problem{
		C:    []float64{1, 0, 0},
		A:    a,
		B:    b,
		G:    g,
		H:    h,
		Cone: cone.Layout{NumLP: 0, SOC: []int{3}},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if !res.OK {
		t.Fatalf("solver did not report success, status=%v", res.Status)
	}
	if !approxEqual(res.X[0], 5.0, 5e-3) {
		t.Fatalf("t = %v, want 5.0", res.X[0])
	}
}

// TestSolveTwoCoupledSOC is the two-point Fermat problem: minimize t1+t2
// subject to (t1, x-a) in SOC(3) and (t2, x-b) in SOC(3), a and b placed
// symmetrically about the origin along one axis. The minimum sum of
// distances from any x between a and b to the two points equals the
// distance between them, 2*sqrt(0.5), independent of exactly where the
// solver's x lands on the segment.
func TestSolveTwoCoupledSOC(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	s := math.Sqrt(0.5)
	g := sparse.NewFromTriplets(6, 4,
		[]int{0, 1, 2, 3, 4, 5},
		[]int{0, 2, 3, 1, 2, 3},
		[]float64{-1, -1, -1, -1, -1, -1})
	h := []float64{0, s, 0, 0, -s, 0}

	p := &Problem{
		C:    []float64{1, 1, 0, 0},
		G:    g,
		H:    h,
		Cone: cone.Layout{NumLP: 0, SOC: []int{3, 3}},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if !res.OK {
		t.Fatalf("solver did not report success, status=%v", res.Status)
	}
	want := 2 * s
	if !approxEqual(res.Obj, want, 1e-2) {
		t.Fatalf("objective = %v, want approximately %v", res.Obj, want)
	}
}

// TestSolvePrimalInfeasible sets up two equality rows on the same variable
// demanding x=1 and x=-1 simultaneously: no point can satisfy both, so the
// solver must detect this from the homogeneous embedding's tau<kappa
// certificate rather than run to MaxIter.
func TestSolvePrimalInfeasible(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	a := sparse.NewFromTriplets(2, 1, []int{0, 1}, []int{0, 0}, []float64{1, 1})
	b := []float64{1, -1}
	g := sparse.NewFromTriplets(1, 1, []int{0}, []int{0}, []float64{-1})
	h := []float64{0}

	p := &Problem{
		C:    []float64{0},
		A:    a,
		B:    b,
		G:    g,
		H:    h,
		Cone: cone.Layout{NumLP: 1},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if res.Status != StatusPrimalInfeasible && res.Status != StatusPrimalInfeasibleInaccurate {
		t.Fatalf("status = %v, want primal_infeasible(_inacc)", res.Status)
	}
}

// TestSolveDualInfeasible minimizes -x1 subject only to x1 >= 0: the
// objective decreases without bound as x1 grows, so the problem is
// unbounded below and the solver must report dual infeasibility.
func TestSolveDualInfeasible(t *testing.T) {
	settings := DefaultSettings()
	settings.Verbose = false
	settings.MaxIter = 50

	g := sparse.NewFromTriplets(1, 1, []int{0}, []int{0}, []float64{-1})
	h := []float64{0}

	p := &Problem{
		C:    []float64{-1},
		G:    g,
		H:    h,
		Cone: cone.Layout{NumLP: 1},
	}

	opt, err := p.New(settings, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(w)

	if res.Status != StatusDualInfeasible && res.Status != StatusDualInfeasibleInaccurate {
		t.Fatalf("status = %v, want dual_infeasible(_inacc)", res.Status)
	}
}

// TestEquilibrationRoundTrip checks that equil.Unset exactly inverts
// equil.Equilibrate on a small SOC problem's data, the invariant the
// back-scaling in Fit's result path relies on.
func TestEquilibrationRoundTrip(t *testing.T) {
	a := sparse.NewFromTriplets(1, 3, []int{0}, []int{0}, []float64{2})
	g := sparse.NewFromTriplets(3, 3, []int{0, 1, 2}, []int{0, 1, 2}, []float64{-3, -5, -5})
	b := []float64{7}
	h := []float64{0, 1, 1}
	c := []float64{4, 0, 0}
	ly := cone.Layout{NumLP: 0, SOC: []int{3}}

	aOrig, gOrig := a.Clone(), g.Clone()
	bOrig := append([]float64(nil), b...)
	hOrig := append([]float64(nil), h...)
	cOrig := append([]float64(nil), c...)

	sc := equil.Equilibrate(a, g, b, h, c, ly)
	equil.Unset(a, g, b, h, c, sc)

	aDense, aOrigDense := a.ToDense(), aOrig.ToDense()
	for i := range aDense {
		for j := range aDense[i] {
			if !approxEqual(aDense[i][j], aOrigDense[i][j], 1e-9) {
				t.Fatalf("A[%d][%d] = %v after round trip, want %v", i, j, aDense[i][j], aOrigDense[i][j])
			}
		}
	}
	gDense, gOrigDense := g.ToDense(), gOrig.ToDense()
	for i := range gDense {
		for j := range gDense[i] {
			if !approxEqual(gDense[i][j], gOrigDense[i][j], 1e-9) {
				t.Fatalf("G[%d][%d] = %v after round trip, want %v", i, j, gDense[i][j], gOrigDense[i][j])
			}
		}
	}
	for i := range b {
		if !approxEqual(b[i], bOrig[i], 1e-9) {
			t.Fatalf("b[%d] = %v after round trip, want %v", i, b[i], bOrig[i])
		}
	}
	for i := range h {
		if !approxEqual(h[i], hOrig[i], 1e-9) {
			t.Fatalf("h[%d] = %v after round trip, want %v", i, h[i], hOrig[i])
		}
	}
	for i := range c {
		if !approxEqual(c[i], cOrig[i], 1e-9) {
			t.Fatalf("c[%d] = %v after round trip, want %v", i, c[i], cOrig[i])
		}
	}
}
