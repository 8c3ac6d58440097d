// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cone

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func testLayout() Layout {
	return Layout{NumLP: 2, SOC: []int{3}}
}

func TestLayoutDims(t *testing.T) {
	ly := testLayout()
	if ly.Dim() != 5 {
		t.Fatalf("Dim() = %d, want 5", ly.Dim())
	}
	if ly.NumCones() != 1 {
		t.Fatalf("NumCones() = %d, want 1", ly.NumCones())
	}
	if ly.SOCStart(0) != 2 {
		t.Fatalf("SOCStart(0) = %d, want 2", ly.SOCStart(0))
	}
	// expanded: 2 LP + (3 native + 2 expansion) = 7
	if ly.ExpandedDim() != 7 {
		t.Fatalf("ExpandedDim() = %d, want 7", ly.ExpandedDim())
	}
	if ly.ExpandedSOCStart(0) != 2 {
		t.Fatalf("ExpandedSOCStart(0) = %d, want 2", ly.ExpandedSOCStart(0))
	}
}

func TestScatterGatherNativeRoundTrip(t *testing.T) {
	ly := testLayout()
	native := []float64{1, 2, 3, 4, 5}
	expanded := make([]float64, ly.ExpandedDim())
	ly.ScatterNative(native, expanded)

	// expansion slots (last two entries of the one SOC block) must be zero.
	if expanded[5] != 0 || expanded[6] != 0 {
		t.Fatalf("expansion slots = %v, %v, want 0, 0", expanded[5], expanded[6])
	}

	back := make([]float64, ly.Dim())
	ly.GatherNative(expanded, back)
	for i := range native {
		if back[i] != native[i] {
			t.Fatalf("GatherNative[%d] = %v, want %v", i, back[i], native[i])
		}
	}
}

func TestJordanProductDivisionRoundTrip(t *testing.T) {
	ly := testLayout()
	u := []float64{2, 3, 5, 1, 1} // strictly feasible: s0=5 > ||(1,1)||
	w := []float64{7, 11, 2, 0.5, 0.3}

	prod := make([]float64, ly.Dim())
	ly.JordanProduct(u, w, prod)

	back := make([]float64, ly.Dim())
	ok := ly.JordanDivision(u, prod, back)
	if !ok {
		t.Fatalf("JordanDivision reported not-in-cone unexpectedly")
	}
	for i := range w {
		if !approxEqual(back[i], w[i], 1e-9) {
			t.Fatalf("round trip[%d] = %v, want %v", i, back[i], w[i])
		}
	}
}

func TestJordanDivisionDetectsNonPositiveDeterminant(t *testing.T) {
	ly := Layout{NumLP: 0, SOC: []int{3}}
	u := []float64{1, 2, 2} // rho = 1 - 8 < 0
	w := []float64{1, 0, 0}
	out := make([]float64, 3)
	if ly.JordanDivision(u, w, out) {
		t.Fatalf("expected JordanDivision to report not-in-cone")
	}
}

func TestScaleMatchesIdentityWhenSEqualsZ(t *testing.T) {
	ly := testLayout()
	sc := NewScaling(ly)

	// s == z everywhere in the interior => W should scale like the identity,
	// so lambda == z (a basic sanity check on the fast scale formula).
	s := []float64{3, 4, 5, 1, 0.5}
	z := []float64{3, 4, 5, 1, 0.5}
	lambda := make([]float64, ly.Dim())

	if !sc.Update(s, z, lambda) {
		t.Fatalf("Update failed on a clearly feasible point")
	}
	for i := range lambda {
		if lambda[i] < 0 {
			t.Fatalf("lambda[%d] = %v, want nonnegative-ish", i, lambda[i])
		}
	}
	// LP block: w = sqrt(s/z) = 1, so lambda == z there.
	for i := 0; i < ly.NumLP; i++ {
		if !approxEqual(lambda[i], z[i], 1e-9) {
			t.Fatalf("LP lambda[%d] = %v, want %v", i, lambda[i], z[i])
		}
	}
}

func TestUpdateRejectsInfeasiblePoint(t *testing.T) {
	ly := Layout{NumLP: 0, SOC: []int{3}}
	sc := NewScaling(ly)
	s := []float64{1, 2, 2} // 1 - 8 < 0: not in cone
	z := []float64{1, 0, 0}
	lambda := make([]float64, 3)
	if sc.Update(s, z, lambda) {
		t.Fatalf("expected Update to reject an infeasible s")
	}
}

// TestArrowMultiplyExpandedIsSymmetric checks that the (3,3) KKT sub-block
// computed by ArrowMultiplyExpanded is symmetric, i.e. x'*(B*y) == y'*(B*x)
// for two arbitrary expanded vectors, which must hold since it is one
// symmetric block of the overall KKT matrix (spec.md §4.3).
func TestArrowMultiplyExpandedIsSymmetric(t *testing.T) {
	ly := testLayout()
	sc := NewScaling(ly)
	s := []float64{3, 4, 5, 1, 0.5}
	z := []float64{3, 4, 5, 1, 0.5}
	lambda := make([]float64, ly.Dim())
	if !sc.Update(s, z, lambda) {
		t.Fatalf("Update failed on a clearly feasible point")
	}

	x := []float64{1, 2, 0.3, 0.1, 0.2, 0.4, -0.5}
	y := []float64{0.2, -0.1, 1, 0.5, -0.3, 0.1, 0.7}
	const delta = 1e-7

	bx := make([]float64, ly.ExpandedDim())
	by := make([]float64, ly.ExpandedDim())
	ly.ArrowMultiplyExpanded(sc, delta, x, bx)
	ly.ArrowMultiplyExpanded(sc, delta, y, by)

	dotXBy, dotYBx := 0.0, 0.0
	for i := range x {
		dotXBy += x[i] * by[i]
		dotYBx += y[i] * bx[i]
	}
	if !approxEqual(dotXBy, dotYBx, 1e-9) {
		t.Fatalf("x'By = %v, y'Bx = %v, want equal (B must be symmetric)", dotXBy, dotYBx)
	}
}

func TestLineSearchStaysWithinStepmax(t *testing.T) {
	ly := testLayout()
	lambda := []float64{3, 4, 5, 1, 1}
	ds := []float64{-10, -10, -10, 3, 3}
	dz := []float64{-1, -1, -1, 0, 0}

	alpha := ly.LineSearch(lambda, ds, dz, 1, -0.1, 1, -0.1, 0.99)
	if alpha <= 0 || alpha > 0.99 {
		t.Fatalf("alpha = %v, want in (0, 0.99]", alpha)
	}
}

func TestLineSearchBoundedByTauKappaDirection(t *testing.T) {
	ly := Layout{NumLP: 2}
	lambda := []float64{10, 10}
	ds := []float64{0, 0}
	dz := []float64{0, 0}

	// dtau = -2 with tau = 1 implies alpha <= 1/2 regardless of the cone terms.
	alpha := ly.LineSearch(lambda, ds, dz, 1, -2, 1, 0, 0.99)
	if alpha > 0.5+1e-9 {
		t.Fatalf("alpha = %v, want <= 0.5 (tau bound)", alpha)
	}
}

func TestBringToConeMakesLPPositive(t *testing.T) {
	ly := Layout{NumLP: 3, SOC: nil}
	x := []float64{-1, 0, 5}
	out := ly.BringToCone(x, 0.99)
	for i, v := range out {
		if v <= 0 {
			t.Fatalf("x[%d] = %v after BringToCone, want > 0", i, v)
		}
	}
}

func TestBringToConeMakesSOCInterior(t *testing.T) {
	ly := Layout{NumLP: 0, SOC: []int{3}}
	x := []float64{0, 1, 1} // boundary: x0 == ||x1||
	out := ly.BringToCone(x, 0.99)

	normSq := out[1]*out[1] + out[2]*out[2]
	if out[0] <= math.Sqrt(normSq) {
		t.Fatalf("x0 = %v, ||x1|| = %v; expected strictly interior", out[0], math.Sqrt(normSq))
	}
}

func TestBringToConeLeavesStrictlyInteriorPointUnchanged(t *testing.T) {
	ly := Layout{NumLP: 1, SOC: []int{3}}
	x := []float64{5, 10, 1, 1}
	out := ly.BringToCone(x, 0.99)
	for i := range x {
		if !approxEqual(out[i], x[i], 1e-12) {
			t.Fatalf("BringToCone changed an already-interior point: out[%d]=%v, want %v", i, out[i], x[i])
		}
	}
}
