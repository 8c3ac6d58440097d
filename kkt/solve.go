// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"math"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/sparse"
)

// BuildRHS assembles a KKT right-hand side from already-computed top
// (x-block, y-block) and native cone-space z-block slices, scattering the
// z-block into the expanded layout (its v/u slots left at zero, spec.md
// §4.3's KKT expansion). This is the generic assembly step every RHS in
// the embedded Mehrotra iteration (the initialization solves of §4.8, and
// the affine/combined steps of §4.5) reduces to.
func BuildRHS(topX, topY, zNative []float64, ly cone.Layout) []float64 {
	n, p := len(topX), len(topY)
	expDim := ly.ExpandedDim()
	rhs := make([]float64, n+p+expDim)
	copy(rhs[:n], topX)
	copy(rhs[n:n+p], topY)
	ly.ScatterNative(zNative, rhs[n+p:])
	return rhs
}

// BuildAffineRHS assembles the right-hand side for the affine-scaling
// direction (spec.md §4.5 steps 1-2): the negated primal/dual residuals,
// stacked as [x-block; y-block; z-block], with the native-space z-block
// scattered into the expanded cone layout (its v/u slots left at zero,
// spec.md §4.3's KKT expansion).
func BuildAffineRHS(rx, ry, rz []float64, ly cone.Layout) []float64 {
	n, p := len(rx), len(ry)
	negRx := make([]float64, n)
	for i, v := range rx {
		negRx[i] = -v
	}
	negRy := make([]float64, p)
	for i, v := range ry {
		negRy[i] = -v
	}
	negRz := make([]float64, len(rz))
	for i, v := range rz {
		negRz[i] = -v
	}
	return BuildRHS(negRx, negRy, negRz, ly)
}

// BuildCombinedRHS assembles the right-hand side for the Mehrotra
// combined (predictor-corrector) direction (spec.md §4.5 step 9): like the
// affine RHS but damped by (1-sigma), with the second-order correction
// lambda \ (dsAff ∘ dzAff) subtracted from the z-block and the sigma*mu
// centering term added only to each cone block's head entry (the LP block
// has every entry as its own head, the SOC block only index 0). The
// correction is computed in native cone space and then scattered into the
// expanded layout. Returns false if the correction term's conic division
// reports "not in cone".
func BuildCombinedRHS(rx, ry, rz, lambda, dsAff, dzAff []float64, ly cone.Layout, sigma, mu float64) ([]float64, bool) {
	n, p := len(rx), len(ry)
	m := ly.Dim()
	expDim := ly.ExpandedDim()

	prod := make([]float64, m)
	ly.JordanProduct(dsAff, dzAff, prod)
	corr := make([]float64, m)
	if !ly.JordanDivision(lambda, prod, corr) {
		return nil, false
	}

	rhs := make([]float64, n+p+expDim)
	damp := 1 - sigma
	for i := 0; i < n; i++ {
		rhs[i] = -damp * rx[i]
	}
	for i := 0; i < p; i++ {
		rhs[n+i] = -damp * ry[i]
	}

	zNative := make([]float64, m)
	for i := 0; i < ly.NumLP; i++ {
		zNative[i] = -damp*rz[i] - corr[i] + sigma*mu
	}
	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		for j := 0; j < q; j++ {
			idx := start + j
			v := -damp*rz[idx] - corr[idx]
			if j == 0 {
				v += sigma * mu
			}
			zNative[idx] = v
		}
	}
	ly.ScatterNative(zNative, rhs[n+p:])
	return rhs, true
}

// Solve solves K*x = rhs using num as the initial factorization, then
// applies up to maxRef rounds of iterative refinement (spec.md §4.4),
// stopping early once the residual's infinity norm falls below tol or
// stops improving (in which case the best iterate so far is returned, not
// the most recent one). The residual is computed against the full
// symmetric KKT operator via sys.MulFull, which applies the (3,3) block
// with cone.ArrowMultiplyExpanded (spec.md §4.4 step 3's "fast arrow
// multiply") without its static regularization, rather than the
// upper-triangular-only storage Matrix would give. It returns the solution
// and the number of refinement steps actually taken.
func Solve(sys *System, sc *cone.Scaling, num *sparse.Numeric, rhs []float64, maxRef int, tol float64) ([]float64, int) {
	n := len(rhs)

	x := num.SolveCopy(rhs)
	best := append([]float64(nil), x...)
	bestErr := residualInfNorm(sys, sc, rhs, x)
	if bestErr < tol {
		return best, 0
	}

	steps := 0
	for it := 0; it < maxRef; it++ {
		res := make([]float64, n)
		sys.MulFull(sc, x, res)
		for i := range res {
			res[i] = rhs[i] - res[i]
		}

		dx := num.SolveCopy(res)
		for i := range x {
			x[i] += dx[i]
		}
		steps++

		errNorm := residualInfNorm(sys, sc, rhs, x)
		if errNorm >= bestErr {
			break
		}
		bestErr = errNorm
		copy(best, x)
		if errNorm < tol {
			break
		}
	}

	return best, steps
}

func residualInfNorm(sys *System, sc *cone.Scaling, rhs, x []float64) float64 {
	res := make([]float64, len(rhs))
	sys.MulFull(sc, x, res)
	maxAbs := 0.0
	for i := range res {
		d := math.Abs(rhs[i] - res[i])
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}
