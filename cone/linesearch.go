// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cone

import "math"

// LineSearch computes the largest step alpha in (0, stepmax] such that
// s+alpha*ds and z+alpha*dz remain strictly inside K and tau+alpha*dtau,
// kappa+alpha*dkappa remain strictly positive, per spec.md §4.6. ds and dz
// are the NT-scaled direction components (Δs̃ = λ\Δs and W·Δz), not the raw
// native ones: the caller passes w.lambda and the scaled direction buffers
// it already carries every iteration. This is the pinned fix over
// ecos.cpp's lineSearch: the LP ratio test runs over exactly the l
// nonnegative-orthant coordinates (not ecos.cpp's num_eq-sized loop), and
// each SOC block's quadratic bound uses dz (not ecos.cpp's apparent
// ds-for-dz copy-paste at its lkbar_times_dzk term).
func (ly Layout) LineSearch(lambda, ds, dz []float64, tau, dtau, kappa, dkappa, stepmax float64) float64 {
	conicStep := 0.0

	l := ly.NumLP
	for i := 0; i < l; i++ {
		if r := -ds[i] / lambda[i]; r > conicStep {
			conicStep = r
		}
		if r := -dz[i] / lambda[i]; r > conicStep {
			conicStep = r
		}
	}

	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		if r := socStepBound(lambda[start:start+q], ds[start:start+q], dz[start:start+q]); r > conicStep {
			conicStep = r
		}
	}

	if dtau < 0 {
		if r := -dtau / tau; r > conicStep {
			conicStep = r
		}
	}
	if dkappa < 0 {
		if r := -dkappa / kappa; r > conicStep {
			conicStep = r
		}
	}

	if conicStep <= 0 {
		return stepmax
	}
	return math.Min(stepmax, 1/conicStep)
}

// socStepBound returns the normalized conic-step contribution of a single
// SOC block, per spec.md §4.6 and Open Question #2's pinned fix
// (conic_step = max(rho_norm, sigma_norm, 0), rather than ecos.cpp's
// under-determined expression).
func socStepBound(lambdaK, ds, dz []float64) float64 {
	l0 := lambdaK[0]
	var tailNormSq float64
	for _, v := range lambdaK[1:] {
		tailNormSq += v * v
	}
	radicand := l0*l0 - tailNormSq
	if radicand <= 0 {
		return 0
	}
	lnorm := math.Sqrt(radicand)

	rho := coneRatioNorm(lambdaK, lnorm, ds)
	sigma := coneRatioNorm(lambdaK, lnorm, dz)
	return math.Max(math.Max(rho, sigma), 0)
}

// coneRatioNorm computes rho_norm = ||rho_1:|| - rho_0 for a single
// direction d against the block's normalized lambda-bar, per spec.md §4.6:
// lbar = lambda_k/lnorm, rho0 = (lbar0*d0 - lbar_1:'*d_1:)/lnorm,
// f = (lbar0*d0 - lbar_1:'*d_1: + d0)/(lbar0+1), rho_1: = (d_1: - f*lbar_1:)/lnorm.
func coneRatioNorm(lambdaK []float64, lnorm float64, d []float64) float64 {
	q := len(lambdaK)
	lbar0 := lambdaK[0] / lnorm
	d0 := d[0]

	dotFull := lbar0 * d0
	for i := 1; i < q; i++ {
		dotFull += (lambdaK[i] / lnorm) * d[i]
	}
	dotTail := dotFull - lbar0*d0
	rho0 := (lbar0*d0 - dotTail) / lnorm
	f := (lbar0*d0 - dotTail + d0) / (lbar0 + 1)

	sumSq := 0.0
	for i := 1; i < q; i++ {
		lbarI := lambdaK[i] / lnorm
		ri := (d[i] - f*lbarI) / lnorm
		sumSq += ri * ri
	}
	return math.Sqrt(sumSq) - rho0
}
