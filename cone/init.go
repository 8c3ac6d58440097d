// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cone

import "math"

// BringToCone returns a copy of r shifted, if necessary, so it lies
// strictly in the interior of K, per spec.md §4.7/§4.8's two-KKT-solve
// initialization: a single scalar alpha is taken as the worst violation
// across every block (max(-gamma, max_i(-r_i) over the LP coordinates,
// max_cone(||r_tail||-r_head) over each SOC block); if alpha is negative
// (r strictly interior) r is returned unchanged, otherwise every block's head
// position (every LP coordinate is its own head) is shifted by the same
// (1+alpha). This is the pinned fix over a per-block independent shift:
// spec.md's bringToCone applies one global alpha to every block uniformly,
// grounded on original_source/src/ecos.cpp's bringToCone.
func (ly Layout) BringToCone(r []float64, gamma float64) []float64 {
	alpha := -gamma

	l := ly.NumLP
	for i := 0; i < l; i++ {
		if v := -r[i]; v > alpha {
			alpha = v
		}
	}

	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		head := r[start]
		tail := r[start+1 : start+q]
		normSq := 0.0
		for _, v := range tail {
			normSq += v * v
		}
		norm := math.Sqrt(normSq)
		if v := norm - head; v > alpha {
			alpha = v
		}
	}

	out := append([]float64(nil), r...)
	if alpha < 0 {
		return out
	}

	shift := 1 + alpha
	for i := 0; i < l; i++ {
		out[i] += shift
	}
	for k := range ly.SOC {
		out[ly.SOCStart(k)] += shift
	}
	return out
}
