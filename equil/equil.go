// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package equil implements the Ruiz-style iterative equilibration of the
// problem data (A, G, b, h, c) that the solver runs once before assembling
// the KKT system (spec.md §4.2), grounded on
// original_source/src/ecos.cpp's setEquilibration/unsetEquilibration. Row
// scales for G are collapsed per SOC block (every row of a cone shares one
// scale factor) so the scaling never distorts a cone's membership test.
package equil

import (
	"math"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/sparse"
)

const (
	// floor: a row/column infinity norm below it gets scale factor 1
	// instead of 1/sqrt(norm), matching ecos.cpp's treatment of near-zero
	// columns/rows (spec.md §4.2).
	floor = 1e-6
	iters = 3
)

// Scaling holds the row/column scale factors applied to (A, G, b, h, c).
// x_scaled = x / colScale, so the original x is recovered as
// x = colScale * x_scaled (spec.md §4.11's back-scaling uses these in
// reverse).
type Scaling struct {
	RowA []float64 // length rows(A)
	RowG []float64 // length rows(G), constant within each SOC block
	Col  []float64 // length cols(A)=cols(G)
}

// Equilibrate runs `iters` rounds of Ruiz scaling over (A, G), using the
// cone layout to collapse G's row scales per SOC block, then rescales
// b, h, c in place and returns the factors needed to undo it. A, G, b, h, c
// are mutated in place per spec.md §4.2 ("the solver equilibrates its own
// copy of the problem data").
func Equilibrate(a, g *sparse.Matrix, b, h, c []float64, ly cone.Layout) *Scaling {
	n := len(c)
	sc := &Scaling{
		RowA: onesOf(a.Rows),
		RowG: onesOf(g.Rows),
		Col:  onesOf(n),
	}

	for it := 0; it < iters; it++ {
		colNorm := make([]float64, n)
		rowANorm := make([]float64, a.Rows)
		rowGNorm := make([]float64, g.Rows)

		accumulateInfNorms(a, colNorm, rowANorm)
		accumulateInfNorms(g, colNorm, rowGNorm)

		collapseSOCRows(rowGNorm, ly)

		colFactor := make([]float64, n)
		for j := range colFactor {
			colFactor[j] = invSqrtFloor(colNorm[j])
		}
		rowAFactor := make([]float64, a.Rows)
		for i := range rowAFactor {
			rowAFactor[i] = invSqrtFloor(rowANorm[i])
		}
		rowGFactor := make([]float64, g.Rows)
		for i := range rowGFactor {
			rowGFactor[i] = invSqrtFloor(rowGNorm[i])
		}

		scaleInPlace(a, rowAFactor, colFactor)
		scaleInPlace(g, rowGFactor, colFactor)

		for i := range sc.RowA {
			sc.RowA[i] *= rowAFactor[i]
		}
		for i := range sc.RowG {
			sc.RowG[i] *= rowGFactor[i]
		}
		for j := range sc.Col {
			sc.Col[j] *= colFactor[j]
		}
	}

	for i := range b {
		b[i] *= sc.RowA[i]
	}
	for i := range h {
		h[i] *= sc.RowG[i]
	}
	for j := range c {
		c[j] *= sc.Col[j]
	}

	return sc
}

// Unset reverses Equilibrate's effect on (A, G, b, h, c) in place, an exact
// round-trip pair per spec.md §8's testable invariant.
func Unset(a, g *sparse.Matrix, b, h, c []float64, sc *Scaling) {
	invRowA := invertAll(sc.RowA)
	invRowG := invertAll(sc.RowG)
	invCol := invertAll(sc.Col)

	scaleInPlace(a, invRowA, invCol)
	scaleInPlace(g, invRowG, invCol)

	for i := range b {
		b[i] /= sc.RowA[i]
	}
	for i := range h {
		h[i] /= sc.RowG[i]
	}
	for j := range c {
		c[j] /= sc.Col[j]
	}
}

func onesOf(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func invertAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = 1 / x
	}
	return out
}

func invSqrtFloor(norm float64) float64 {
	if norm < floor {
		return 1
	}
	return 1 / math.Sqrt(norm)
}

// accumulateInfNorms updates colNorm[j] and rowNorm[i] with
// max(current, |m[i][j]|) over every stored entry of m.
func accumulateInfNorms(m *sparse.Matrix, colNorm, rowNorm []float64) {
	_, cols := m.Dims()
	for j := 0; j < cols; j++ {
		m.Col(j, func(i int, val float64) {
			av := math.Abs(val)
			if av > colNorm[j] {
				colNorm[j] = av
			}
			if av > rowNorm[i] {
				rowNorm[i] = av
			}
		})
	}
}

// collapseSOCRows replaces every row norm within a SOC block by the sum of
// the block's row norms, so all rows of one cone share a single scale
// factor and the cone's membership test is never distorted by per-row
// scaling (spec.md §4.2's SOC-row-collapse rule: "the per-row scale is
// replaced by the sum over the cone's rows", not the max).
func collapseSOCRows(rowNorm []float64, ly cone.Layout) {
	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		sum := 0.0
		for i := start; i < start+q; i++ {
			sum += rowNorm[i]
		}
		for i := start; i < start+q; i++ {
			rowNorm[i] = sum
		}
	}
}

// scaleInPlace applies m[i][j] *= rowFactor[i] * colFactor[j] to every
// stored entry of m.
func scaleInPlace(m *sparse.Matrix, rowFactor, colFactor []float64) {
	for j := 0; j < m.Cols; j++ {
		cf := colFactor[j]
		for p := m.ColPtr[j]; p < m.ColPtr[j+1]; p++ {
			m.Data[p] *= rowFactor[m.RowIdx[p]] * cf
		}
	}
}
