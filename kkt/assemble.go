// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kkt assembles and solves the sparse quasidefinite KKT system that
// the interior-point iterations factor every step, per spec.md §4.3-4.4.
// The symbolic factorization runs once against the static part of the
// matrix; each iteration only rewrites the (3,3) block's numeric values
// (the Nesterov-Todd scaling, arrow-expanded per spec.md §3's
// N = n+p+m+2*ncones "KKT expansion") and refactorizes numerically.
package kkt

import (
	"errors"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/sparse"
)

// socSlots records, for one second-order cone block, the fixed data-array
// indices of every entry its (3,3) sub-block contributes (spec.md §4.3's
// arrow expansion: q native diagonal entries, a v-slot and a u-slot
// diagonal, q-1 v-column off-diagonal entries and q u-column off-diagonal
// entries -- 3q+1 nonzeros total).
type socSlots struct {
	headDiag      int
	tailDiagStart int // length q-1
	vDiag         int
	uDiag         int
	vColStart     int // length q-1, rows = tail native positions
	uColStart     int // length q, rows = head then tail native positions
}

// System holds the KKT matrix's fixed triplet layout for
//
//	K = [ delta*I    A^T            G^T (expanded cols)   ]
//	    [ A         -delta*I        0                     ]
//	    [ G (exp)    0             -V (arrow-expanded)     ]
//
// and the bookkeeping needed to rewrite the (3,3) block's values each
// iteration without disturbing the rest, then refactorize against the one
// Symbolic pattern computed at construction (spec.md §4.3).
type System struct {
	N, P    int         // variable and equality-constraint counts
	Layout  cone.Layout // native cone layout
	ExpDim  int         // ly.ExpandedDim(): width of the (3,3) block
	Delta   float64

	A, G *sparse.Matrix // retained so MulFull can apply the off-diagonal blocks exactly

	rowIdx, colIdx []int
	data           []float64

	lpDataStart int // index into data where the (3,3) LP diagonal entries start
	soc         []socSlots

	sym *sparse.Symbolic
}

// Build assembles the static structure of the KKT matrix from the
// (already-equilibrated) A and G and the cone layout, runs the symbolic
// factorization once, and returns the reusable System.
func Build(a, g *sparse.Matrix, ly cone.Layout, delta float64) (*System, error) {
	p, nc := a.Dims()
	m, nc2 := g.Dims()
	if nc != nc2 {
		return nil, errors.New("kkt: A and G column counts disagree")
	}
	if m != ly.Dim() {
		return nil, errors.New("kkt: G row count does not match the cone layout")
	}
	n := nc
	expDim := ly.ExpandedDim()

	sys := &System{N: n, P: p, Layout: ly, ExpDim: expDim, Delta: delta, A: a, G: g}

	var rowIdx, colIdx []int
	var data []float64

	for j := 0; j < n; j++ {
		rowIdx = append(rowIdx, j)
		colIdx = append(colIdx, j)
		data = append(data, delta)
	}

	for j := 0; j < n; j++ {
		a.Col(j, func(i int, val float64) {
			rowIdx = append(rowIdx, j)
			colIdx = append(colIdx, n+i)
			data = append(data, val)
		})
	}

	for j := 0; j < n; j++ {
		g.Col(j, func(i int, val float64) {
			rowIdx = append(rowIdx, j)
			colIdx = append(colIdx, n+p+ly.ExpandedIndexOf(i))
			data = append(data, val)
		})
	}

	for i := 0; i < p; i++ {
		rowIdx = append(rowIdx, n+i)
		colIdx = append(colIdx, n+i)
		data = append(data, -delta)
	}

	base3 := n + p
	sys.lpDataStart = len(data)
	for i := 0; i < ly.NumLP; i++ {
		row := base3 + i
		rowIdx = append(rowIdx, row)
		colIdx = append(colIdx, row)
		data = append(data, -delta)
	}

	sys.soc = make([]socSlots, ly.NumCones())
	for k, q := range ly.SOC {
		base := base3 + ly.ExpandedSOCStart(k)
		var sl socSlots

		sl.headDiag = len(data)
		rowIdx = append(rowIdx, base)
		colIdx = append(colIdx, base)
		data = append(data, 0)

		sl.tailDiagStart = len(data)
		for i := 1; i < q; i++ {
			rowIdx = append(rowIdx, base+i)
			colIdx = append(colIdx, base+i)
			data = append(data, 0)
		}

		sl.vDiag = len(data)
		rowIdx = append(rowIdx, base+q)
		colIdx = append(colIdx, base+q)
		data = append(data, 0)

		sl.uDiag = len(data)
		rowIdx = append(rowIdx, base+q+1)
		colIdx = append(colIdx, base+q+1)
		data = append(data, 0)

		sl.vColStart = len(data)
		for i := 1; i < q; i++ {
			rowIdx = append(rowIdx, base+i)
			colIdx = append(colIdx, base+q)
			data = append(data, 0)
		}

		sl.uColStart = len(data)
		rowIdx = append(rowIdx, base)
		colIdx = append(colIdx, base+q+1)
		data = append(data, 0)
		for i := 1; i < q; i++ {
			rowIdx = append(rowIdx, base+i)
			colIdx = append(colIdx, base+q+1)
			data = append(data, 0)
		}

		sys.soc[k] = sl
	}

	sys.rowIdx = rowIdx
	sys.colIdx = colIdx
	sys.data = data

	total := n + p + expDim
	mat := sparse.NewFromTriplets(total, total, rowIdx, colIdx, data)
	sym, err := sparse.Analyze(mat)
	if err != nil {
		return nil, err
	}
	sys.sym = sym
	return sys, nil
}

// Dim returns the total KKT dimension N = n + p + m + 2*ncones.
func (sys *System) Dim() int { return sys.N + sys.P + sys.ExpDim }

// Matrix rebuilds the current sparse.Matrix snapshot of the KKT system
// from the System's triplet arrays (upper triangle only). Refactorize
// hands this snapshot to the numeric factorization; refinement residuals
// use MulFull instead.
func (sys *System) Matrix() *sparse.Matrix {
	n := sys.Dim()
	return sparse.NewFromTriplets(n, n, sys.rowIdx, sys.colIdx, sys.data)
}

// Refactorize rewrites the (3,3) block's values from the current NT scaling
// and returns a fresh numeric factorization against the System's fixed
// Symbolic pattern (spec.md §4.3's "numeric refactorization each
// iteration"). The per-entry values mirror cone.ArrowMultiplyExpanded
// exactly (grounded on ecos.cpp's updateKKT): LP diagonal -v_i-delta, SOC
// head diagonal -eta2*d1-delta, SOC tail diagonal -eta2-delta, v-slot
// diagonal -eta2-delta, u-slot diagonal +eta2+delta (the one block entry
// whose regularization sign flips), v-column entries -eta2*v1*q(k), and
// u-column entries -eta2*u0 (head) / -eta2*u1*q(k) (tail).
func (sys *System) Refactorize(sc *cone.Scaling) (*sparse.Numeric, error) {
	delta := sys.Delta
	for i := 0; i < sys.Layout.NumLP; i++ {
		sys.data[sys.lpDataStart+i] = -sc.LP.V[i] - delta
	}

	for k, q := range sys.Layout.SOC {
		sk := &sc.SOC[k]
		sl := sys.soc[k]
		eta2 := sk.Eta2

		sys.data[sl.headDiag] = -eta2*sk.D1 - delta
		for i := 0; i < q-1; i++ {
			sys.data[sl.tailDiagStart+i] = -eta2 - delta
		}
		sys.data[sl.vDiag] = -eta2 - delta
		sys.data[sl.uDiag] = eta2 + delta

		for i := 0; i < q-1; i++ {
			sys.data[sl.vColStart+i] = -eta2 * sk.V1 * sk.Q[i]
		}
		sys.data[sl.uColStart] = -eta2 * sk.U0
		for i := 0; i < q-1; i++ {
			sys.data[sl.uColStart+1+i] = -eta2 * sk.U1 * sk.Q[i]
		}
	}

	mat := sys.Matrix()
	return sys.sym.Factorize(mat)
}

// MulFull computes y = K*x against the full symmetric KKT operator, not the
// upper-triangular-only storage Matrix returns. It is the basis of the
// iterative-refinement residual (spec.md §4.4 step 3): the (3,3) block's
// contribution is the "fast arrow multiply" cone.ArrowMultiplyExpanded,
// applied with zero regularization so refinement corrects toward the
// unregularized -V block (the delta terms of the (1,1) and (2,2) blocks are
// kept), rather than a generic sparse matvec over a materialized block, and the
// off-diagonal A/G blocks are applied directly (and transposed) from the
// retained A, G matrices so the lower triangle the Matrix snapshot omits is
// never silently dropped. x and y must both have length sys.Dim().
func (sys *System) MulFull(sc *cone.Scaling, x, y []float64) {
	n, p := sys.N, sys.P
	delta := sys.Delta
	ly := sys.Layout

	xTop := x[:n]
	yMid := x[n : n+p]
	zPart := x[n+p:]

	yTop := y[:n]
	yMidOut := y[n : n+p]
	yZOut := y[n+p:]

	for i := 0; i < n; i++ {
		yTop[i] = delta * xTop[i]
	}
	sys.A.AddMulTransVec(yMid, yTop)

	zNative := make([]float64, ly.Dim())
	ly.GatherNative(zPart, zNative)
	sys.G.AddMulTransVec(zNative, yTop)

	sys.A.MulVec(xTop, yMidOut)
	for i := range yMidOut {
		yMidOut[i] -= delta * yMid[i]
	}

	gNative := make([]float64, ly.Dim())
	sys.G.MulVec(xTop, gNative)
	ly.ScatterNative(gNative, yZOut)

	arrowOut := make([]float64, sys.ExpDim)
	ly.ArrowMultiplyExpanded(sc, 0, zPart, arrowOut)
	for i := range yZOut {
		yZOut[i] += arrowOut[i]
	}
}
